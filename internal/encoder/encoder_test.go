package encoder

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/owlcms/clickrec/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hasPair reports whether flag is immediately followed by value in args.
func hasPair(args []string, flag, value string) bool {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func index(args []string, s string) int {
	for i, a := range args {
		if a == s {
			return i
		}
	}
	return -1
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		format   frame.Format
		want     [][2]string
		absent   []string
	}{
		{
			name:     "libx264 color",
			settings: Settings{Codec: "libx264", Preset: "medium", Quality: 23},
			format:   frame.Format{Width: 1280, Height: 720, Channels: 3, FPS: 30},
			want: [][2]string{
				{"-f", "rawvideo"}, {"-pix_fmt", "bgr24"}, {"-s", "1280x720"}, {"-framerate", "30"},
				{"-i", "pipe:"}, {"-c:v", "libx264"}, {"-preset", "medium"}, {"-crf", "23"},
				{"-pix_fmt", "yuv420p"}, {"-movflags", "+faststart"},
			},
			absent: []string{"-global_quality"},
		},
		{
			name:     "qsv grayscale",
			settings: Settings{Codec: "h264_qsv", Preset: "medium", Quality: 25},
			format:   frame.Format{Width: 640, Height: 480, Channels: 1, FPS: 60},
			want: [][2]string{
				{"-pix_fmt", "gray"}, {"-s", "640x480"}, {"-framerate", "60"},
				{"-c:v", "h264_qsv"}, {"-global_quality", "25"},
			},
			absent: []string{"-crf"},
		},
		{
			name:     "nvenc without quality option",
			settings: Settings{Codec: "h264_nvenc", Quality: 23},
			format:   frame.Format{Width: 320, Height: 240, Channels: 4, FPS: 15},
			want:     [][2]string{{"-pix_fmt", "bgra"}, {"-c:v", "h264_nvenc"}},
			absent:   []string{"-crf", "-global_quality", "-preset"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join("clips", "20240101_000000.mp4")
			args, err := New(tt.settings).Args(out, tt.format)
			require.NoError(t, err)
			for _, p := range tt.want {
				assert.True(t, hasPair(args, p[0], p[1]), "missing %s %s in %v", p[0], p[1], args)
			}
			for _, a := range tt.absent {
				assert.NotContains(t, args, a)
			}
			assert.Contains(t, args, "-y")
			assert.Greater(t, index(args, out), index(args, "pipe:"))
			assert.Greater(t, index(args, "-c:v"), index(args, "pipe:"))
		})
	}
}

func TestArgsRejectsBadFormat(t *testing.T) {
	e := New(Settings{Codec: "libx264"})
	_, err := e.Args("out.mp4", frame.Format{Width: 640, Height: 480, Channels: 2, FPS: 30})
	assert.Error(t, err)
	_, err = e.Args("out.mp4", frame.Format{Width: 640, Height: 480, Channels: 3})
	assert.Error(t, err)
}

func TestQualityArg(t *testing.T) {
	k, v, ok := QualityArg("libx264", 18)
	assert.True(t, ok)
	assert.Equal(t, "crf", k)
	assert.Equal(t, "18", v)

	k, _, ok = QualityArg("h264_qsv", 18)
	assert.True(t, ok)
	assert.Equal(t, "global_quality", k)

	_, _, ok = QualityArg("libx264", 0)
	assert.False(t, ok)
}

type pipeWriter struct {
	buf    strings.Builder
	closed bool
	err    error
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *pipeWriter) Close() error {
	w.closed = true
	return nil
}

func newTestRecorder(stdin io.WriteCloser, timeout time.Duration) *Recorder {
	return &Recorder{
		path:    "out.mp4",
		format:  frame.Format{Width: 2, Height: 2, Channels: 1, FPS: 30},
		stdin:   stdin,
		timeout: timeout,
		waitCh:  make(chan error, 1),
		kill:    func() error { return nil },
	}
}

func grayFrame() frame.Frame {
	return frame.Frame{Width: 2, Height: 2, Channels: 1, Data: []byte{1, 2, 3, 4}}
}

func TestRecorderWritesAndFinalizes(t *testing.T) {
	w := &pipeWriter{}
	r := newTestRecorder(w, time.Second)
	require.NoError(t, r.WriteFrame(grayFrame()))
	require.NoError(t, r.WriteFrame(grayFrame()))
	assert.Equal(t, 2, r.Frames())
	assert.Equal(t, "\x01\x02\x03\x04\x01\x02\x03\x04", w.buf.String())

	r.waitCh <- nil
	require.NoError(t, r.Finalize())
	assert.True(t, w.closed)
	assert.NoError(t, r.Finalize())
	assert.Error(t, r.WriteFrame(grayFrame()))
}

func TestRecorderRejectsMismatchedFrame(t *testing.T) {
	r := newTestRecorder(&pipeWriter{}, time.Second)
	err := r.WriteFrame(frame.Frame{Width: 2, Height: 2, Channels: 3, Data: make([]byte, 12)})
	assert.ErrorIs(t, err, ErrFrameMismatch)
	err = r.WriteFrame(frame.Frame{Width: 2, Height: 2, Channels: 1, Data: make([]byte, 3)})
	assert.ErrorIs(t, err, ErrFrameMismatch)
	assert.Equal(t, 0, r.Frames())
}

func TestRecorderWriteErrorIncludesStderr(t *testing.T) {
	r := newTestRecorder(&pipeWriter{err: errors.New("broken pipe")}, time.Second)
	r.scan(strings.NewReader("Unknown encoder 'h264_qsv'\n"), nil)
	err := r.WriteFrame(grayFrame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Contains(t, err.Error(), "Unknown encoder 'h264_qsv'")
}

func TestRecorderFinalizeReportsExitError(t *testing.T) {
	r := newTestRecorder(&pipeWriter{}, time.Second)
	r.waitCh <- errors.New("exit status 1")
	err := r.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 1")
	assert.Equal(t, err, r.Finalize())
}

func TestRecorderFinalizeTimeoutKills(t *testing.T) {
	r := newTestRecorder(&pipeWriter{}, 20*time.Millisecond)
	killed := false
	r.kill = func() error {
		killed = true
		r.waitCh <- errors.New("signal: killed")
		return nil
	}
	err := r.Finalize()
	require.Error(t, err)
	assert.True(t, killed)
	assert.Contains(t, err.Error(), "did not finish")
}

func TestRecorderTracksProgress(t *testing.T) {
	r := newTestRecorder(&pipeWriter{}, time.Second)
	r.scan(strings.NewReader("frame=   42 fps= 30 q=28.0 size=  256kB time=00:00:01.40 bitrate=1498.0kbits/s speed=1x\r"), nil)
	assert.Equal(t, 42, r.Progress().Frame)
}

// TestOpenWithStandIn runs a shell script in place of ffmpeg that copies its
// input to the .mp4 argument.
func TestOpenWithStandIn(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
for a in "$@"; do
	case "$a" in
	*.mp4) out="$a" ;;
	esac
done
echo "Output #0, mp4, to '$out':" >&2
cat > "$out"
`), 0755))

	out := filepath.Join(dir, "clip.mp4")
	e := New(Settings{FfmpegPath: script, Codec: "libx264", Quality: 23, FinalizeTimeout: 5 * time.Second})
	w, err := e.Open(out, frame.Format{Width: 2, Height: 2, Channels: 1, FPS: 30})
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(grayFrame()))
	require.NoError(t, w.WriteFrame(grayFrame()))
	require.NoError(t, w.Finalize())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 1, 2, 3, 4}, data)
}

func TestOpenMissingFfmpeg(t *testing.T) {
	e := New(Settings{FfmpegPath: filepath.Join(t.TempDir(), "no-ffmpeg"), Codec: "libx264"})
	_, err := e.Open("out.mp4", frame.Format{Width: 2, Height: 2, Channels: 1, FPS: 30})
	assert.Error(t, err)
}
