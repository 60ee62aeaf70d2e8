// Package encoder writes raw frames to an H.264 MP4 file through an ffmpeg
// subprocess reading from its standard input.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/owlcms/clickrec/internal/ffmpeg"
	"github.com/owlcms/clickrec/internal/frame"
	"github.com/owlcms/clickrec/internal/jobutil"
	"github.com/owlcms/clickrec/internal/logging"
	"github.com/owlcms/clickrec/internal/session"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// DefaultFinalizeTimeout bounds how long ffmpeg may take to finish the file.
const DefaultFinalizeTimeout = 15 * time.Second

// ErrFrameMismatch is returned for frames that do not match the opened format.
var ErrFrameMismatch = errors.New("frame does not match encoder format")

// Settings select the codec and output options.
type Settings struct {
	FfmpegPath      string
	Codec           string
	Preset          string
	Quality         int
	PixFmt          string
	LogFfmpeg       bool
	LogDir          string // ffmpeg output is saved here when LogFfmpeg is set
	FinalizeTimeout time.Duration
}

// Encoder opens ffmpeg recorders. It implements session.Sink.
type Encoder struct {
	settings Settings
}

// New returns an encoder using s.
func New(s Settings) *Encoder {
	if s.FfmpegPath == "" {
		s.FfmpegPath = "ffmpeg"
	}
	if s.PixFmt == "" {
		s.PixFmt = "yuv420p"
	}
	if s.FinalizeTimeout <= 0 {
		s.FinalizeTimeout = DefaultFinalizeTimeout
	}
	return &Encoder{settings: s}
}

// Settings returns the settings in use.
func (e *Encoder) Settings() Settings {
	return e.settings
}

// Args builds the ffmpeg command line encoding frames of format read from
// stdin into path.
func (e *Encoder) Args(path string, format frame.Format) ([]string, error) {
	pixFmt, err := format.PixFmt()
	if err != nil {
		return nil, err
	}
	if format.Width <= 0 || format.Height <= 0 || format.FPS <= 0 {
		return nil, fmt.Errorf("invalid format %dx%d@%d", format.Width, format.Height, format.FPS)
	}

	s := e.settings
	input := ffmpeggo.KwArgs{
		"f":         "rawvideo",
		"pix_fmt":   pixFmt,
		"s":         fmt.Sprintf("%dx%d", format.Width, format.Height),
		"framerate": strconv.Itoa(format.FPS),
	}
	output := ffmpeggo.KwArgs{
		"c:v":      s.Codec,
		"pix_fmt":  s.PixFmt,
		"movflags": "+faststart",
	}
	if s.Preset != "" {
		output["preset"] = s.Preset
	}
	if k, v, ok := QualityArg(s.Codec, s.Quality); ok {
		output[k] = v
	}

	loglevel := "error"
	if s.LogFfmpeg || logging.Verbose {
		loglevel = "info"
	}
	stream := ffmpeggo.Input("pipe:", input).
		Output(path, output).
		GlobalArgs("-hide_banner", "-loglevel", loglevel, "-stats").
		OverWriteOutput()
	return stream.GetArgs(), nil
}

// QualityArg maps a quality value to the codec's option: -crf for the x264
// family, -global_quality for Quick Sync. Other codecs take no quality option.
func QualityArg(codec string, quality int) (string, string, bool) {
	if quality <= 0 {
		return "", "", false
	}
	switch {
	case strings.HasPrefix(codec, "libx26"):
		return "crf", strconv.Itoa(quality), true
	case strings.HasSuffix(codec, "_qsv"):
		return "global_quality", strconv.Itoa(quality), true
	}
	return "", "", false
}

// Open starts ffmpeg writing to path.
func (e *Encoder) Open(path string, format frame.Format) (session.Writer, error) {
	args, err := e.Args(path, format)
	if err != nil {
		return nil, err
	}

	cmd := ffmpeg.Command(context.Background(), e.settings.FfmpegPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	logging.InfoLogger.Printf("Executing command: %s", cmd.String())
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", e.settings.FfmpegPath, err)
	}
	if err := jobutil.Assign(cmd); err != nil {
		logging.WarningLogger.Printf("Could not attach ffmpeg to job object: %v", err)
	}

	r := &Recorder{
		path:    path,
		format:  format,
		stdin:   stdin,
		timeout: e.settings.FinalizeTimeout,
		waitCh:  make(chan error, 1),
		kill:    func() error { return ffmpeg.ForceKill(cmd) },
	}
	logFile := e.openLog()
	go func() {
		r.scan(stderr, logFile)
		if logFile != nil {
			logFile.Close()
		}
		r.waitCh <- cmd.Wait()
	}()
	return r, nil
}

func (e *Encoder) openLog() *os.File {
	if !e.settings.LogFfmpeg || e.settings.LogDir == "" {
		return nil
	}
	if err := os.MkdirAll(e.settings.LogDir, 0755); err != nil {
		logging.ErrorLogger.Printf("Failed to create logs directory: %v", err)
		return nil
	}
	name := filepath.Join(e.settings.LogDir, fmt.Sprintf("ffmpeg_%s_record.log", time.Now().Format("20060102_150405")))
	f, err := os.Create(name)
	if err != nil {
		logging.ErrorLogger.Printf("Failed to create ffmpeg log file %s: %v", name, err)
		return nil
	}
	logging.InfoLogger.Printf("FFmpeg output will be logged to: %s", name)
	return f
}

const tailLines = 8

// Recorder is one running ffmpeg process. WriteFrame and Finalize must be
// called from a single goroutine.
type Recorder struct {
	path    string
	format  frame.Format
	stdin   io.WriteCloser
	timeout time.Duration
	waitCh  chan error
	kill    func() error

	frames    int
	finalized bool
	finalErr  error

	mu   sync.Mutex
	tail []string
	last ffmpeg.Progress
}

// WriteFrame sends one frame to ffmpeg.
func (r *Recorder) WriteFrame(f frame.Frame) error {
	if r.finalized {
		return errors.New("recorder already finalized")
	}
	if f.Width != r.format.Width || f.Height != r.format.Height || f.Channels != r.format.Channels {
		return fmt.Errorf("%w: got %dx%dx%d, want %dx%dx%d", ErrFrameMismatch,
			f.Width, f.Height, f.Channels, r.format.Width, r.format.Height, r.format.Channels)
	}
	if len(f.Data) != r.format.Size() {
		return fmt.Errorf("%w: %d bytes, want %d", ErrFrameMismatch, len(f.Data), r.format.Size())
	}
	if _, err := r.stdin.Write(f.Data); err != nil {
		return r.withTail(fmt.Errorf("write frame %d: %w", r.frames, err))
	}
	r.frames++
	return nil
}

// Finalize closes ffmpeg's input and waits for it to write the file. A process
// still running after the finalize timeout is killed.
func (r *Recorder) Finalize() error {
	if r.finalized {
		return r.finalErr
	}
	r.finalized = true
	r.finalErr = r.finish()
	return r.finalErr
}

func (r *Recorder) finish() error {
	if err := r.stdin.Close(); err != nil {
		logging.InfoLogger.Printf("Could not close ffmpeg stdin (this is normal if the process exited): %v", err)
	}

	select {
	case err := <-r.waitCh:
		if err != nil {
			return r.withTail(fmt.Errorf("ffmpeg exited: %w", err))
		}
		p := r.Progress()
		logging.InfoLogger.Printf("ffmpeg wrote %s (%d frames sent, %d encoded)", r.path, r.frames, p.Frame)
		return nil
	case <-time.After(r.timeout):
		logging.ErrorLogger.Printf("ffmpeg did not finish %s within %s", r.path, r.timeout)
		if err := r.kill(); err != nil {
			logging.ErrorLogger.Printf("Failed to kill ffmpeg: %v", err)
		}
		<-r.waitCh
		return fmt.Errorf("ffmpeg did not finish within %s", r.timeout)
	}
}

// Frames is the number of frames handed to ffmpeg.
func (r *Recorder) Frames() int {
	return r.frames
}

// Progress is the last status line ffmpeg printed.
func (r *Recorder) Progress() ffmpeg.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Recorder) scan(stderr io.Reader, log io.Writer) {
	ffmpeg.ScanStderr(stderr, func(p ffmpeg.Progress) {
		r.mu.Lock()
		r.last = p
		r.mu.Unlock()
		logging.Trace("ffmpeg frame=%d fps=%.1f bitrate=%s speed=%.2fx", p.Frame, p.FPS, p.Bitrate, p.Speed)
	}, func(line string) {
		r.mu.Lock()
		r.tail = append(r.tail, line)
		if len(r.tail) > tailLines {
			r.tail = r.tail[len(r.tail)-tailLines:]
		}
		r.mu.Unlock()
		if log != nil {
			fmt.Fprintln(log, line)
		}
		logging.Trace("ffmpeg: %s", line)
	})
}

func (r *Recorder) withTail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tail) == 0 {
		return err
	}
	return fmt.Errorf("%w (%s)", err, strings.Join(r.tail, "; "))
}
