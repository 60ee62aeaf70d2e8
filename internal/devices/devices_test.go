package devices

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dshowDevices = `[dshow @ 0000020f] "Integrated Camera" (video)
[dshow @ 0000020f]   Alternative name "@device_pnp_\\?\usb#vid_04f2"
[dshow @ 0000020f] "OBS Virtual Camera" (video)
[dshow @ 0000020f] "Microphone Array (Realtek)" (audio)
dummy: Immediate exit requested`

const dshowOptions = `[dshow @ 000001] DirectShow video device options (from video devices)
[dshow @ 000001]  Pin "Capture" (alternative pin name "0")
[dshow @ 000001]   vcodec=mjpeg  min s=1280x720 fps=30 max s=1280x720 fps=30
[dshow @ 000001]   vcodec=mjpeg  min s=1920x1080 fps=60 max s=1920x1080 fps=60.0002
[dshow @ 000001]   pixel_format=yuyv422  min s=640x480 fps=29.97 max s=640x480 fps=29.97
[dshow @ 000001]   pixel_format=nv12  s=1280x720 fps=10`

const v4l2Devices = `HD Pro Webcam C920 (usb-0000:00:14.0-1):
	/dev/video0
	/dev/video1
	/dev/media0

Dummy video device (platform:v4l2loopback-000):
	/dev/video4
`

const v4l2Formats = `ioctl: VIDIOC_ENUM_FMT
	Type: Video Capture

	[0]: 'YUYV' (YUYV 4:2:2)
		Size: Discrete 640x480
			Interval: Discrete 0.033s (30.000 fps)
			Interval: Discrete 0.067s (15.000 fps)
	[1]: 'MJPG' (Motion-JPEG, compressed)
		Size: Discrete 1920x1080
			Interval: Discrete 0.033s (30.000 fps)
			Interval: Discrete 0.042s (24.000 fps)
		Size: Discrete 1280x720
			Interval: Discrete 0.017s (60.000 fps)
			Interval: Discrete 0.033s (30.000 fps)
		Size: Discrete 2304x1536
			Interval: Discrete 0.500s (2.000 fps)
`

func TestParseDshowDevices(t *testing.T) {
	assert.Equal(t, []string{"Integrated Camera", "OBS Virtual Camera"}, ParseDshowDevices(dshowDevices))
	assert.Empty(t, ParseDshowDevices("ffmpeg: command not found"))
}

func TestParseDshowOptions(t *testing.T) {
	assert.Equal(t, []Mode{
		{PixFmt: "mjpeg", Width: 1280, Height: 720, FPS: 30},
		{PixFmt: "mjpeg", Width: 1920, Height: 1080, FPS: 60},
		{PixFmt: "yuyv422", Width: 640, Height: 480, FPS: 30},
		{PixFmt: "nv12", Width: 1280, Height: 720, FPS: 10},
	}, ParseDshowOptions(dshowOptions))
}

func TestParseV4L2Devices(t *testing.T) {
	assert.Equal(t, []V4L2Device{
		{Name: "HD Pro Webcam C920", Path: "/dev/video0"},
		{Name: "Dummy video device", Path: "/dev/video4"},
	}, ParseV4L2Devices(v4l2Devices))
}

func TestParseV4L2Formats(t *testing.T) {
	assert.Equal(t, []Mode{
		{PixFmt: "yuyv422", Width: 640, Height: 480, FPS: 30},
		{PixFmt: "mjpeg", Width: 1920, Height: 1080, FPS: 30},
		{PixFmt: "mjpeg", Width: 1280, Height: 720, FPS: 60},
		{PixFmt: "mjpeg", Width: 2304, Height: 1536, FPS: 2},
	}, ParseV4L2Formats(v4l2Formats))
}

func TestModeString(t *testing.T) {
	m := Mode{Width: 1280, Height: 720, FPS: 30}
	assert.Equal(t, "1280x720@30fps", m.String())
	assert.Equal(t, "1280x720", m.Size())

	parsed, err := ParseMode(m.String())
	require.NoError(t, err)
	assert.Equal(t, m, parsed)

	parsed, err = ParseMode("640x480@15")
	require.NoError(t, err)
	assert.Equal(t, Mode{Width: 640, Height: 480, FPS: 15}, parsed)

	for _, bad := range []string{"", "1280x720", "1280x720@0fps", "axb@30fps", "0x720@30fps"} {
		_, err := ParseMode(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolutions(t *testing.T) {
	modes := ParseV4L2Formats(v4l2Formats)
	got := Resolutions(modes)
	var labels []string
	for _, m := range got {
		labels = append(labels, m.String())
	}
	assert.Equal(t, []string{"2304x1536@2fps", "1920x1080@30fps", "1280x720@60fps"}, labels)

	raw := Resolutions([]Mode{{PixFmt: "yuyv422", Width: 640, Height: 480, FPS: 30}})
	assert.Equal(t, []Mode{{PixFmt: "yuyv422", Width: 640, Height: 480, FPS: 30}}, raw)
}

func TestPickBest(t *testing.T) {
	best := PickBest(ParseV4L2Formats(v4l2Formats))
	assert.Equal(t, Mode{PixFmt: "mjpeg", Width: 1280, Height: 720, FPS: 60}, best)

	best = PickBest(ParseDshowOptions(dshowOptions))
	assert.Equal(t, Mode{PixFmt: "mjpeg", Width: 1920, Height: 1080, FPS: 60}, best)

	assert.Equal(t, Mode{PixFmt: "unknown", Width: 1280, Height: 720, FPS: 30}, PickBest(nil))
}

type fakeRunner map[string]string

func (f fakeRunner) run(_ context.Context, name string, args ...string) (string, error) {
	key := name + " " + strings.Join(args, " ")
	if out, ok := f[key]; ok {
		return out, errors.New("exit status 1")
	}
	return "", errors.New("not found")
}

func TestDetectWindows(t *testing.T) {
	runner := fakeRunner{
		"ffmpeg.exe -hide_banner -f dshow -list_devices true -i dummy":                    dshowDevices,
		"ffmpeg.exe -hide_banner -f dshow -list_options true -i video=Integrated Camera":  dshowOptions,
		"ffmpeg.exe -hide_banner -f dshow -list_options true -i video=OBS Virtual Camera": "",
	}
	d := &Detector{FfmpegPath: "ffmpeg.exe", Run: runner.run, GOOS: "windows"}
	cams := d.Detect(context.Background())
	require.Len(t, cams, 2)
	assert.Equal(t, "Integrated Camera", cams[0].Name)
	assert.Equal(t, "0", cams[0].ID)
	assert.Equal(t, "dshow", cams[0].Backend)
	assert.Len(t, cams[0].Modes, 4)
	assert.Equal(t, "Integrated Camera [0]", cams[0].Label())
	assert.Equal(t, "1", cams[1].ID)
	assert.Empty(t, cams[1].Modes)
}

func TestDetectLinux(t *testing.T) {
	runner := fakeRunner{
		"v4l2-ctl --list-devices":                    v4l2Devices,
		"v4l2-ctl -d /dev/video0 --list-formats-ext": v4l2Formats,
	}
	d := &Detector{Run: func(ctx context.Context, name string, args ...string) (string, error) {
		out, err := runner.run(ctx, name, args...)
		if out != "" {
			return out, nil
		}
		return out, err
	}, GOOS: "linux"}
	cams := d.Detect(context.Background())
	require.Len(t, cams, 1)
	assert.Equal(t, Camera{Name: "HD Pro Webcam C920", ID: "/dev/video0", Backend: "v4l2", Modes: ParseV4L2Formats(v4l2Formats)}, cams[0])
}

func TestDetectFallsBackToDefaultCamera(t *testing.T) {
	for _, goos := range []string{"windows", "linux", "darwin"} {
		d := &Detector{Run: fakeRunner{}.run, GOOS: goos}
		cams := d.Detect(context.Background())
		require.Len(t, cams, 1, goos)
		assert.Equal(t, DefaultCameraName, cams[0].Name)
		assert.Equal(t, "0", cams[0].ID)
		assert.Equal(t, DefaultCameraName, cams[0].Label())
	}
}

func TestModeChoices(t *testing.T) {
	c := Camera{Name: "C920", ID: "/dev/video0", Modes: ParseV4L2Formats(v4l2Formats)}
	modes, selected := c.ModeChoices()
	require.Len(t, modes, 3)
	assert.Equal(t, "1280x720@60fps", modes[selected].String())

	modes, selected = Camera{Name: DefaultCameraName, ID: "0"}.ModeChoices()
	assert.Empty(t, modes)
	assert.Equal(t, 0, selected)
}

func TestChooseMode(t *testing.T) {
	c := Camera{Name: "C920", ID: "/dev/video0", Modes: ParseV4L2Formats(v4l2Formats)}

	m, err := c.ChooseMode("best")
	require.NoError(t, err)
	assert.Equal(t, Mode{PixFmt: "mjpeg", Width: 1280, Height: 720, FPS: 60}, m)

	m, err = c.ChooseMode("1920x1080@30fps")
	require.NoError(t, err)
	assert.Equal(t, Mode{PixFmt: "mjpeg", Width: 1920, Height: 1080, FPS: 30}, m)

	_, err = c.ChooseMode("800x600@30")
	assert.ErrorContains(t, err, "does not offer 800x600@30fps")

	_, err = c.ChooseMode("huge")
	assert.Error(t, err)

	m, err = Camera{Name: DefaultCameraName, ID: "0"}.ChooseMode("640x480@15")
	require.NoError(t, err)
	assert.Equal(t, Mode{Width: 640, Height: 480, FPS: 15}, m)
}

func TestFind(t *testing.T) {
	cameras := []Camera{{Name: "a", ID: "0"}, {Name: "b", ID: "/dev/video2"}}
	c, ok := Find(cameras, "/dev/video2")
	assert.True(t, ok)
	assert.Equal(t, "b", c.Name)
	_, ok = Find(cameras, "3")
	assert.False(t, ok)
}
