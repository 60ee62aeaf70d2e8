// Package devices enumerates the cameras attached to this machine and the
// capture modes they offer.
package devices

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/owlcms/clickrec/internal/ffmpeg"
	"github.com/owlcms/clickrec/internal/logging"
)

// DefaultCameraName is listed when no camera could be enumerated.
const DefaultCameraName = "Default Camera"

// Camera is a detected capture device.
type Camera struct {
	Name    string
	ID      string // passed to camera.Opener: an index or a device path
	Backend string // dshow, v4l2 or any
	Modes   []Mode
}

// Label is the text shown in camera pickers.
func (c Camera) Label() string {
	if c.Name == DefaultCameraName {
		return c.Name
	}
	return fmt.Sprintf("%s [%s]", c.Name, c.ID)
}

// Best returns the preferred capture mode of the camera.
func (c Camera) Best() Mode {
	return PickBest(c.Modes)
}

// ModeChoices returns the modes offered in pickers and the index of the one to
// preselect: the best mode when it is listed, otherwise the first.
func (c Camera) ModeChoices() ([]Mode, int) {
	modes := Resolutions(c.Modes)
	best := c.Best()
	for i, m := range modes {
		if m.Width == best.Width && m.Height == best.Height && m.FPS == best.FPS {
			return modes, i
		}
	}
	return modes, 0
}

// ChooseMode resolves a mode typed by the user: "best" or WxH@Nfps. A named
// mode must be one the camera reports, unless it reports none.
func (c Camera) ChooseMode(s string) (Mode, error) {
	if strings.EqualFold(s, "best") {
		return c.Best(), nil
	}
	want, err := ParseMode(s)
	if err != nil {
		return Mode{}, err
	}
	if len(c.Modes) == 0 {
		return want, nil
	}
	for _, m := range c.Modes {
		if m.Width == want.Width && m.Height == want.Height && m.FPS == want.FPS {
			return m, nil
		}
	}
	var offered []string
	for _, m := range Resolutions(c.Modes) {
		offered = append(offered, m.String())
	}
	return Mode{}, fmt.Errorf("%s does not offer %s (available: %s)", c.Label(), want, strings.Join(offered, ", "))
}

// Find returns the camera with the given ID.
func Find(cameras []Camera, id string) (Camera, bool) {
	for _, c := range cameras {
		if c.ID == id {
			return c, true
		}
	}
	return Camera{}, false
}

// Runner runs a listing tool and returns everything it printed. The error is
// informational: ffmpeg exits non-zero after listing dshow devices.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// Detector lists cameras with ffmpeg (Windows) or v4l2-ctl (Linux).
type Detector struct {
	FfmpegPath string
	Run        Runner
	GOOS       string
}

// NewDetector returns a detector for the running platform.
func NewDetector(ffmpegPath string) *Detector {
	return &Detector{FfmpegPath: ffmpegPath, Run: ffmpeg.Output, GOOS: runtime.GOOS}
}

// Detect returns the cameras found, or a single default camera at index 0
// when none could be listed.
func (d *Detector) Detect(ctx context.Context) []Camera {
	var cameras []Camera
	switch d.GOOS {
	case "windows":
		cameras = d.detectDshow(ctx)
	case "linux":
		cameras = d.detectV4L2(ctx)
	}
	if len(cameras) == 0 {
		logging.WarningLogger.Printf("No camera detected, offering %q", DefaultCameraName)
		return []Camera{{Name: DefaultCameraName, ID: "0", Backend: "any"}}
	}
	for _, c := range cameras {
		logging.InfoLogger.Printf("Camera %s: %d modes, best %s %s", c.Label(), len(c.Modes), c.Best().PixFmt, c.Best())
	}
	return cameras
}

func (d *Detector) detectDshow(ctx context.Context) []Camera {
	path := d.FfmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	out, _ := d.Run(ctx, path, "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy")
	names := ParseDshowDevices(out)

	var cameras []Camera
	for i, name := range names {
		opts, _ := d.Run(ctx, path, "-hide_banner", "-f", "dshow", "-list_options", "true", "-i", "video="+name)
		cameras = append(cameras, Camera{
			Name:    name,
			ID:      strconv.Itoa(i),
			Backend: "dshow",
			Modes:   ParseDshowOptions(opts),
		})
	}
	return cameras
}

func (d *Detector) detectV4L2(ctx context.Context) []Camera {
	out, err := d.Run(ctx, "v4l2-ctl", "--list-devices")
	if err != nil && strings.TrimSpace(out) == "" {
		logging.ErrorLogger.Printf("v4l2-ctl --list-devices failed: %v", err)
		return nil
	}

	var cameras []Camera
	for _, dev := range ParseV4L2Devices(out) {
		formats, err := d.Run(ctx, "v4l2-ctl", "-d", dev.Path, "--list-formats-ext")
		if err != nil {
			logging.ErrorLogger.Printf("Failed to probe %s: %v", dev.Path, err)
			continue
		}
		modes := ParseV4L2Formats(formats)
		if len(modes) == 0 {
			continue
		}
		cameras = append(cameras, Camera{Name: dev.Name, ID: dev.Path, Backend: "v4l2", Modes: modes})
	}
	return cameras
}
