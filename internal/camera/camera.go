// Package camera captures frames from local cameras, video files and streams
// with OpenCV.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/owlcms/clickrec/internal/config"
	"github.com/owlcms/clickrec/internal/frame"
	"github.com/owlcms/clickrec/internal/logging"
	"github.com/owlcms/clickrec/internal/session"
	"gocv.io/x/gocv"
)

// maxEmptyReads is how many empty frames in a row are skipped while a camera
// warms up before the stream is treated as ended.
const maxEmptyReads = 50

var backends = map[string]gocv.VideoCaptureAPI{
	"":          gocv.VideoCaptureAny,
	"any":       gocv.VideoCaptureAny,
	"dshow":     gocv.VideoCaptureDshow,
	"msmf":      gocv.VideoCaptureMSMF,
	"v4l2":      gocv.VideoCaptureV4L2,
	"ffmpeg":    gocv.VideoCaptureFFmpeg,
	"gstreamer": gocv.VideoCaptureGstreamer,
}

// Options are applied to every camera opened.
type Options struct {
	Backend string
	Width   int
	Height  int
	FPS     int
	MJPEG   bool
}

// Opener opens cameras with OpenCV. It implements session.Source.
type Opener struct {
	mu   sync.Mutex
	opts Options
}

// NewOpener checks the backend name and returns an opener.
func NewOpener(opts Options) (*Opener, error) {
	if _, ok := backends[strings.ToLower(opts.Backend)]; !ok {
		return nil, fmt.Errorf("unknown capture backend %q", opts.Backend)
	}
	return &Opener{opts: opts}, nil
}

// SetMode changes the size and frame rate requested by later opens. Zero
// values leave the driver's choice.
func (o *Opener) SetMode(width, height, fps int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opts.Width, o.opts.Height, o.opts.FPS = width, height, fps
}

// Options returns the options the next open will use.
func (o *Opener) Options() Options {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opts
}

// Open opens id, a device index such as "0" or a device path, file or URL.
// OpenCV offers no way to abort an open in progress; if ctx expires first the
// camera is closed as soon as the open returns.
func (o *Opener) Open(ctx context.Context, id string) (session.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := o.Options()
	api := backends[strings.ToLower(opts.Backend)]

	var vc *gocv.VideoCapture
	var err error
	if index, convErr := strconv.Atoi(id); convErr == nil {
		vc, err = gocv.VideoCaptureDeviceWithAPI(index, api)
	} else {
		if !strings.HasPrefix(id, "/dev/") {
			api = gocv.VideoCaptureAny
		}
		vc, err = gocv.OpenVideoCaptureWithAPI(id, api)
	}
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %q did not open", id)
	}
	if err := ctx.Err(); err != nil {
		vc.Close()
		return nil, err
	}

	configure(vc, opts)
	c := &Capture{id: id, vc: vc, mat: gocv.NewMat()}
	c.format = c.probeFormat(opts.FPS)
	logging.InfoLogger.Printf("Camera %q opened at %dx%d@%dfps (fourcc %s)", id, c.format.Width, c.format.Height, c.format.FPS, vc.CodecString())
	return c, nil
}

func configure(vc *gocv.VideoCapture, opts Options) {
	if opts.MJPEG {
		vc.Set(gocv.VideoCaptureFOURCC, vc.ToCodec("MJPG"))
	}
	if opts.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}
	if opts.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(opts.FPS))
	}
}

// Capture is an open OpenCV capture.
type Capture struct {
	id  string
	vc  *gocv.VideoCapture
	mat gocv.Mat

	fmtMu  sync.Mutex
	format frame.Format

	mu     sync.Mutex
	closed bool
}

// probeFormat reads back what the driver granted. Width and height come from
// the first frame when the driver reports zero.
func (c *Capture) probeFormat(requestedFPS int) frame.Format {
	f := frame.Format{
		Width:    int(c.vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:   int(c.vc.Get(gocv.VideoCaptureFrameHeight)),
		Channels: 3,
		FPS:      int(math.Round(c.vc.Get(gocv.VideoCaptureFPS))),
	}
	if f.FPS <= 0 || f.FPS > 240 {
		f.FPS = requestedFPS
	}
	if f.FPS <= 0 {
		f.FPS = 30
	}
	return f
}

// Format describes the frames Read returns.
func (c *Capture) Format() frame.Format {
	c.fmtMu.Lock()
	defer c.fmtMu.Unlock()
	return c.format
}

// Read blocks for the next frame. It returns io.EOF when the stream ends.
func (c *Capture) Read() (frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return frame.Frame{}, errors.New("camera closed")
	}

	for empty := 0; empty < maxEmptyReads; empty++ {
		if ok := c.vc.Read(&c.mat); !ok {
			return frame.Frame{}, io.EOF
		}
		if c.mat.Empty() {
			continue
		}
		return c.toFrame()
	}
	return frame.Frame{}, io.EOF
}

func (c *Capture) toFrame() (frame.Frame, error) {
	f := frame.Frame{
		Width:    c.mat.Cols(),
		Height:   c.mat.Rows(),
		Channels: c.mat.Channels(),
		Data:     c.mat.ToBytes(),
	}
	if err := f.Validate(); err != nil {
		return frame.Frame{}, fmt.Errorf("camera %q: %w", c.id, err)
	}
	c.fmtMu.Lock()
	defer c.fmtMu.Unlock()
	if f.Width != c.format.Width || f.Height != c.format.Height || f.Channels != c.format.Channels {
		if c.format.Width != 0 && c.format.Height != 0 {
			return frame.Frame{}, fmt.Errorf("camera %q changed to %dx%dx%d", c.id, f.Width, f.Height, f.Channels)
		}
		c.format = f.Format(c.format.FPS)
	}
	return f, nil
}

// Close releases the camera. It is safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.vc.Close()
}

// OptionsFromConfig maps the [camera] section of config.toml.
func OptionsFromConfig(c config.CameraConfig) Options {
	return Options{Backend: c.Backend, Width: c.Width, Height: c.Height, FPS: c.FPS, MJPEG: c.MJPEG}
}
