package app

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/owlcms/clickrec/internal/config"
	"github.com/owlcms/clickrec/internal/frame"
	"github.com/owlcms/clickrec/internal/session"
	"github.com/owlcms/clickrec/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type endlessCapture struct {
	mu     sync.Mutex
	closed bool
}

func (c *endlessCapture) Read() (frame.Frame, error) {
	time.Sleep(time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return frame.Frame{}, io.EOF
	}
	return frame.Frame{Width: 2, Height: 2, Channels: 3, Data: make([]byte, 12)}, nil
}

func (c *endlessCapture) Format() frame.Format {
	return frame.Format{Width: 2, Height: 2, Channels: 3, FPS: 30}
}

func (c *endlessCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestRequestUsesSaveDir(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.SaveDir = filepath.Join(t.TempDir(), "clips")
	a := build(cfg, "ffmpeg", "libx264", session.SourceFunc(func(context.Context, string) (session.Capture, error) {
		return &endlessCapture{}, nil
	}))
	a.now = func() time.Time { return time.Date(2024, 6, 1, 8, 30, 0, 0, time.Local) }

	req, err := a.Request("0", 5, true)
	require.NoError(t, err)
	assert.Equal(t, "0", req.CameraID)
	assert.Equal(t, 5*time.Second, req.Duration)
	assert.True(t, req.Grayscale)
	assert.Equal(t, "20240601_083000.mp4", filepath.Base(req.OutputPath))
	assert.DirExists(t, cfg.Recording.SaveDir)

	assert.Equal(t, "libx264", a.Encoder.Settings().Codec)
	assert.Equal(t, 23, a.Encoder.Settings().Quality)
}

func TestStatusFollowsController(t *testing.T) {
	cfg := config.Default()
	a := build(cfg, "ffmpeg", "libx264", session.SourceFunc(func(context.Context, string) (session.Capture, error) {
		return &endlessCapture{}, nil
	}))

	require.NoError(t, a.Controller.StartPreview(context.Background(), "0"))
	assert.Equal(t, status.Previewing, (<-a.Status.C).Code)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := a.Shutdown(ctx)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, status.Idle, (<-a.Status.C).Code)
}
