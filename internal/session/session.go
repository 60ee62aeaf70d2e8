// Package session implements the timed recording controller: it pulls frames
// from a camera, optionally converts them to grayscale, forwards them to a video
// sink and stops on the first frame at or past the requested duration.
package session

import (
	"context"
	"time"

	"github.com/owlcms/clickrec/internal/frame"
)

// Capture is an open camera. Read returns io.EOF when the stream has ended.
type Capture interface {
	Read() (frame.Frame, error)
	Format() frame.Format
	Close() error
}

// Source opens cameras by identifier.
type Source interface {
	Open(ctx context.Context, cameraID string) (Capture, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, cameraID string) (Capture, error)

func (f SourceFunc) Open(ctx context.Context, cameraID string) (Capture, error) {
	return f(ctx, cameraID)
}

// Writer is an open video file being encoded.
type Writer interface {
	WriteFrame(frame.Frame) error
	Finalize() error
}

// Sink opens encoders writing to a path.
type Sink interface {
	Open(path string, format frame.Format) (Writer, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(path string, format frame.Format) (Writer, error)

func (f SinkFunc) Open(path string, format frame.Format) (Writer, error) {
	return f(path, format)
}

// Request describes one recording. It is not modified once recording starts.
type Request struct {
	CameraID   string
	Duration   time.Duration
	Grayscale  bool
	OutputPath string
}

// DurationFromSeconds converts a user supplied number of seconds.
func DurationFromSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// Session is a snapshot of the controller's current session.
type Session struct {
	ID       string
	State    State
	CameraID string
	Request  Request
	Start    time.Time
	Elapsed  time.Duration
	Frames   int
}

// Remaining is the time left before the recording stops on its own.
func (s Session) Remaining() time.Duration {
	if s.State != StateRecording {
		return 0
	}
	if r := s.Request.Duration - s.Elapsed; r > 0 {
		return r
	}
	return 0
}

// Result describes how a worker run ended.
type Result struct {
	SessionID  string
	State      State
	Elapsed    time.Duration
	Frames     int
	OutputPath string
	Cancelled  bool
	Err        error
}

// Event is delivered to the listener on every state change.
type Event struct {
	SessionID string
	State     State
	Elapsed   time.Duration
	Err       error
}
