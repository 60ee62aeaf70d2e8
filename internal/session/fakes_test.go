package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/owlcms/clickrec/internal/frame"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeCapture hands out frames pushed by the test, advancing the clock by step
// for every frame read, or by the next entry of steps while any remain. With a
// nil frames channel it produces frames on its own.
type fakeCapture struct {
	frames chan frame.Frame
	clock  *fakeClock
	step   time.Duration
	steps  []time.Duration
	format frame.Format
	endErr error
	reads  atomic.Int32
	closes atomic.Int32

	// When closing is set, Close closes it and then waits for unblock.
	closing chan struct{}
	unblock chan struct{}
}

func newFakeCapture(clock *fakeClock, step time.Duration) *fakeCapture {
	return &fakeCapture{
		frames: make(chan frame.Frame),
		clock:  clock,
		step:   step,
		format: frame.Format{Width: 4, Height: 2, Channels: 3, FPS: 30},
	}
}

func (c *fakeCapture) Read() (frame.Frame, error) {
	var f frame.Frame
	if c.frames == nil {
		time.Sleep(time.Millisecond)
		f = colorFrame(c.format)
	} else {
		var ok bool
		if f, ok = <-c.frames; !ok {
			if c.endErr != nil {
				return frame.Frame{}, c.endErr
			}
			return frame.Frame{}, io.EOF
		}
	}
	c.reads.Add(1)
	if c.clock != nil {
		step := c.step
		if len(c.steps) > 0 {
			step, c.steps = c.steps[0], c.steps[1:]
		}
		c.clock.Advance(step)
	}
	return f, nil
}

func (c *fakeCapture) Format() frame.Format { return c.format }

func (c *fakeCapture) Close() error {
	c.closes.Add(1)
	if c.closing != nil {
		close(c.closing)
		<-c.unblock
	}
	return nil
}

type fakeSource struct {
	capture *fakeCapture
	err     error
	block   bool
	opens   atomic.Int32
}

func (s *fakeSource) Open(ctx context.Context, cameraID string) (Capture, error) {
	s.opens.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.capture, nil
}

type fakeSink struct {
	mu          sync.Mutex
	openErr     error
	failAt      int // 1-based write attempt that fails
	finalizeErr error
	path        string
	format      frame.Format
	attempts    int
	writes      []frame.Frame
	finalizes   int
}

func (s *fakeSink) Open(path string, format frame.Format) (Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.path = path
	s.format = format
	return &fakeWriter{sink: s}, nil
}

func (s *fakeSink) opened() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

func (s *fakeSink) written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *fakeSink) snapshot() (attempts int, writes []frame.Frame, finalizes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, append([]frame.Frame(nil), s.writes...), s.finalizes
}

type fakeWriter struct {
	sink *fakeSink
}

var errDiskFull = errors.New("disk full")

func (w *fakeWriter) WriteFrame(f frame.Frame) error {
	s := w.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failAt > 0 && s.attempts == s.failAt {
		return errDiskFull
	}
	s.writes = append(s.writes, f)
	return nil
}

func (w *fakeWriter) Finalize() error {
	s := w.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizes++
	return s.finalizeErr
}

type removals struct {
	mu    sync.Mutex
	paths []string
}

func (r *removals) remove(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	return nil
}

func (r *removals) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func colorFrame(f frame.Format) frame.Frame {
	data := make([]byte, f.Width*f.Height*f.Channels)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return frame.Frame{Width: f.Width, Height: f.Height, Channels: f.Channels, Data: data}
}

// push hands one frame to the worker. It returns false once the worker exited.
func push(t *testing.T, c *Controller, capture *fakeCapture) bool {
	t.Helper()
	select {
	case capture.frames <- colorFrame(capture.format):
		return true
	case <-c.Done():
		return false
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not take the frame")
		return false
	}
}

func wait(t *testing.T, c *Controller) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := c.Wait(ctx)
	if err != nil {
		t.Fatalf("worker did not finish: %v", err)
	}
	return res
}
