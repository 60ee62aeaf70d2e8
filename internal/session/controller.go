package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/owlcms/clickrec/internal/frame"
	"github.com/owlcms/clickrec/internal/logging"
)

// DefaultOpenTimeout bounds how long StartPreview waits for a camera.
const DefaultOpenTimeout = 10 * time.Second

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithOpenTimeout sets the bounded wait applied to camera opens. Zero disables it.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Controller) { c.openTimeout = d }
}

// WithPreview registers a function receiving every captured frame. It is
// called on the worker goroutine and must not block for long.
func WithPreview(fn func(frame.Frame)) Option {
	return func(c *Controller) { c.preview = fn }
}

// WithListener registers a function called on every state change.
func WithListener(fn func(Event)) Option {
	return func(c *Controller) { c.listener = fn }
}

// WithRemove replaces the function used to discard partial output files.
func WithRemove(fn func(path string) error) Option {
	return func(c *Controller) { c.remove = fn }
}

// Controller owns at most one recording session at a time. Its methods are
// safe to call from the UI goroutine; frames are pulled on a worker goroutine.
type Controller struct {
	source      Source
	sink        Sink
	now         func() time.Time
	openTimeout time.Duration
	preview     func(frame.Frame)
	listener    func(Event)
	remove      func(path string) error

	mu       sync.Mutex
	sess     Session
	opening  bool
	capture  Capture
	writer   Writer
	stop     chan struct{}
	stopped  bool
	abortErr error
	done     chan struct{}
	result   Result
}

// New returns an idle controller using source for cameras and sink for encoders.
func New(source Source, sink Sink, opts ...Option) *Controller {
	done := make(chan struct{})
	close(done)
	c := &Controller{
		source:      source,
		sink:        sink,
		now:         time.Now,
		openTimeout: DefaultOpenTimeout,
		remove:      removeFile,
		sess:        Session{State: StateIdle},
		done:        done,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.State
}

// Session returns a snapshot of the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Done is closed when the current worker has released the camera and encoder.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Wait blocks until the current worker exits and returns how it ended.
func (c *Controller) Wait(ctx context.Context) (Result, error) {
	done := c.Done()
	select {
	case <-done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, nil
}

// StartPreview opens cameraID and starts pulling frames without recording.
func (c *Controller) StartPreview(ctx context.Context, cameraID string) error {
	c.mu.Lock()
	if c.opening || !c.sess.State.Terminal() {
		state := c.sess.State
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot start preview while %s", ErrInvalidState, state)
	}
	c.opening = true
	c.mu.Unlock()

	capture, err := c.open(ctx, cameraID)

	c.mu.Lock()
	c.opening = false
	if err != nil {
		changed := c.sess.State != StateIdle
		c.sess = Session{State: StateIdle}
		ev := c.eventLocked(nil)
		c.mu.Unlock()
		logging.ErrorLogger.Printf("Failed to open camera %q: %v", cameraID, err)
		if changed {
			c.emit(ev)
		}
		return err
	}

	c.sess = Session{
		ID:       uuid.NewString(),
		State:    StatePreviewing,
		CameraID: cameraID,
	}
	c.capture = capture
	c.writer = nil
	c.stop = make(chan struct{})
	c.stopped = false
	c.abortErr = nil
	c.done = make(chan struct{})
	c.result = Result{SessionID: c.sess.ID, State: StatePreviewing}
	ev := c.eventLocked(nil)
	go c.run(capture, c.stop, c.done)
	c.mu.Unlock()

	logging.InfoLogger.Printf("Session %s: preview started on camera %q (%+v)", ev.SessionID, cameraID, capture.Format())
	c.emit(ev)
	return nil
}

// StartRecording starts writing previewed frames to req.OutputPath. It is only
// valid while previewing.
func (c *Controller) StartRecording(req Request) error {
	c.mu.Lock()
	if c.sess.State != StatePreviewing || c.stopped {
		state := c.sess.State
		c.mu.Unlock()
		return fmt.Errorf("%w: cannot start recording while %s", ErrInvalidState, state)
	}
	if req.Duration <= 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidDuration, req.Duration)
	}
	if req.OutputPath == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: no output path", ErrInvalidRequest)
	}
	if req.CameraID == "" {
		req.CameraID = c.sess.CameraID
	} else if req.CameraID != c.sess.CameraID {
		previewing := c.sess.CameraID
		c.mu.Unlock()
		return fmt.Errorf("%w: camera %q requested but %q is being previewed", ErrInvalidState, req.CameraID, previewing)
	}

	format := c.capture.Format()
	if req.Grayscale {
		format = format.WithChannels(1)
	}
	w, err := c.sink.Open(req.OutputPath, format)
	if err != nil {
		encErr := &EncodeError{Op: "open", Err: err}
		c.abortErr = encErr
		c.requestStopLocked()
		done := c.done
		c.mu.Unlock()
		logging.ErrorLogger.Printf("Failed to start encoder for %s: %v", req.OutputPath, err)
		<-done
		return encErr
	}

	c.writer = w
	c.sess.Request = req
	c.sess.Start = c.now()
	c.sess.Elapsed = 0
	c.sess.Frames = 0
	c.sess.State = StateRecording
	c.result.OutputPath = req.OutputPath
	ev := c.eventLocked(nil)
	c.mu.Unlock()

	logging.InfoLogger.Printf("Session %s: recording %s to %s (grayscale=%t)", ev.SessionID, req.Duration, req.OutputPath, req.Grayscale)
	c.emit(ev)
	return nil
}

// Cancel stops the preview or recording in progress and discards partial
// output. It returns without waiting; use Wait or Done for completion.
// Calling it with nothing in progress does nothing.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.State != StatePreviewing && c.sess.State != StateRecording {
		return
	}
	logging.InfoLogger.Printf("Session %s: cancel requested while %s", c.sess.ID, c.sess.State)
	c.requestStopLocked()
}

func (c *Controller) requestStopLocked() {
	if !c.stopped {
		c.stopped = true
		close(c.stop)
	}
}

func (c *Controller) open(ctx context.Context, cameraID string) (Capture, error) {
	if c.openTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.openTimeout)
		defer cancel()
	}

	type opened struct {
		capture Capture
		err     error
	}
	ch := make(chan opened, 1)
	go func() {
		capture, err := c.source.Open(ctx, cameraID)
		ch <- opened{capture, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil {
			return nil, fmt.Errorf("%w: open camera %q: %w", ErrDeviceUnavailable, cameraID, o.err)
		}
		return o.capture, nil
	case <-ctx.Done():
		// The open may still complete; release whatever it returns.
		go func() {
			if o := <-ch; o.capture != nil {
				o.capture.Close()
			}
		}()
		return nil, fmt.Errorf("%w: open camera %q: %w", ErrDeviceUnavailable, cameraID, ctx.Err())
	}
}

// run is the frame-pull loop. Stop requests are honored at iteration boundaries.
func (c *Controller) run(capture Capture, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		if stopRequested(stop) {
			c.stopRun(capture)
			return
		}
		f, err := capture.Read()
		if stopRequested(stop) {
			c.stopRun(capture)
			return
		}
		if err != nil {
			c.readFailed(capture, err)
			return
		}
		if !c.tick(capture, f) {
			return
		}
	}
}

func stopRequested(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// tick handles one captured frame and reports whether the loop continues.
func (c *Controller) tick(capture Capture, f frame.Frame) bool {
	c.mu.Lock()
	preview := c.preview
	if c.sess.State != StateRecording {
		c.mu.Unlock()
		if preview != nil {
			preview(f)
		}
		return true
	}
	w, req := c.writer, c.sess.Request
	elapsed := c.now().Sub(c.sess.Start)
	if elapsed < c.sess.Elapsed {
		elapsed = c.sess.Elapsed
	}
	c.sess.Elapsed = elapsed
	written := c.sess.Frames
	c.mu.Unlock()

	if req.Grayscale {
		f = frame.Grayscale(f)
	}
	if preview != nil {
		preview(f)
	}
	if err := w.WriteFrame(f); err != nil {
		c.finalize(capture, &EncodeError{Op: "write", Elapsed: elapsed, Frame: written, Err: err}, false)
		return false
	}

	c.mu.Lock()
	c.sess.Frames++
	c.mu.Unlock()

	if elapsed >= req.Duration {
		logging.InfoLogger.Printf("Session %s: duration %s reached after %d frames", c.Session().ID, req.Duration, written+1)
		c.finalize(capture, nil, false)
		return false
	}
	return true
}

// stopRun ends the run after a cancel or an aborted recording start.
func (c *Controller) stopRun(capture Capture) {
	c.mu.Lock()
	state := c.sess.State
	c.mu.Unlock()

	if state == StateRecording {
		c.finalize(capture, nil, true)
		return
	}
	c.release(capture)

	c.mu.Lock()
	c.result.Err = c.abortErr
	c.result.Cancelled = c.abortErr == nil
	c.endLocked(StateIdle)
	ev := c.eventLocked(c.abortErr)
	c.mu.Unlock()
	logging.InfoLogger.Printf("Session %s: preview stopped", ev.SessionID)
	c.emit(ev)
}

func (c *Controller) readFailed(capture Capture, err error) {
	var cause error
	if !errors.Is(err, io.EOF) {
		cause = fmt.Errorf("%w: read frame: %w", ErrDeviceUnavailable, err)
	}

	c.mu.Lock()
	state := c.sess.State
	if state != StateRecording {
		// The run is ending; StartRecording must not attach a writer now.
		c.requestStopLocked()
	}
	c.mu.Unlock()

	if state == StateRecording {
		if cause == nil {
			logging.WarningLogger.Printf("Camera stream ended before the requested duration")
		}
		c.finalize(capture, cause, false)
		return
	}
	c.release(capture)

	c.mu.Lock()
	c.result.Err = cause
	c.endLocked(StateIdle)
	ev := c.eventLocked(cause)
	c.mu.Unlock()
	if cause != nil {
		logging.ErrorLogger.Printf("Session %s: preview ended: %v", ev.SessionID, cause)
	}
	c.emit(ev)
}

// finalize closes the encoder and always releases the camera. cause is a
// failure that already happened; cancelled discards the output.
func (c *Controller) finalize(capture Capture, cause error, cancelled bool) {
	c.mu.Lock()
	c.sess.State = StateFinalizing
	w, req := c.writer, c.sess.Request
	ev := c.eventLocked(nil)
	c.mu.Unlock()
	c.emit(ev)

	finErr := w.Finalize()
	c.release(capture)

	c.mu.Lock()
	err := cause
	if err == nil && finErr != nil && !cancelled {
		err = &EncodeError{Op: "finalize", Elapsed: c.sess.Elapsed, Frame: c.sess.Frames, Err: finErr}
	}
	final := StateCompleted
	switch {
	case cancelled:
		final = StateIdle
	case err != nil:
		final = StateFailed
	}
	c.result.Cancelled = cancelled
	c.result.Err = err
	c.endLocked(final)
	frames := c.sess.Frames
	ev = c.eventLocked(err)
	c.mu.Unlock()

	if finErr != nil && cancelled {
		logging.WarningLogger.Printf("Session %s: encoder did not close cleanly on cancel: %v", ev.SessionID, finErr)
	}
	if final != StateCompleted {
		if rerr := c.remove(req.OutputPath); rerr != nil {
			logging.ErrorLogger.Printf("Failed to discard partial output %s: %v", req.OutputPath, rerr)
		} else {
			logging.InfoLogger.Printf("Discarded partial output %s", req.OutputPath)
		}
	}
	switch final {
	case StateCompleted:
		logging.InfoLogger.Printf("Session %s: saved %s (%d frames, %s)", ev.SessionID, req.OutputPath, frames, ev.Elapsed.Round(time.Millisecond))
	case StateFailed:
		logging.ErrorLogger.Printf("Session %s: recording failed after %s: %v", ev.SessionID, ev.Elapsed.Round(time.Millisecond), err)
	default:
		logging.InfoLogger.Printf("Session %s: recording cancelled", ev.SessionID)
	}
	c.emit(ev)
}

func (c *Controller) release(capture Capture) {
	if err := capture.Close(); err != nil {
		logging.WarningLogger.Printf("Failed to close camera: %v", err)
	}
}

func (c *Controller) endLocked(final State) {
	c.sess.State = final
	c.capture = nil
	c.writer = nil
	c.result.SessionID = c.sess.ID
	c.result.State = final
	c.result.Elapsed = c.sess.Elapsed
	c.result.Frames = c.sess.Frames
}

func (c *Controller) eventLocked(err error) Event {
	return Event{SessionID: c.sess.ID, State: c.sess.State, Elapsed: c.sess.Elapsed, Err: err}
}

func (c *Controller) emit(ev Event) {
	if c.listener != nil {
		c.listener(ev)
	}
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
