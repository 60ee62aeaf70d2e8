package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceUnavailable means the camera could not be opened or read.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrInvalidDuration means the requested duration is missing or not positive.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrInvalidState means the operation is not allowed in the current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidRequest means the recording request is incomplete.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEncode means the video sink failed to open, write or finalize.
	ErrEncode = errors.New("encode error")
)

// EncodeError reports a video sink failure with the session progress at the time.
type EncodeError struct {
	Op      string // open, write or finalize
	Elapsed time.Duration
	Frame   int // frames written before the failure
	Err     error
}

func (e *EncodeError) Error() string {
	if e.Op == "open" {
		return fmt.Sprintf("encode error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("encode error: %s after %d frames (%s): %v", e.Op, e.Frame, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEncode) match any EncodeError.
func (e *EncodeError) Is(target error) bool { return target == ErrEncode }
