package status

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/owlcms/clickrec/internal/session"
)

// Channel buffers messages for a single UI consumer.
type Channel struct {
	C chan Message
}

// NewChannel returns a channel holding up to size undelivered messages.
func NewChannel(size int) *Channel {
	return &Channel{C: make(chan Message, size)}
}

// Send delivers msg without blocking. When the consumer is behind, progress
// messages are dropped; a message ending the session evicts the oldest queued
// message instead so the UI always learns how it ended.
func (c *Channel) Send(msg Message) bool {
	for {
		select {
		case c.C <- msg:
			return true
		default:
		}
		if !msg.final() {
			return false
		}
		select {
		case <-c.C:
		default:
		}
	}
}

// Listener returns a session listener forwarding every event. path returns the
// output file of the recording, used in the Ready message.
func (c *Channel) Listener(path func() string) func(session.Event) {
	return func(ev session.Event) {
		c.Send(FromEvent(ev, path()))
	}
}

// FromEvent describes a session event. outputPath may be empty.
func FromEvent(ev session.Event, outputPath string) Message {
	switch ev.State {
	case session.StatePreviewing:
		return Message{Code: Previewing, Text: "Previewing"}
	case session.StateRecording:
		return Message{Code: Recording, Text: "Recording"}
	case session.StateFinalizing:
		return Message{Code: Finalizing, Text: fmt.Sprintf("Saving after %s", ev.Elapsed.Round(100*time.Millisecond))}
	case session.StateCompleted:
		name := filepath.Base(outputPath)
		if outputPath == "" {
			name = "clip"
		}
		return Message{Code: Ready, Text: fmt.Sprintf("Saved %s (%s)", name, ev.Elapsed.Round(100*time.Millisecond))}
	case session.StateFailed:
		return Message{Code: Failed, Text: fmt.Sprintf("Error: %v", ev.Err)}
	default:
		if ev.Err != nil {
			return Message{Code: Failed, Text: fmt.Sprintf("Error: %v", ev.Err)}
		}
		return Message{Code: Idle, Text: "Ready"}
	}
}

// Countdown formats the time left in a recording as whole seconds, rounded up.
func Countdown(remaining time.Duration) string {
	if remaining <= 0 {
		return "0"
	}
	return fmt.Sprintf("%d", int((remaining+time.Second-1)/time.Second))
}
