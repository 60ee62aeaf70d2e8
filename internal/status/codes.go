// Package status turns session events into short messages for the UI.
package status

const (
	Idle       = "IDLE" // Nothing running
	Previewing = "LIVE" // Camera open, not recording
	Recording  = "REC"  // Recording in progress
	Finalizing = "SAVE" // Encoder writing the file
	Ready      = "DONE" // Clip saved
	Failed     = "FAIL" // Camera or encoder error
)

// Message wraps a status code and message text
type Message struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

// IsError reports whether the message should be shown as an error.
func (m Message) IsError() bool {
	return m.Code == Failed
}

func (m Message) final() bool {
	return m.Code == Idle || m.Code == Ready || m.Code == Failed
}
