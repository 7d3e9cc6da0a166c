package journal

import (
	"errors"
	"time"

	"github.com/dgnsrekt/chatsnap/internal/capture"
)

// Record is one journal line describing a capture attempt.
type Record struct {
	Time         time.Time `json:"time"`
	Source       string    `json:"source"`
	Mode         string    `json:"mode"`
	OK           bool      `json:"ok"`
	ID           string    `json:"id,omitempty"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	ScrollTop    float64   `json:"scroll_top"`
	Bubbles      int       `json:"bubbles"`
	SettleReason string    `json:"settle_reason,omitempty"`
	SettleFrames int       `json:"settle_frames"`
	DurationMS   int64     `json:"duration_ms"`
	ErrorCode    string    `json:"error_code,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// FromAttempt flattens a pipeline attempt. The screenshot payload is never
// written to the journal.
func FromAttempt(a capture.Attempt) Record {
	r := Record{
		Time:         a.StartedAt,
		Source:       a.Options.Source,
		Mode:         a.Options.Mode,
		OK:           a.Err == nil,
		Bubbles:      a.Bubbles,
		SettleReason: a.Settle.Reason,
		SettleFrames: a.Settle.Frames,
		DurationMS:   a.Duration.Milliseconds(),
	}
	if a.Shot != nil {
		r.ID = a.Shot.ID
		r.Width = a.Shot.Width
		r.Height = a.Shot.Height
		r.ScrollTop = a.Shot.ScrollTop
	}
	if a.Err != nil {
		r.Error = a.Err.Error()
		var coded *capture.CodedError
		if errors.As(a.Err, &coded) {
			r.ErrorCode = coded.Code
		}
	}
	return r
}

// Observer returns a pipeline observer that journals every attempt.
func (w *Writer) Observer() capture.Observer {
	return func(a capture.Attempt) {
		_ = w.Write(FromAttempt(a))
	}
}
