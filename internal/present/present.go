// Package present turns controller outcomes into the records and labels the
// control panel renders.
package present

import (
	"fmt"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	NoFeedbackText  = "No feedback received from the AI."
	SuccessHeadline = "Analysis complete!"
)

// Tick is published once per elapsed second while a request is in flight.
type Tick struct {
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Label          string `json:"label"`
	QueryTime      string `json:"query_time"`
}

// Terminal is the final record of one request.
type Terminal struct {
	Status         string   `json:"status"`
	Feedback       string   `json:"feedback,omitempty"`
	Message        string   `json:"message,omitempty"`
	Kind           string   `json:"kind,omitempty"`
	ElapsedSeconds int      `json:"elapsed_seconds"`
	ProcessingTime *float64 `json:"processing_time,omitempty"`
	Headline       string   `json:"headline"`
	QueryTime      string   `json:"query_time"`
}

func NewTick(seconds int) Tick {
	return Tick{ElapsedSeconds: seconds, Label: TickLabel(seconds), QueryTime: QueryTimeLabel(seconds, "")}
}

// FromOutcome builds the terminal record for o.
func FromOutcome(o critique.Outcome) Terminal {
	if !o.OK() {
		return Terminal{
			Status:         StatusError,
			Message:        o.Err.Message,
			Kind:           string(o.Err.Kind),
			ElapsedSeconds: o.ElapsedSeconds,
			Headline:       "Error: " + o.Err.Message,
			QueryTime:      QueryTimeLabel(o.ElapsedSeconds, StatusError),
		}
	}

	feedback := o.Response.Feedback
	if feedback == "" {
		feedback = NoFeedbackText
	}
	pt := o.Response.ProcessingTimeSeconds
	return Terminal{
		Status:         StatusSuccess,
		Feedback:       feedback,
		ElapsedSeconds: o.ElapsedSeconds,
		ProcessingTime: &pt,
		Headline:       SuccessHeadline,
		QueryTime:      QueryTimeLabel(o.ElapsedSeconds, StatusSuccess),
	}
}

func TickLabel(seconds int) string {
	return fmt.Sprintf("⏳ %ds", seconds)
}

// QueryTimeLabel renders the elapsed-time line. status is "" while running.
func QueryTimeLabel(seconds int, status string) string {
	switch status {
	case StatusSuccess:
		return fmt.Sprintf("Query Time: %ds (completed)", seconds)
	case StatusError:
		return fmt.Sprintf("Query Time: %ds (error)", seconds)
	default:
		return fmt.Sprintf("Query Time: %ds", seconds)
	}
}
