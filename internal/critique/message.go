package critique

import (
	"fmt"

	"github.com/google/uuid"
)

// ActionCapture is the only action the relay understands.
const ActionCapture = "capture"

// Message is the cross-context request sent from the controller to the relay.
type Message struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Mode   string `json:"mode"`
	Prompt string `json:"prompt,omitempty"`
}

// Reply is the relay's single answer to a Message.
type Reply struct {
	ID             string   `json:"id,omitempty"`
	Success        bool     `json:"success,omitempty"`
	Feedback       string   `json:"feedback,omitempty"`
	ProcessingTime *float64 `json:"processing_time,omitempty"`
	Error          bool     `json:"error,omitempty"`
	Kind           string   `json:"kind,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// NewCaptureMessage wraps a validated request for the relay.
func NewCaptureMessage(req Request) Message {
	return Message{
		ID:     uuid.NewString(),
		Action: ActionCapture,
		Mode:   string(req.Mode),
		Prompt: req.EffectivePrompt(),
	}
}

// Request validates the message and extracts the critique request.
func (m Message) Request() (Request, error) {
	if m.Action != ActionCapture {
		return Request{}, NewError(KindInvalidInput, fmt.Sprintf("unsupported action %q", m.Action), nil)
	}
	return NewRequest(m.Mode, m.Prompt)
}

// SuccessReply builds the reply for a completed analysis.
func SuccessReply(id string, resp Response) Reply {
	pt := resp.ProcessingTimeSeconds
	return Reply{ID: id, Success: true, Feedback: resp.Feedback, ProcessingTime: &pt}
}

// ErrorReply builds the reply for a failed request.
func ErrorReply(id string, err error) Reply {
	ce := AsError(err)
	return Reply{ID: id, Error: true, Kind: string(ce.Kind), Message: ce.Message}
}

// Decode turns a reply into the response it carries or the error it reports.
// Replies that are neither success nor error, or that answer a different
// message, are transport failures.
func (r Reply) Decode(wantID string) (Response, error) {
	if wantID != "" && r.ID != wantID {
		return Response{}, NewError(KindTransportFailed, "reply does not match request", fmt.Errorf("got id %q, want %q", r.ID, wantID))
	}
	switch {
	case r.Error:
		// InvalidInput is decided before a message is sent, so the relay
		// cannot legitimately report it.
		kind, ok := ParseKind(r.Kind)
		if !ok || kind == KindInvalidInput {
			kind = KindTransportFailed
		}
		msg := r.Message
		if msg == "" {
			msg = "relay reported an error without a message"
		}
		return Response{}, NewError(kind, msg, nil)
	case r.Success:
		resp := Response{Feedback: r.Feedback}
		if r.ProcessingTime != nil {
			resp.ProcessingTimeSeconds = *r.ProcessingTime
		}
		return resp, nil
	default:
		return Response{}, NewError(KindTransportFailed, "Failed to communicate with background relay", fmt.Errorf("malformed reply"))
	}
}
