package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgnsrekt/design_assistant/internal/critique"
)

// DefaultEndpoint is where the check server listens by default.
const DefaultEndpoint = "http://localhost:5001/api/check"

const (
	maxErrorBodyBytes    = 512
	maxErrorExcerptRunes = 200
	maxSuccessBodyBytes  = 8 << 20
)

type checkRequest struct {
	Image  string `json:"image"`
	Mode   string `json:"mode"`
	Prompt string `json:"prompt,omitempty"`
}

type checkResponse struct {
	Feedback       *string  `json:"feedback"`
	ProcessingTime *float64 `json:"processing_time"`
}

// Client posts one capture to the analysis service and parses the answer.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a Client for endpoint. A zero timeout means no client-side limit.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

// NewClientWithHTTP lets callers supply their own transport.
func NewClientWithHTTP(endpoint string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{endpoint: endpoint, http: hc}
}

func (c *Client) Endpoint() string { return c.endpoint }

// Analyze sends image, mode and (custom mode only) prompt to the service.
// It fails with TransportFailed when the endpoint cannot be reached and with
// RemoteServiceFailed when it answers with a non-2xx status or an unusable body.
func (c *Client) Analyze(ctx context.Context, capture critique.CaptureResult, mode critique.Mode, prompt string) (critique.Response, error) {
	body := checkRequest{Image: capture.DataURL(), Mode: string(mode)}
	if mode == critique.ModeCustom {
		body.Prompt = prompt
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return critique.Response{}, critique.NewError(critique.KindTransportFailed, "encode analysis request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return critique.Response{}, critique.NewError(critique.KindTransportFailed, "build analysis request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	slog.Debug("analysis request", "endpoint", c.endpoint, "mode", mode, "image_bytes", len(capture.Image))
	resp, err := c.http.Do(req)
	if err != nil {
		return critique.Response{}, critique.NewError(critique.KindTransportFailed, "Error: "+err.Error(), err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("analysis response close failed", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		msg := fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)
		if s := strings.TrimSpace(string(excerpt)); s != "" {
			slog.Debug("analysis error body", "status", resp.StatusCode, "body", s)
			msg += ": " + truncateRunes(s, maxErrorExcerptRunes)
		}
		return critique.Response{}, critique.NewError(critique.KindRemoteServiceFailed, msg, nil)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSuccessBodyBytes))
	if err != nil {
		return critique.Response{}, critique.NewError(critique.KindTransportFailed, "read analysis response", err)
	}
	var parsed checkResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return critique.Response{}, critique.NewError(critique.KindRemoteServiceFailed, "unparsable analysis response", err)
	}
	if parsed.Feedback == nil {
		return critique.Response{}, critique.NewError(critique.KindRemoteServiceFailed, "analysis response has no feedback", nil)
	}

	out := critique.Response{Feedback: *parsed.Feedback}
	if parsed.ProcessingTime != nil {
		out.ProcessingTimeSeconds = *parsed.ProcessingTime
	}
	return out, nil
}

func truncateRunes(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
