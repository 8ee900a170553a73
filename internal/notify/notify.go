// Package notify posts critique completion messages to an ntfy topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dgnsrekt/design_assistant/internal/present"
)

const maxFeedbackExcerpt = 280

// Notifier sends plain-text notifications to one endpoint.
type Notifier struct {
	client   *http.Client
	endpoint string
}

// New returns nil when endpoint is empty; a nil Notifier ignores Notify.
func New(client *http.Client, endpoint string) *Notifier {
	if strings.TrimSpace(endpoint) == "" {
		return nil
	}
	return &Notifier{client: client, endpoint: endpoint}
}

// Notify reports the terminal record of a critique.
func (n *Notifier) Notify(ctx context.Context, mode string, rec present.Terminal) error {
	if n == nil {
		return nil
	}
	return Send(ctx, n.client, n.endpoint, Message(mode, rec))
}

// Message renders rec as a short notification body.
func Message(mode string, rec present.Terminal) string {
	if rec.Status != present.StatusSuccess {
		return fmt.Sprintf("Design critique (%s) failed after %ds [%s]: %s", mode, rec.ElapsedSeconds, rec.Kind, rec.Message)
	}
	feedback := strings.TrimSpace(rec.Feedback)
	if r := []rune(feedback); len(r) > maxFeedbackExcerpt {
		feedback = string(r[:maxFeedbackExcerpt]) + "..."
	}
	return fmt.Sprintf("Design critique (%s) completed in %ds\n\n%s", mode, rec.ElapsedSeconds, feedback)
}

// Send posts message to endpoint as text/plain.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if endpoint == "" {
		return errors.New("ntfy notification: missing endpoint")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "Design Assistant")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
