// Package notify
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/guildkit/treasury-backend/types"
)

// EmailSink is best-effort: it hands the event to a mail relay endpoint and
// does not retry. Hosts that need real SMTP put their relay behind it.
type EmailSink struct {
	endpoint string
	from     string
	to       []string
	client   *http.Client
}

func NewEmailSink(endpoint, from string, to []string, timeout time.Duration) *EmailSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EmailSink{
		endpoint: endpoint,
		from:     from,
		to:       to,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *EmailSink) Name() string {
	return "email"
}

func (s *EmailSink) Deliver(ctx context.Context, event types.Event) error {
	subject := event.Title
	if subject == "" {
		subject = string(event.Type)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"from":    s.from,
		"to":      s.to,
		"subject": fmt.Sprintf("[treasury] %s", subject),
		"body":    event.Body,
		"event":   event,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail relay returned %d", resp.StatusCode)
	}
	return nil
}
