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

// ChatSink formats a short message with a severity color and an emoji per
// event kind, then posts it to a chat endpoint (slack/discord-compatible
// attachment shape).
type ChatSink struct {
	endpoint string
	client   *http.Client
}

func NewChatSink(endpoint string, timeout time.Duration) *ChatSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ChatSink{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *ChatSink) Name() string {
	return "chat"
}

func severityColor(event types.Event) string {
	switch event.Urgency {
	case types.UrgencyEmergency:
		return "#e01e5a" // red
	case types.UrgencyHigh:
		return "#ecb22e" // amber
	}
	if event.Type == types.EventExecuted {
		return "#2eb67d" // green
	}
	return "#36c5f0" // blue
}

func eventEmoji(t types.EventType) string {
	switch t {
	case types.EventNewProposal:
		return "📝"
	case types.EventApproval:
		return "✅"
	case types.EventReadyForExecution:
		return "🚀"
	case types.EventExecuted:
		return "🎉"
	case types.EventUrgentProposal:
		return "🚨"
	case types.EventDailySummary:
		return "📊"
	}
	return "🔔"
}

func (s *ChatSink) Deliver(ctx context.Context, event types.Event) error {
	title := event.Title
	if title == "" {
		title = string(event.Type)
	}
	text := fmt.Sprintf("%s %s", eventEmoji(event.Type), title)
	if event.Body != "" {
		text += "\n" + event.Body
	}
	if event.ProposalID != "" {
		text += fmt.Sprintf("\nproposal `%s`", event.ProposalID)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"attachments": []map[string]interface{}{
			{"color": severityColor(event), "text": text},
		},
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
		return fmt.Errorf("chat endpoint returned %d", resp.StatusCode)
	}
	return nil
}
