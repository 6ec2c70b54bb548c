// Package notify
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/guildkit/treasury-backend/types"
)

// ConsoleSink writes a human-formatted multi-line message. It only fails
// when the output stream does.
type ConsoleSink struct {
	w io.Writer
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Name() string {
	return "console"
}

func (s *ConsoleSink) Deliver(ctx context.Context, event types.Event) error {
	title := event.Title
	if title == "" {
		title = string(event.Type)
	}
	msg := fmt.Sprintf("%s [%s] %s\n", event.Timestamp.Format("2006-01-02 15:04:05"), event.Type, title)
	if event.GroupID != "" {
		msg += fmt.Sprintf("  group:    %s\n", event.GroupID)
	}
	if event.ProposalID != "" {
		msg += fmt.Sprintf("  proposal: %s\n", event.ProposalID)
	}
	if event.Urgency != "" {
		msg += fmt.Sprintf("  urgency:  %s\n", event.Urgency)
	}
	if event.Body != "" {
		msg += fmt.Sprintf("  %s\n", event.Body)
	}
	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for k := range event.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg += fmt.Sprintf("  %s: %v\n", k, event.Fields[k])
		}
	}
	_, err := io.WriteString(s.w, msg)
	return err
}
