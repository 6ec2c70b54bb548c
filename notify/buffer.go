// Package notify
package notify

import (
	"context"
	"sync"

	"github.com/guildkit/treasury-backend/types"
)

// EventBuffer retains recent notifications for diagnostic inspection.
// Buffers are bounded; the oldest event is evicted first.
type EventBuffer interface {
	Push(ctx context.Context, event types.Event) error
	// Recent returns up to n events, newest first.
	Recent(ctx context.Context, n int) ([]types.Event, error)
}

type memBuffer struct {
	mu     sync.Mutex
	events []types.Event
	cap    int
}

func newMemBuffer(size int) *memBuffer {
	return &memBuffer{cap: size}
}

func (b *memBuffer) Push(ctx context.Context, event types.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if len(b.events) > b.cap {
		b.events = b.events[len(b.events)-b.cap:]
	}
	return nil
}

func (b *memBuffer) Recent(ctx context.Context, n int) ([]types.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.events) {
		n = len(b.events)
	}
	out := make([]types.Event, 0, n)
	for i := len(b.events) - 1; i >= len(b.events)-n; i-- {
		out = append(out, b.events[i])
	}
	return out, nil
}
