// Package notify
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/guildkit/treasury-backend/types"
)

// Sink delivers one event to one channel. Implementations own their own
// transport, formatting and timeout handling.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event types.Event) error
}

// Fanout dispatches events to every registered sink. A failing sink is
// logged and skipped; it never blocks or aborts delivery to the others and
// never fails the operation that emitted the event.
type Fanout struct {
	sinks       []Sink
	buffer      EventBuffer
	sinkTimeout time.Duration
	logger      *zap.Logger
}

type Config struct {
	// QueueSize bounds the recent-events buffer.
	QueueSize int
	// SinkTimeout is the per-sink delivery budget.
	SinkTimeout time.Duration
	// Buffer overrides the default in-memory buffer when set.
	Buffer EventBuffer

	Logger *zap.Logger
}

func NewFanout(cfg Config) *Fanout {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	buffer := cfg.Buffer
	if buffer == nil {
		buffer = newMemBuffer(cfg.QueueSize)
	}
	return &Fanout{
		buffer:      buffer,
		sinkTimeout: cfg.SinkTimeout,
		logger:      cfg.Logger,
	}
}

func (f *Fanout) Register(sink Sink) {
	f.sinks = append(f.sinks, sink)
}

// Emit records the event and delivers it to every sink in registration
// order. Emit never returns an error; notification failure must not fail
// the triggering operation.
func (f *Fanout) Emit(ctx context.Context, event types.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := f.buffer.Push(ctx, event); err != nil {
		f.logger.Warn("cannot buffer notification", zap.Error(err))
	}
	for _, sink := range f.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
		if err := sink.Deliver(sinkCtx, event); err != nil {
			f.logger.Warn("notification sink failed",
				zap.String("sink", sink.Name()),
				zap.String("event", string(event.Type)),
				zap.Error(err))
		}
		cancel()
	}
}

// Recent returns up to n buffered events, newest first.
func (f *Fanout) Recent(ctx context.Context, n int) ([]types.Event, error) {
	return f.buffer.Recent(ctx, n)
}
