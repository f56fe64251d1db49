// Package publisher fans persisted audit records out to an export sink
// (Kafka in production). Export is best-effort: in async mode a full buffer
// drops the record instead of blocking the request path.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/platform/audit/worker"
)

// ErrBufferFull is returned by Emit when the async buffer has no room.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher forwards records to a sink, synchronously or through a buffered
// worker.
type Publisher struct {
	sink   worker.Sink
	logger *slog.Logger

	bufferSize int
	inbox      chan audit.Record
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
	closed     bool
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer enables async mode with a buffer of n records.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

// WithLogger sets a logger for export failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(sink worker.Sink, opts ...Option) *Publisher {
	p := &Publisher{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Record, p.bufferSize)
		p.done = make(chan struct{})
		w := worker.NewWorker(sink, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(context.Background())
		}()
	}
	return p
}

// Emit forwards rec. In async mode it never blocks: it returns ErrBufferFull
// when the buffer is full and ctx.Err() when ctx is already done.
func (p *Publisher) Emit(ctx context.Context, rec audit.Record) error {
	if p.inbox == nil {
		return p.sink.Publish(ctx, rec)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.New("audit publisher closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.inbox <- rec:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting records and waits for the buffer to drain.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		if p.inbox == nil {
			return
		}
		p.mu.Lock()
		p.closed = true
		close(p.inbox)
		p.mu.Unlock()
		<-p.done
	})
}
