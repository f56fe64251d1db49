package worker

import (
	"context"
	"log/slog"

	audit "taskguard/pkg/platform/audit"
)

// Sink receives persisted audit records for export.
type Sink interface {
	Publish(ctx context.Context, rec audit.Record) error
}

// Worker drains an inbox of records into a sink. A failed publish is logged
// and skipped; export never stalls the inbox.
type Worker struct {
	sink   Sink
	inbox  <-chan audit.Record
	logger *slog.Logger
}

func NewWorker(sink Sink, inbox <-chan audit.Record, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: inbox, logger: logger}
}

// Run returns nil once the inbox is closed and drained, or ctx.Err() when
// cancelled first.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.sink.Publish(ctx, rec); err != nil {
				w.logger.WarnContext(ctx, "audit export failed",
					"record_id", rec.ID,
					"action", string(rec.Action),
					"error", err,
				)
			}
		}
	}
}
