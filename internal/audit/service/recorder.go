package service

import (
	"context"
	"log/slog"
	"maps"
	"time"

	auditmetrics "taskguard/internal/audit/metrics"
	id "taskguard/pkg/domain"
	dErrors "taskguard/pkg/domain-errors"
	audit "taskguard/pkg/platform/audit"
	"taskguard/pkg/platform/circuit"
	txcontext "taskguard/pkg/platform/tx"
	"taskguard/pkg/requestcontext"
)

const defaultAppendTimeout = 5 * time.Second

// Entry describes an event to record. Request metadata left empty is taken
// from the request context.
type Entry struct {
	Action        audit.Action
	EntityType    string
	EntityID      string
	ActorID       id.UserID
	SourceAddress string
	UserAgent     string
	RequestID     string
	Metadata      map[string]string
}

// WithOutcome returns the metadata for an allowed mutation. When err is set
// the attempt failed after authorization; the copy is tagged with
// decision=allow, outcome=failed and the error code so the attempt stays on
// the trail.
func WithOutcome(metadata map[string]string, err error) map[string]string {
	if err == nil {
		return metadata
	}
	out := make(map[string]string, len(metadata)+3)
	maps.Copy(out, metadata)
	out["decision"] = "allow"
	out["outcome"] = "failed"
	out["error"] = string(dErrors.CodeOf(err))
	return out
}

// Result reports what happened to an entry. Record is populated even when the
// store was unreachable.
type Result struct {
	Record    audit.Record
	Persisted bool
}

// Exporter hands persisted records to an external sink.
type Exporter interface {
	Emit(ctx context.Context, rec audit.Record) error
}

// Recorder appends audit records on behalf of every service. Record never
// fails the caller: store errors are logged and counted, and a circuit
// breaker stops hitting a store that keeps failing.
type Recorder struct {
	store         audit.Store
	exporter      Exporter
	breaker       *circuit.Breaker
	logger        *slog.Logger
	metrics       *auditmetrics.Metrics
	appendTimeout time.Duration
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *auditmetrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

func WithExporter(e Exporter) Option {
	return func(r *Recorder) {
		r.exporter = e
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Recorder) {
		if b != nil {
			r.breaker = b
		}
	}
}

func WithAppendTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.appendTimeout = d
		}
	}
}

func New(store audit.Store, opts ...Option) *Recorder {
	r := &Recorder{
		store:         store,
		breaker:       circuit.New("audit_store"),
		logger:        slog.Default(),
		appendTimeout: defaultAppendTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry to the trail.
//
// The append runs outside any transaction carried by ctx and survives ctx
// cancellation, so a rolled back or abandoned operation still leaves its
// record behind.
func (r *Recorder) Record(ctx context.Context, e Entry) Result {
	rec := r.buildRecord(ctx, e)

	if !r.breaker.Allow() {
		r.incrementFailure("circuit_open")
		r.logger.WarnContext(ctx, "audit record skipped, store circuit open",
			"action", string(rec.Action),
			"record_id", rec.ID,
		)
		return Result{Record: rec}
	}

	appendCtx, cancel := context.WithTimeout(txcontext.Detach(context.WithoutCancel(ctx)), r.appendTimeout)
	defer cancel()

	if err := r.store.Append(appendCtx, &rec); err != nil {
		_, change := r.breaker.RecordFailure()
		r.observeBreaker(ctx, change)
		r.incrementFailure("store_error")
		r.logger.WarnContext(ctx, "failed to persist audit record",
			"action", string(rec.Action),
			"record_id", rec.ID,
			"error", err,
		)
		return Result{Record: rec}
	}
	_, change := r.breaker.RecordSuccess()
	r.observeBreaker(ctx, change)

	if r.metrics != nil {
		r.metrics.IncrementRecorded(string(rec.Action.Category()))
	}
	r.logRecord(ctx, rec)
	r.export(ctx, rec)

	return Result{Record: rec, Persisted: true}
}

func (r *Recorder) buildRecord(ctx context.Context, e Entry) audit.Record {
	now := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)

	actor := e.ActorID
	if actor.IsNil() {
		actor = requestcontext.UserID(ctx)
	}
	rec := audit.Record{
		ID:            audit.NewRecordID(now),
		ActorID:       actor,
		Action:        e.Action,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		SourceAddress: firstNonEmpty(e.SourceAddress, requestcontext.ClientIP(ctx)),
		UserAgent:     firstNonEmpty(e.UserAgent, requestcontext.UserAgent(ctx)),
		RequestID:     firstNonEmpty(e.RequestID, requestcontext.RequestID(ctx)),
		Timestamp:     now,
	}
	if len(e.Metadata) > 0 {
		rec.Metadata = maps.Clone(e.Metadata)
	}
	return rec
}

func (r *Recorder) export(ctx context.Context, rec audit.Record) {
	if r.exporter == nil {
		return
	}
	if err := r.exporter.Emit(context.WithoutCancel(ctx), rec); err != nil {
		if r.metrics != nil {
			r.metrics.IncrementExportDropped()
		}
		r.logger.DebugContext(ctx, "audit export dropped",
			"record_id", rec.ID,
			"error", err,
		)
	}
}

func (r *Recorder) logRecord(ctx context.Context, rec audit.Record) {
	args := []any{
		"log_type", "audit",
		"record_id", rec.ID,
		"category", string(rec.Action.Category()),
		"entity_type", rec.EntityType,
		"entity_id", rec.EntityID,
	}
	if !rec.ActorID.IsNil() {
		args = append(args, "actor_id", rec.ActorID.String())
	}
	if rec.RequestID != "" {
		args = append(args, "request_id", rec.RequestID)
	}
	r.logger.InfoContext(ctx, string(rec.Action), args...)
}

func (r *Recorder) observeBreaker(ctx context.Context, change circuit.StateChange) {
	switch {
	case change.Opened:
		r.logger.ErrorContext(ctx, "audit store circuit opened", "breaker", r.breaker.Name())
		if r.metrics != nil {
			r.metrics.SetBreakerOpen(true)
		}
	case change.Closed:
		r.logger.InfoContext(ctx, "audit store circuit closed", "breaker", r.breaker.Name())
		if r.metrics != nil {
			r.metrics.SetBreakerOpen(false)
		}
	}
}

func (r *Recorder) incrementFailure(reason string) {
	if r.metrics != nil {
		r.metrics.IncrementFailure(reason)
	}
}

// Query returns matching records newest first. An entity id without an
// entity type is rejected.
func (r *Recorder) Query(ctx context.Context, filter audit.Filter, limit int) ([]audit.Record, error) {
	if filter.EntityID != "" && filter.EntityType == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "entity_id requires entity_type")
	}
	if filter.Action != "" && !filter.Action.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown audit action")
	}
	records, err := r.store.Query(ctx, filter, audit.NormalizeLimit(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query audit records")
	}
	return records, nil
}

// VerifyChain walks the whole trail and reports the first broken link.
func (r *Recorder) VerifyChain(ctx context.Context) (audit.ChainReport, error) {
	records, err := r.store.Chain(ctx)
	if err != nil {
		return audit.ChainReport{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit chain")
	}
	report := audit.VerifyChain(records)
	if !report.Valid {
		r.logger.ErrorContext(ctx, "audit chain verification failed",
			"broken_at", report.BrokenAt,
			"problem", report.Problem,
		)
	}
	return report, nil
}

// DetachActor clears the actor from every record the user authored. It joins
// a transaction carried by ctx, unlike Record.
func (r *Recorder) DetachActor(ctx context.Context, userID id.UserID) (int, error) {
	n, err := r.store.DetachActor(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to detach audit actor")
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
