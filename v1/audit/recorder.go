package audit

import (
	"context"
	"fmt"
	"time"

	uuid "github.com/hashicorp/go-uuid"
)

// Sink receives committed audit records for live streaming or export.
// Delivery is best-effort and happens after the record is durably appended;
// a failing sink never fails the mutation that produced the record.
type Sink interface {
	Publish(ctx context.Context, rec *Record) error
}

// Recorder captures before/after state of a mutation and persists the audit
// record. It must be called while the entity's lock is held so the store's
// revision assignment inherits the lock's serialization.
type Recorder struct {
	store Store
	sinks []Sink
	now   func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSink attaches a sink notified after every successful append.
func WithSink(s Sink) RecorderOption {
	return func(r *Recorder) { r.sinks = append(r.sinks, s) }
}

// WithClock overrides the changedAt clock.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder returns a Recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record computes the field diff, stamps the record and appends it. The
// revision is assigned by the store inside its transaction. CREATE records
// drop any old state, DELETE records any new state, keeping the persisted
// shape canonical whatever the caller passed.
func (r *Recorder) Record(ctx context.Context, action Action, entityType string, entityID int64, tenantID, changedBy string, oldValues, newValues map[string]any) (*Record, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	switch action {
	case ActionCreate:
		oldValues = nil
	case ActionDelete:
		newValues = nil
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}
	rec := &Record{
		RecordID:      id,
		EntityType:    entityType,
		EntityID:      entityID,
		Action:        action,
		ChangedBy:     changedBy,
		TenantID:      tenantID,
		ChangedAt:     r.now(),
		OldValues:     oldValues,
		NewValues:     newValues,
		ChangedFields: Diff(action, oldValues, newValues),
	}
	if err := r.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("audit: append %s/%d (tenant %s): %w", entityType, entityID, tenantID, err)
	}
	for _, sink := range r.sinks {
		_ = sink.Publish(ctx, rec)
	}
	return rec, nil
}

// Store exposes the underlying store for query paths.
func (r *Recorder) Store() Store {
	return r.store
}
