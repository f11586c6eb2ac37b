package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/railstack/go-resv/v1/audit"
	"github.com/railstack/go-resv/v1/lock"
	"github.com/railstack/go-resv/v1/metrics"
	"github.com/railstack/go-resv/v1/reskey"
	"github.com/railstack/go-resv/v1/tenant"
)

var tracer = otel.Tracer("github.com/railstack/go-resv/v1/pipeline")

// DefaultHold is the hold timeout applied when a request leaves it unset.
const DefaultHold = 30 * time.Second

var (
	// ErrNoMutation is returned when a request carries no mutation function.
	ErrNoMutation = errors.New("pipeline: nil mutation")
	// ErrTenantIneligible is returned when the bound tenant is suspended or
	// inactive and therefore barred from acquiring new locks.
	ErrTenantIneligible = errors.New("pipeline: tenant not eligible for new locks")
	// ErrAuditWrite marks a mutation whose audit record could not be
	// persisted. The invocation is failed even if the mutation applied.
	ErrAuditWrite = errors.New("pipeline: audit write failed")
)

// MutationError wraps a business-level error raised by the caller's
// mutation function. The wrapped error is surfaced verbatim via Unwrap.
type MutationError struct {
	Err error
}

func (e *MutationError) Error() string { return "pipeline: mutation failed: " + e.Err.Error() }
func (e *MutationError) Unwrap() error { return e.Err }

// Mutation executes the business change against current persisted state and
// returns the before/after field maps consumed by the audit recorder. It
// runs only while the resource's lock is held.
type Mutation func(ctx context.Context) (oldValues, newValues map[string]any, err error)

// Request describes one pipeline invocation.
type Request struct {
	Descriptor reskey.Descriptor
	EntityType string
	EntityID   int64
	Action     audit.Action
	// ChangedBy defaults to the actor bound to the context.
	ChangedBy string

	// Hold bounds how long the lock survives a crashed holder; zero takes
	// DefaultHold. Wait bounds how long to block on contention; zero means
	// try once and fail fast.
	Hold time.Duration
	Wait time.Duration

	Mutate Mutation
	// Rollback optionally compensates the mutation when the audit write
	// fails. Without it such a failure is reported for manual
	// reconciliation.
	Rollback func(ctx context.Context) error
}

// Result carries the committed audit record and the handle the invocation
// held.
type Result struct {
	Record *audit.Record
	Handle lock.Handle
}

// Pipeline wires the lock manager, audit recorder and optional tenant
// registry into the mutation sequence.
type Pipeline struct {
	locker       lock.Manager
	recorder     *audit.Recorder
	registry     *tenant.Registry
	failOpen     bool
	onReleaseErr func(error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRegistry gates lock acquisition on tenant eligibility.
func WithRegistry(r *tenant.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// WithFailOpen lets invocations proceed without the lock when acquisition
// fails on contention. Off by default: failing closed is the safe behavior
// for a contended seat.
func WithFailOpen() Option {
	return func(p *Pipeline) { p.failOpen = true }
}

// WithReleaseErrorHandler observes release-time errors, which are counted
// but never escalated into the invocation's result.
func WithReleaseErrorHandler(fn func(error)) Option {
	return func(p *Pipeline) { p.onReleaseErr = fn }
}

// New returns a Pipeline using the given lock manager and recorder.
func New(locker lock.Manager, recorder *audit.Recorder, opts ...Option) *Pipeline {
	p := &Pipeline{locker: locker, recorder: recorder}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func fail(stage string) {
	metrics.PipelineFailureCounter.WithLabelValues(stage).Inc()
}

// Execute runs the full mutation sequence for req. On failure no partial
// state is hidden: lock errors mean the mutation never ran, a MutationError
// means no audit record exists, and ErrAuditWrite names whether the
// mutation was compensated.
func (p *Pipeline) Execute(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Pipeline.Execute")
	defer span.End()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	if req.Mutate == nil {
		fail("request")
		return Result{}, ErrNoMutation
	}
	if !req.Action.Valid() {
		fail("request")
		return Result{}, fmt.Errorf("%w: %q", audit.ErrInvalidAction, req.Action)
	}

	tenantID, err := tenant.Require(ctx)
	if err != nil {
		fail("tenant")
		return Result{}, err
	}
	span.SetAttributes(attribute.String("resv.tenant", tenantID))

	if p.registry != nil {
		ok, err := p.registry.EligibleForLock(ctx, tenantID)
		if err != nil {
			fail("tenant")
			return Result{}, fmt.Errorf("pipeline: tenant %q: %w", tenantID, err)
		}
		if !ok {
			fail("tenant")
			return Result{}, fmt.Errorf("%w: %q", ErrTenantIneligible, tenantID)
		}
	}

	key, err := reskey.Resolve(tenantID, req.Descriptor)
	if err != nil {
		fail("key")
		return Result{}, err
	}
	span.SetAttributes(attribute.String("resv.lock_key", key))

	hold := req.Hold
	if hold <= 0 {
		hold = DefaultHold
	}

	handle, err := p.locker.Acquire(ctx, key, hold, req.Wait)
	held := err == nil
	switch {
	case held:
		metrics.LockAcquireCounter.Inc()
	case errors.Is(err, lock.ErrNotAcquired):
		metrics.LockContentionCounter.Inc()
		if !p.failOpen {
			fail("lock")
			return Result{}, fmt.Errorf("pipeline: key %q: %w", key, err)
		}
	default:
		fail("lock")
		return Result{}, fmt.Errorf("pipeline: key %q: %w", key, err)
	}
	if held {
		defer p.release(handle)
	}

	oldValues, newValues, err := req.Mutate(ctx)
	if err != nil {
		fail("mutate")
		return Result{}, &MutationError{Err: err}
	}

	changedBy := req.ChangedBy
	if changedBy == "" {
		changedBy, _ = tenant.ActorFromContext(ctx)
	}

	rec, err := p.recorder.Record(ctx, req.Action, req.EntityType, req.EntityID, tenantID, changedBy, oldValues, newValues)
	if err != nil {
		fail("audit")
		if req.Rollback != nil {
			if rbErr := req.Rollback(ctx); rbErr != nil {
				return Result{}, fmt.Errorf("%w: %v (rollback failed: %v, manual reconciliation required)", ErrAuditWrite, err, rbErr)
			}
			return Result{}, fmt.Errorf("%w: %v (mutation rolled back)", ErrAuditWrite, err)
		}
		return Result{}, fmt.Errorf("%w: %v (mutation applied, manual reconciliation required)", ErrAuditWrite, err)
	}
	metrics.AuditRecordCounter.Inc()

	return Result{Record: rec, Handle: handle}, nil
}

// Recorder returns the audit recorder, whose store serves the query paths.
func (p *Pipeline) Recorder() *audit.Recorder {
	return p.recorder
}

// release frees the lock after the invocation, successful or not. The
// caller's context may already be cancelled, so release runs on a fresh
// one; NotOwner and AlreadyExpired are expected races once the hold timeout
// has lapsed.
func (p *Pipeline) release(h lock.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.locker.Release(ctx, h)
	if err == nil {
		return
	}
	if errors.Is(err, lock.ErrNotOwner) || errors.Is(err, lock.ErrExpired) {
		metrics.LockReleaseRaceCounter.Inc()
	}
	if p.onReleaseErr != nil {
		p.onReleaseErr(err)
	}
}
