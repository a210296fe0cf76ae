package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"triage-platform/internal/audit"
	"triage-platform/internal/metrics"
	"triage-platform/internal/presence"
	"triage-platform/internal/queue"
	"triage-platform/internal/reports"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Finalizer persists the counselor's report for a call being completed.
type Finalizer interface {
	Validate(p reports.Payload) error
	Finalize(ctx context.Context, entry queue.CallEntry, counselorID string, p reports.Payload) (reportID string, err error)
}

// AuditLogger receives one record per successful transition.
type AuditLogger interface {
	LogTransition(ctx context.Context, t audit.EventType, callID, counselorID string, risk int, message string) error
	LogQueueReset(ctx context.Context, actorID, actorRole string, evicted int) error
	LogCounselorStatus(ctx context.Context, counselorID string, available bool) error
}

type Options struct {
	Audit  AuditLogger
	Logger *slog.Logger
	Clock  func() time.Time
	NewID  func() string
}

// Dispatcher is the only writer of call state. It is safe for concurrent use.
type Dispatcher struct {
	store     *queue.Store
	presence  *presence.Tracker
	finalizer Finalizer
	audit     AuditLogger

	clock  func() time.Time
	newID  func() string
	log    *slog.Logger
	tracer trace.Tracer
}

func New(store *queue.Store, tracker *presence.Tracker, finalizer Finalizer, opts Options) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		presence:  tracker,
		finalizer: finalizer,
		audit:     opts.Audit,
		clock:     opts.Clock,
		newID:     opts.NewID,
		log:       opts.Logger,
		tracer:    otel.Tracer("triage-platform/dispatch"),
	}
	if d.clock == nil {
		d.clock = time.Now
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("component", "dispatcher")
	return d
}

// Intake is a finished intake ready to be queued. ID and ReceivedAt are
// assigned when empty.
type Intake struct {
	ID         string
	Phone      string
	RiskLevel  queue.RiskLevel
	ReceivedAt time.Time
}

// Completion is the result of a successful Complete.
type Completion struct {
	CallID      string    `json:"call_id"`
	CounselorID string    `json:"counselor_id"`
	ReportID    string    `json:"report_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (d *Dispatcher) Enqueue(ctx context.Context, in Intake) (entry queue.CallEntry, err error) {
	ctx, span := d.start(ctx, "Enqueue", attribute.Int("call.risk_level", int(in.RiskLevel)))
	defer func() { d.finish(span, "enqueue", err) }()

	in.Phone = strings.TrimSpace(in.Phone)
	if in.Phone == "" {
		return queue.CallEntry{}, fmt.Errorf("%w: phone is required", ErrInvalidInput)
	}
	if !in.RiskLevel.Valid() {
		return queue.CallEntry{}, fmt.Errorf("%w: risk level %d", ErrInvalidInput, in.RiskLevel)
	}
	if in.ID == "" {
		in.ID = d.newID()
	}
	// Stored at microsecond precision so the report store can match it exactly.
	now := d.clock().UTC()
	if in.ReceivedAt.IsZero() || in.ReceivedAt.After(now) {
		in.ReceivedAt = now
	}
	in.ReceivedAt = in.ReceivedAt.UTC().Truncate(time.Microsecond)

	entry, err = d.store.Enqueue(queue.CallEntry{
		ID:         in.ID,
		Phone:      in.Phone,
		RiskLevel:  in.RiskLevel,
		ReceivedAt: in.ReceivedAt,
	})
	if err != nil {
		return queue.CallEntry{}, err
	}
	span.SetAttributes(attribute.String("call.id", entry.ID))

	d.log.Info("call enqueued", "call_id", entry.ID, "risk_level", entry.RiskLevel.String())
	d.record(ctx, audit.EventCallEnqueued, entry, "", "call enqueued")
	d.observeDepth()
	return entry, nil
}

// ListWaiting returns the waiting calls in dispatch order and counts as a
// heartbeat for the caller.
func (d *Dispatcher) ListWaiting(ctx context.Context, counselorID string) (snap queue.Snapshot, err error) {
	_, span := d.start(ctx, "ListWaiting", attribute.String("counselor.id", counselorID))
	defer func() { d.finish(span, "list", err) }()

	if !d.presence.IsAvailable(counselorID) {
		return queue.Snapshot{}, ErrNotAvailable
	}
	snap = d.store.Snapshot()
	if err := d.presence.Heartbeat(counselorID); err != nil {
		return queue.Snapshot{}, err
	}
	span.SetAttributes(attribute.Int("queue.waiting", snap.Len()))
	return snap, nil
}

// Get returns one live call.
func (d *Dispatcher) Get(ctx context.Context, callID string) (queue.CallEntry, error) {
	return d.store.Get(callID)
}

// Claim assigns a waiting call to counselorID. Exactly one of several
// concurrent claims on the same call succeeds. Re-claiming a call the
// counselor already holds returns it unchanged.
func (d *Dispatcher) Claim(ctx context.Context, callID, counselorID string) (entry queue.CallEntry, err error) {
	ctx, span := d.start(ctx, "Claim", attribute.String("call.id", callID), attribute.String("counselor.id", counselorID))
	defer func() { d.finish(span, "claim", err) }()

	if !d.presence.IsAvailable(counselorID) {
		return queue.CallEntry{}, ErrNotAvailable
	}

	fresh := false
	now := d.clock().UTC()
	entry, err = d.store.Update(callID, func(e *queue.CallEntry) error {
		switch e.State {
		case queue.StateWaiting:
			e.State = queue.StateClaimed
			e.ClaimedBy = counselorID
			e.ClaimedAt = &now
			fresh = true
			return nil
		case queue.StateClaimed:
			if e.ClaimedBy == counselorID {
				return nil
			}
			return ErrAlreadyClaimed
		default:
			return ErrInvalidState
		}
	})
	if err != nil {
		return queue.CallEntry{}, err
	}
	if err := d.presence.Heartbeat(counselorID); err != nil {
		d.log.Debug("heartbeat after claim failed", "counselor_id", counselorID, "err", err)
	}

	if fresh {
		wait := now.Sub(entry.ReceivedAt)
		metrics.ClaimWaitSeconds.WithLabelValues(entry.RiskLevel.String()).Observe(wait.Seconds())
		d.log.Info("call claimed", "call_id", callID, "counselor_id", counselorID, "waited", wait.String())
		d.record(ctx, audit.EventCallClaimed, entry, counselorID, "call claimed")
		d.observeDepth()
	}
	return entry, nil
}

// Release returns a call held by counselorID to the waiting pool. Its
// original arrival time and position are kept.
func (d *Dispatcher) Release(ctx context.Context, callID, counselorID string) (err error) {
	ctx, span := d.start(ctx, "Release", attribute.String("call.id", callID), attribute.String("counselor.id", counselorID))
	defer func() { d.finish(span, "release", err) }()

	entry, err := d.store.Update(callID, func(e *queue.CallEntry) error {
		if e.State != queue.StateClaimed {
			return ErrInvalidState
		}
		if e.ClaimedBy != counselorID {
			return ErrNotOwner
		}
		e.State = queue.StateWaiting
		e.ClaimedBy = ""
		e.ClaimedAt = nil
		return nil
	})
	if err != nil {
		return err
	}

	d.log.Info("call released", "call_id", callID, "counselor_id", counselorID)
	d.record(ctx, audit.EventCallReleased, entry, counselorID, "call released")
	d.observeDepth()
	return nil
}

// Complete finalizes the report and evicts the call. The finalizer runs
// while the call is locked, so a concurrent reclaim cannot hand the call to
// someone else mid-write. On finalizer failure the call stays claimed.
// A retry after the report store committed but failed to answer returns the
// report already filed.
func (d *Dispatcher) Complete(ctx context.Context, callID, counselorID string, p reports.Payload) (out Completion, err error) {
	ctx, span := d.start(ctx, "Complete", attribute.String("call.id", callID), attribute.String("counselor.id", counselorID))
	defer func() { d.finish(span, "complete", err) }()

	var (
		reportID   string
		superseded bool
	)
	entry, err := d.store.Evict(callID, func(e queue.CallEntry) (queue.CallEntry, error) {
		if e.State != queue.StateClaimed {
			return e, ErrInvalidState
		}
		if e.ClaimedBy != counselorID {
			return e, ErrNotOwner
		}
		if err := d.finalizer.Validate(p); err != nil {
			return e, err
		}
		id, ferr := d.finalizer.Finalize(ctx, e, counselorID, p)
		switch {
		case errors.Is(ferr, reports.ErrAlreadyFiled):
			// An earlier holder's report closed this intake.
			superseded = true
		case ferr != nil:
			return e, fmt.Errorf("%w: %w", ErrPersistence, ferr)
		}
		reportID = id
		e.State = queue.StateCompleted
		e.ClaimedBy = ""
		e.ClaimedAt = nil
		return e, nil
	})
	if err != nil {
		if errors.Is(err, ErrPersistence) {
			d.log.Error("report finalization failed; call stays claimed", "call_id", callID, "counselor_id", counselorID, "err", err)
		}
		return Completion{}, err
	}
	d.observeDepth()

	if superseded {
		d.log.Warn("call already reported by another counselor; evicted", "call_id", callID, "counselor_id", counselorID)
		d.record(ctx, audit.EventCallCompleted, entry, counselorID, "call closed by an earlier report")
		return Completion{}, ErrAlreadyReported
	}

	out = Completion{CallID: entry.ID, CounselorID: counselorID, ReportID: reportID, CompletedAt: d.clock().UTC()}
	d.log.Info("call completed", "call_id", callID, "counselor_id", counselorID, "report_id", reportID)
	d.record(ctx, audit.EventCallCompleted, entry, counselorID, "call completed")
	return out, nil
}

// ReclaimStale returns every claim older than timeout to the waiting pool
// and reports the reclaimed call ids. Calls completed or released while the
// sweep runs are skipped.
func (d *Dispatcher) ReclaimStale(ctx context.Context, timeout time.Duration) (reclaimed []string, err error) {
	ctx, span := d.start(ctx, "ReclaimStale", attribute.String("claim.timeout", timeout.String()))
	defer func() { d.finish(span, "reclaim", err) }()

	cutoff := d.clock().UTC().Add(-timeout)
	for _, e := range d.store.Entries() {
		if err := ctx.Err(); err != nil {
			return reclaimed, err
		}
		if !isStale(e, cutoff) {
			continue
		}

		var previous string
		entry, uerr := d.store.Update(e.ID, func(cur *queue.CallEntry) error {
			if !isStale(*cur, cutoff) {
				return errNotStale
			}
			previous = cur.ClaimedBy
			cur.State = queue.StateWaiting
			cur.ClaimedBy = ""
			cur.ClaimedAt = nil
			return nil
		})
		switch {
		case errors.Is(uerr, queue.ErrNotFound), errors.Is(uerr, errNotStale):
			continue
		case uerr != nil:
			return reclaimed, uerr
		}

		reclaimed = append(reclaimed, entry.ID)
		metrics.ReclaimedTotal.Inc()
		d.log.Warn("stale claim reclaimed", "call_id", entry.ID, "counselor_id", previous)
		d.record(ctx, audit.EventCallReclaimed, entry, previous, "claim timed out")
	}

	span.SetAttributes(attribute.Int("reclaimed", len(reclaimed)))
	if len(reclaimed) > 0 {
		d.observeDepth()
	}
	return reclaimed, nil
}

var errNotStale = errors.New("dispatch: claim not stale")

func isStale(e queue.CallEntry, cutoff time.Time) bool {
	return e.State == queue.StateClaimed && e.ClaimedAt != nil && e.ClaimedAt.Before(cutoff)
}

// ResetAll evicts every live call and returns how many were evicted.
func (d *Dispatcher) ResetAll(ctx context.Context, actorID, actorRole string) int {
	ctx, span := d.start(ctx, "ResetAll", attribute.String("actor.id", actorID))
	defer func() { d.finish(span, "reset", nil) }()

	n := d.store.Clear()
	span.SetAttributes(attribute.Int("evicted", n))
	d.log.Warn("queue reset", "actor_id", actorID, "evicted", n)
	if d.audit != nil {
		if err := d.audit.LogQueueReset(ctx, actorID, actorRole, n); err != nil {
			d.log.Warn("audit append failed", "event", audit.EventQueueReset, "err", err)
		}
	}
	d.observeDepth()
	return n
}

// SetStatus starts or stops a counselor's session.
func (d *Dispatcher) SetStatus(ctx context.Context, counselorID string, available bool) presence.Presence {
	p := d.presence.SetStatus(counselorID, available)
	d.log.Info("counselor status", "counselor_id", counselorID, "available", available)
	if d.audit != nil {
		if err := d.audit.LogCounselorStatus(ctx, counselorID, available); err != nil {
			d.log.Warn("audit append failed", "event", audit.EventCounselorStatus, "err", err)
		}
	}
	return p
}

func (d *Dispatcher) Heartbeat(ctx context.Context, counselorID string) error {
	return d.presence.Heartbeat(counselorID)
}

func (d *Dispatcher) Counselors() []presence.Presence { return d.presence.List() }

// Stats reports live entries per state.
func (d *Dispatcher) Stats() map[queue.State]int {
	counts := d.store.Counts()
	for state, n := range counts {
		metrics.QueueEntries.WithLabelValues(string(state)).Set(float64(n))
	}
	return counts
}

func (d *Dispatcher) observeDepth() { _ = d.Stats() }

func (d *Dispatcher) record(ctx context.Context, t audit.EventType, e queue.CallEntry, counselorID, msg string) {
	if d.audit == nil {
		return
	}
	if err := d.audit.LogTransition(ctx, t, e.ID, counselorID, int(e.RiskLevel), msg); err != nil {
		d.log.Warn("audit append failed", "event", t, "call_id", e.ID, "err", err)
	}
}

func (d *Dispatcher) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, "dispatch."+op, trace.WithAttributes(attrs...))
}

func (d *Dispatcher) finish(span trace.Span, op string, err error) {
	metrics.DispatchOperationsTotal.WithLabelValues(op, Code(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Code(err))
	}
	span.End()
}
