package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service stamps and validates events before handing them to a repository.
// Callers treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// WithClock overrides the time source; intended for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.Type.callScoped() && e.CallID == "" {
		return fmt.Errorf("%w: %s requires call_id", ErrInvalidEvent, e.Type)
	}
	if e.Type == EventCounselorStatus && e.CounselorID == "" {
		return fmt.Errorf("%w: %s requires counselor_id", ErrInvalidEvent, e.Type)
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogTransition records a call state change made by a counselor or by the system.
func (s *Service) LogTransition(ctx context.Context, t EventType, callID, counselorID string, risk int, message string) error {
	return s.Append(ctx, Event{
		Type:        t,
		CallID:      callID,
		CounselorID: counselorID,
		RiskLevel:   risk,
		Message:     message,
	})
}

// LogQueueReset records an administrative purge of the live queue.
func (s *Service) LogQueueReset(ctx context.Context, actorID, actorRole string, evicted int) error {
	return s.Append(ctx, Event{
		Type:        EventQueueReset,
		CounselorID: actorID,
		ActorRole:   actorRole,
		Message:     "queue reset",
		Metadata:    fmt.Sprintf(`{"evicted":%d}`, evicted),
	})
}

func (s *Service) LogCounselorStatus(ctx context.Context, counselorID string, available bool) error {
	msg := "session stopped"
	if available {
		msg = "session started"
	}
	return s.Append(ctx, Event{
		Type:        EventCounselorStatus,
		CounselorID: counselorID,
		Message:     msg,
	})
}
