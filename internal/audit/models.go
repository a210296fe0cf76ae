package audit

import "time"

// Event is an immutable, append-only record of a queue transition.
//
// Events are never updated or deleted. Completed calls leave the live queue,
// so the call_completed event is their only trace outside the report store.
//
// Storage (Postgres): table dispatch_audit_events, INSERT only.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	CallID      string `json:"call_id,omitempty" db:"call_id"`
	CounselorID string `json:"counselor_id,omitempty" db:"counselor_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// RiskLevel is the call's risk at the time of the event, 0 when not call-scoped.
	RiskLevel int `json:"risk_level,omitempty" db:"risk_level"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Key partitions the stream so every event for one call lands in order.
func (e Event) Key() string {
	if e.CallID != "" {
		return e.CallID
	}
	if e.CounselorID != "" {
		return e.CounselorID
	}
	return e.ID
}

type EventType string

const (
	EventCallEnqueued    EventType = "call_enqueued"
	EventCallClaimed     EventType = "call_claimed"
	EventCallReleased    EventType = "call_released"
	EventCallReclaimed   EventType = "call_reclaimed"
	EventCallCompleted   EventType = "call_completed"
	EventQueueReset      EventType = "queue_reset"
	EventCounselorStatus EventType = "counselor_status"
)

func (t EventType) callScoped() bool {
	switch t {
	case EventCallEnqueued, EventCallClaimed, EventCallReleased, EventCallReclaimed, EventCallCompleted:
		return true
	default:
		return false
	}
}
