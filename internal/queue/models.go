package queue

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("queue: call not found")
	ErrDuplicateID = errors.New("queue: duplicate call id")
)

// RiskLevel is the triage severity attached at intake. Higher is more urgent.
type RiskLevel int

const (
	RiskLow    RiskLevel = 1
	RiskMedium RiskLevel = 2
	RiskHigh   RiskLevel = 3
)

func (r RiskLevel) Valid() bool { return r >= RiskLow && r <= RiskHigh }

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseRiskLevel accepts the level names and their ordinals ("high" or "3").
func ParseRiskLevel(v string) (RiskLevel, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	switch v {
	case "low":
		return RiskLow, nil
	case "medium":
		return RiskMedium, nil
	case "high":
		return RiskHigh, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || !RiskLevel(n).Valid() {
		return 0, fmt.Errorf("queue: invalid risk level %q", v)
	}
	return RiskLevel(n), nil
}

type State string

const (
	StateWaiting   State = "waiting"
	StateClaimed   State = "claimed"
	StateCompleted State = "completed"
)

// CallEntry is one caller in the live queue.
//
// ClaimedBy and ClaimedAt are set only while State is StateClaimed.
// ID, Phone, RiskLevel, ReceivedAt and Seq never change after Enqueue.
type CallEntry struct {
	ID         string    `json:"call_id" db:"call_id"`
	Phone      string    `json:"phone" db:"phone"`
	RiskLevel  RiskLevel `json:"risk_level" db:"risk_level"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`

	State     State      `json:"state" db:"state"`
	ClaimedBy string     `json:"claimed_by,omitempty" db:"claimed_by"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`

	// Seq is the insertion order; it breaks ties between equal risk and arrival time.
	Seq uint64 `json:"-" db:"seq"`
}

func (e CallEntry) IsClaimedBy(counselorID string) bool {
	return e.State == StateClaimed && e.ClaimedBy == counselorID
}

// compareEntries orders by risk descending, then arrival, then insertion.
func compareEntries(a, b CallEntry) int {
	switch {
	case a.RiskLevel > b.RiskLevel:
		return -1
	case a.RiskLevel < b.RiskLevel:
		return 1
	}
	if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}
