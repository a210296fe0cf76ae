package presence

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

var ErrUnknownCounselor = errors.New("presence: unknown counselor")

// DefaultStaleAfter is how long a counselor stays eligible without a heartbeat.
const DefaultStaleAfter = 30 * time.Second

// Presence is a counselor's availability record. Online is derived on read.
type Presence struct {
	CounselorID   string    `json:"counselor_id"`
	Available     bool      `json:"available"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Online        bool      `json:"online"`
}

// Tracker owns counselor presence. Records are created on first SetStatus
// and never deleted.
type Tracker struct {
	mu         sync.RWMutex
	records    map[string]Presence
	staleAfter time.Duration
	clock      func() time.Time
}

func NewTracker(staleAfter time.Duration) *Tracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Tracker{
		records:    make(map[string]Presence),
		staleAfter: staleAfter,
		clock:      time.Now,
	}
}

// WithClock overrides the time source; intended for tests.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	t.clock = clock
	return t
}

// SetStatus records an explicit start or stop of a session and refreshes the heartbeat.
func (t *Tracker) SetStatus(counselorID string, available bool) Presence {
	now := t.clock().UTC()

	t.mu.Lock()
	p := Presence{CounselorID: counselorID, Available: available, LastHeartbeat: now}
	t.records[counselorID] = p
	t.mu.Unlock()

	p.Online = available
	return p
}

func (t *Tracker) Heartbeat(counselorID string) error {
	now := t.clock().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.records[counselorID]
	if !ok {
		return ErrUnknownCounselor
	}
	p.LastHeartbeat = now
	t.records[counselorID] = p
	return nil
}

// IsAvailable reports whether the counselor declared availability and has
// been seen within the staleness window.
func (t *Tracker) IsAvailable(counselorID string) bool {
	p, err := t.Get(counselorID)
	return err == nil && p.Online
}

func (t *Tracker) Get(counselorID string) (Presence, error) {
	now := t.clock().UTC()

	t.mu.RLock()
	p, ok := t.records[counselorID]
	t.mu.RUnlock()
	if !ok {
		return Presence{}, ErrUnknownCounselor
	}
	p.Online = t.online(p, now)
	return p, nil
}

// List returns every known counselor ordered by id.
func (t *Tracker) List() []Presence {
	now := t.clock().UTC()

	t.mu.RLock()
	out := make([]Presence, 0, len(t.records))
	for _, p := range t.records {
		p.Online = t.online(p, now)
		out = append(out, p)
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b Presence) int { return strings.Compare(a.CounselorID, b.CounselorID) })
	return out
}

func (t *Tracker) online(p Presence, now time.Time) bool {
	return p.Available && now.Sub(p.LastHeartbeat) < t.staleAfter
}
