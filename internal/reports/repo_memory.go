package reports

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// MemoryRepo is an in-process report store for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	byID   map[string]Report
	byCall map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]Report{}, byCall: map[string]string{}}
}

func intakeKey(callID string, receivedAt time.Time) string {
	return callID + "@" + receivedAt.UTC().Format(time.RFC3339Nano)
}

func (r *MemoryRepo) Create(ctx context.Context, rep Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := intakeKey(rep.CallID, rep.CallReceivedAt)
	if _, ok := r.byCall[key]; ok {
		return ErrAlreadyFiled
	}
	r.byID[rep.ID] = rep
	r.byCall[key] = rep.ID
	return nil
}

func (r *MemoryRepo) FindByCall(ctx context.Context, callID string, receivedAt time.Time) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCall[intakeKey(callID, receivedAt)]
	if !ok {
		return Report{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.byID[id]
	if !ok {
		return Report{}, ErrNotFound
	}
	return rep, nil
}

func (r *MemoryRepo) ListByCounselor(ctx context.Context, counselorID string, q Search) ([]Report, error) {
	out := r.filter(func(rep Report) bool {
		return rep.CounselorID == counselorID && matches(rep, q)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListInRange(ctx context.Context, counselorID string, from, to time.Time) ([]Report, error) {
	return r.filter(func(rep Report) bool {
		return rep.CounselorID == counselorID && !rep.CreatedAt.Before(from) && rep.CreatedAt.Before(to)
	}), nil
}

// matches applies a name or phone search case-insensitively.
func matches(rep Report, q Search) bool {
	term := strings.ToLower(q.Term)
	switch {
	case term == "":
		return true
	case q.By == SearchByPhone:
		return strings.Contains(rep.Phone, term)
	default:
		return strings.Contains(strings.ToLower(rep.ClientName), term)
	}
}

func (r *MemoryRepo) filter(keep func(Report) bool) []Report {
	r.mu.Lock()
	out := make([]Report, 0)
	for _, rep := range r.byID {
		if keep(rep) {
			out = append(out, rep)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Report) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}
