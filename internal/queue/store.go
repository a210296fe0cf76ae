package queue

import (
	"iter"
	"slices"
	"sync"
	"sync/atomic"
)

// slot holds one live entry. mu serializes writers of that entry only;
// readers load current without locking.
type slot struct {
	mu      sync.Mutex
	current atomic.Pointer[CallEntry]
	removed atomic.Bool
}

// Store is the in-memory set of live call entries.
//
// Lock order is always slot.mu before Store.mu. Store.mu is held only for
// map access, never while a mutator or guard runs.
type Store struct {
	mu    sync.RWMutex
	slots map[string]*slot
	seq   atomic.Uint64
}

func NewStore() *Store {
	return &Store{slots: make(map[string]*slot)}
}

// Enqueue inserts e as a WAITING entry and returns the stored copy.
func (s *Store) Enqueue(e CallEntry) (CallEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[e.ID]; ok {
		return CallEntry{}, ErrDuplicateID
	}
	e.State = StateWaiting
	e.ClaimedBy = ""
	e.ClaimedAt = nil
	e.Seq = s.seq.Add(1)

	sl := &slot{}
	sl.current.Store(&e)
	s.slots[e.ID] = sl
	return e, nil
}

func (s *Store) lookup(id string) (*slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[id]
	return sl, ok
}

func (s *Store) Get(id string) (CallEntry, error) {
	sl, ok := s.lookup(id)
	if !ok || sl.removed.Load() {
		return CallEntry{}, ErrNotFound
	}
	return *sl.current.Load(), nil
}

// Update runs fn on a copy of the entry while holding the entry's lock.
// The copy is published only if fn returns nil.
func (s *Store) Update(id string, fn func(e *CallEntry) error) (CallEntry, error) {
	sl, ok := s.lookup(id)
	if !ok {
		return CallEntry{}, ErrNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed.Load() {
		return CallEntry{}, ErrNotFound
	}

	cur := sl.current.Load()
	next := *cur
	if err := fn(&next); err != nil {
		return *cur, err
	}
	next.ID, next.Phone, next.RiskLevel = cur.ID, cur.Phone, cur.RiskLevel
	next.ReceivedAt, next.Seq = cur.ReceivedAt, cur.Seq
	sl.current.Store(&next)
	return next, nil
}

// Evict runs guard under the entry's lock and removes the entry only if
// guard succeeds. The value guard returns is published before removal.
func (s *Store) Evict(id string, guard func(e CallEntry) (CallEntry, error)) (CallEntry, error) {
	sl, ok := s.lookup(id)
	if !ok {
		return CallEntry{}, ErrNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed.Load() {
		return CallEntry{}, ErrNotFound
	}

	final, err := guard(*sl.current.Load())
	if err != nil {
		return CallEntry{}, err
	}
	sl.current.Store(&final)
	s.drop(id, sl)
	return final, nil
}

// Remove deletes the entry regardless of state.
func (s *Store) Remove(id string) error {
	sl, ok := s.lookup(id)
	if !ok {
		return ErrNotFound
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.removed.Load() {
		return ErrNotFound
	}
	s.drop(id, sl)
	return nil
}

// drop must be called with sl.mu held.
func (s *Store) drop(id string, sl *slot) {
	sl.removed.Store(true)
	s.mu.Lock()
	if s.slots[id] == sl {
		delete(s.slots, id)
	}
	s.mu.Unlock()
}

// Clear evicts every live entry and returns how many were evicted.
func (s *Store) Clear() int {
	s.mu.Lock()
	old := s.slots
	s.slots = make(map[string]*slot)
	s.mu.Unlock()

	n := 0
	for _, sl := range old {
		sl.mu.Lock()
		if !sl.removed.Load() {
			sl.removed.Store(true)
			n++
		}
		sl.mu.Unlock()
	}
	return n
}

// Entries returns a copy of every live entry in any state, unordered.
func (s *Store) Entries() []CallEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CallEntry, 0, len(s.slots))
	for _, sl := range s.slots {
		if sl.removed.Load() {
			continue
		}
		out = append(out, *sl.current.Load())
	}
	return out
}

// Counts reports live entries per state.
func (s *Store) Counts() map[State]int {
	out := map[State]int{StateWaiting: 0, StateClaimed: 0}
	for _, e := range s.Entries() {
		out[e.State]++
	}
	return out
}

// Snapshot returns the WAITING entries in dispatch order. It takes no
// entry locks.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	entries := make([]CallEntry, 0, len(s.slots))
	for _, sl := range s.slots {
		if sl.removed.Load() {
			continue
		}
		e := sl.current.Load()
		if e.State != StateWaiting {
			continue
		}
		entries = append(entries, *e)
	}
	s.mu.RUnlock()

	slices.SortFunc(entries, compareEntries)
	return Snapshot{entries: entries}
}

// Snapshot is an immutable ordered view of the waiting entries.
type Snapshot struct {
	entries []CallEntry
}

// All yields the entries in order. It can be ranged over more than once.
func (s Snapshot) All() iter.Seq[CallEntry] {
	return func(yield func(CallEntry) bool) {
		for _, e := range s.entries {
			if !yield(e) {
				return
			}
		}
	}
}

func (s Snapshot) Len() int { return len(s.entries) }

func (s Snapshot) Entries() []CallEntry { return slices.Clone(s.entries) }
