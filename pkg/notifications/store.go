package notifications

import (
	"slices"
	"sync"
	"time"
)

// memoryStore is the id-keyed record map owned by the engine. Every method
// is atomic; returned records are copies.
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]storedRecord
	seq     uint64
}

type storedRecord struct {
	n   Notification
	seq uint64 // order of the last write, breaks timestamp ties
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]storedRecord)}
}

// put stores n, overwriting any record with the same id. An overwrite keeps
// the original source and never reverts a read record to unread.
func (s *memoryStore) put(n Notification) (stored Notification, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n = n.clone()
	prev, exists := s.records[n.ID]
	if exists {
		n.Source = prev.n.Source
		if prev.n.Read && !n.Read {
			n.Read = true
			n.ReadAt = prev.n.ReadAt
		}
	}
	s.seq++
	s.records[n.ID] = storedRecord{n: n, seq: s.seq}
	return n.clone(), !exists
}

func (s *memoryStore) get(id string) (Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Notification{}, false
	}
	return rec.n.clone(), true
}

func (s *memoryStore) contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// list returns the matching records newest first. Equal timestamps are
// ordered by most recent write.
func (s *memoryStore) list(f Filters) []Notification {
	s.mu.RLock()
	matched := make([]storedRecord, 0, len(s.records))
	for _, rec := range s.records {
		if f.Match(rec.n) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b storedRecord) int {
		if c := b.n.Timestamp.Compare(a.n.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})

	out := make([]Notification, len(matched))
	for i, rec := range matched {
		out[i] = rec.n.clone()
	}
	return out
}

func (s *memoryStore) markRead(id string, at time.Time) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || !rec.n.MarkAsRead(at) {
		return Notification{}, false
	}
	s.records[id] = rec
	return rec.n.clone(), true
}

func (s *memoryStore) markAllRead(f Filters, at time.Time) []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []Notification
	for id, rec := range s.records {
		if !f.Match(rec.n) || !rec.n.MarkAsRead(at) {
			continue
		}
		s.records[id] = rec
		changed = append(changed, rec.n.clone())
	}
	return changed
}

func (s *memoryStore) delete(id string) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Notification{}, false
	}
	delete(s.records, id)
	return rec.n, true
}

func (s *memoryStore) clear() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.n)
	}
	s.records = make(map[string]storedRecord)
	return out
}

func (s *memoryStore) stats(f Filters) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Notification, 0, len(s.records))
	for _, rec := range s.records {
		if f.Match(rec.n) {
			matched = append(matched, rec.n)
		}
	}
	return computeStats(matched)
}
