package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akriventsev/commerce/framework/core"
)

// InMemoryStore хранилище outbox в памяти
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewInMemoryStore создает хранилище
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]Entry)}
}

func (s *InMemoryStore) Enqueue(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; exists {
		return core.Errorf(core.KindConditionalWriteConflict, "outbox entry %s already exists", entry.ID)
	}
	s.entries[entry.ID] = entry
	return nil
}

func (s *InMemoryStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := now.Add(-lease)
	due := make([]Entry, 0)
	for _, e := range s.entries {
		switch {
		case e.Status == StatusPending && !e.NextAttemptAt.After(now):
			due = append(due, e)
		case e.Status == StatusProcessing && !e.ClaimedAt.After(expired):
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		if due[i].Status == StatusProcessing {
			due[i].Attempts++
			due[i].LastError = errLeaseExpired
		}
		due[i].Status = StatusProcessing
		due[i].ClaimedAt = now
		s.entries[due[i].ID] = due[i]
	}
	return due, nil
}

func (s *InMemoryStore) MarkPublished(ctx context.Context, id string) error {
	return s.update(id, func(e *Entry) {
		e.Status = StatusPublished
		e.Attempts++
		e.LastError = ""
	})
}

func (s *InMemoryStore) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return s.update(id, func(e *Entry) {
		e.Status = StatusPending
		e.Attempts = attempts
		e.NextAttemptAt = next
		e.LastError = lastErr
	})
}

func (s *InMemoryStore) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	return s.update(id, func(e *Entry) {
		e.Status = StatusFailed
		e.Attempts = attempts
		e.LastError = lastErr
	})
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, core.Errorf(core.KindNotFound, "outbox entry %s not found", id)
	}
	return e, nil
}

func (s *InMemoryStore) ListByStatus(ctx context.Context, status Status) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0)
	for _, e := range s.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Len возвращает общее число записей
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *InMemoryStore) update(id string, fn func(e *Entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return core.Errorf(core.KindNotFound, "outbox entry %s not found", id)
	}
	fn(&e)
	s.entries[id] = e
	return nil
}

var _ Store = (*InMemoryStore)(nil)
