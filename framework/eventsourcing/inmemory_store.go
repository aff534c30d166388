package eventsourcing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// InMemoryEventStore реализация EventStore в памяти для тестов и разработки
type InMemoryEventStore struct {
	mu       sync.RWMutex
	streams  map[string][]DomainEvent
	position int64
}

// NewInMemoryEventStore создает новый InMemory Event Store
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		streams: make(map[string][]DomainEvent),
	}
}

// Append добавляет событие в поток агрегата
func (s *InMemoryEventStore) Append(ctx context.Context, event DomainEvent) (DomainEvent, error) {
	if event.AggregateID == "" {
		return DomainEvent{}, fmt.Errorf("aggregate id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.streams[event.AggregateID]
	if event.Version == 0 {
		event.Version = int64(len(stream)) + 1
	}
	s.position++
	event.Position = s.position

	stored := event
	stored.EventData = cloneData(event.EventData)
	s.streams[event.AggregateID] = append(stream, stored)
	return event, nil
}

// ReadAll возвращает копию потока агрегата. EventData тоже копируется,
// изменения вызывающего не попадают в журнал.
func (s *InMemoryEventStore) ReadAll(ctx context.Context, aggregateID string) ([]DomainEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream := s.streams[aggregateID]
	result := make([]DomainEvent, len(stream))
	for i, e := range stream {
		e.EventData = cloneData(e.EventData)
		result[i] = e
	}
	return result, nil
}

func cloneData(data json.RawMessage) json.RawMessage {
	if data == nil {
		return nil
	}
	return append(json.RawMessage(nil), data...)
}

// Count возвращает общее число событий
func (s *InMemoryEventStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.position)
}
