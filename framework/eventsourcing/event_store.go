// Package eventsourcing предоставляет append-only журнал доменных событий.
package eventsourcing

import (
	"context"
	"encoding/json"
	"time"
)

// DomainEvent неизменяемая запись о мутации агрегата
type DomainEvent struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregateId"`
	AggregateType string          `json:"aggregateType"`
	EventType     string          `json:"eventType"`
	EventData     json.RawMessage `json:"eventData"`
	// Version ревизия агрегата. 0 при добавлении означает "назначить следующую".
	Version    int64     `json:"version"`
	Position   int64     `json:"position"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventStore append-only журнал, упорядоченный по порядку добавления.
// Версия не проверяется: хранилище принимает переданное значение.
type EventStore interface {
	// Append добавляет событие и возвращает сохраненную запись с позицией
	Append(ctx context.Context, event DomainEvent) (DomainEvent, error)
	// ReadAll возвращает события агрегата в порядке добавления
	ReadAll(ctx context.Context, aggregateID string) ([]DomainEvent, error)
}
