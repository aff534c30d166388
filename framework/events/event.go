// Package events предоставляет доменные события и их асинхронную доставку подписчикам.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event представляет доменное событие
type Event interface {
	// EventID возвращает уникальный идентификатор события
	EventID() string
	// EventType возвращает тип события
	EventType() string
	// OccurredAt возвращает время возникновения события
	OccurredAt() time.Time
	// AggregateID возвращает идентификатор агрегата
	AggregateID() string
	// AggregateType возвращает тип агрегата
	AggregateType() string
}

// Ordered событие со своим ключом упорядочивания. События с одним ключом
// доставляются подписчикам последовательно в порядке публикации.
type Ordered interface {
	OrderingKey() string
}

// OrderingKeyOf ключ упорядочивания события, по умолчанию id агрегата
func OrderingKeyOf(event Event) string {
	if o, ok := event.(Ordered); ok {
		if key := o.OrderingKey(); key != "" {
			return key
		}
	}
	return event.AggregateID()
}

// BaseEvent базовая реализация события. Встраивается в доменные события,
// поля payload сериализуются из встраивающей структуры.
type BaseEvent struct {
	eventID       string
	eventType     string
	occurredAt    time.Time
	aggregateID   string
	aggregateType string
}

// NewBaseEvent создает новое базовое событие
func NewBaseEvent(eventType, aggregateType, aggregateID string) BaseEvent {
	return BaseEvent{
		eventID:       uuid.New().String(),
		eventType:     eventType,
		occurredAt:    time.Now().UTC(),
		aggregateID:   aggregateID,
		aggregateType: aggregateType,
	}
}

func (e BaseEvent) EventID() string {
	return e.eventID
}

func (e BaseEvent) EventType() string {
	return e.eventType
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.occurredAt
}

func (e BaseEvent) AggregateID() string {
	return e.aggregateID
}

func (e BaseEvent) AggregateType() string {
	return e.aggregateType
}

// EventHandler обработчик доменных событий
type EventHandler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc адаптер функции к EventHandler
type HandlerFunc func(ctx context.Context, event Event) error

// Handle вызывает функцию
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Typed оборачивает обработчик конкретного типа события. События другого
// типа игнорируются.
func Typed[E Event](fn func(ctx context.Context, event E) error) EventHandler {
	return HandlerFunc(func(ctx context.Context, event Event) error {
		typed, ok := event.(E)
		if !ok {
			return nil
		}
		return fn(ctx, typed)
	})
}

// EventPublisher публикатор событий
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
