package eventsourcing

import (
	"context"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/events"
)

// Emitter записывает событие в журнал и затем публикует его подписчикам.
// Ошибка журнала возвращается вызывающему. Ошибка публикации только
// логируется: мутация и аудит уже зафиксированы.
type Emitter struct {
	journal   *Journal
	publisher events.EventPublisher
	logger    *zap.Logger
}

// NewEmitter создает emitter. publisher может быть nil.
func NewEmitter(journal *Journal, publisher events.EventPublisher, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{journal: journal, publisher: publisher, logger: logger}
}

// Emit добавляет событие в журнал и публикует его
func (e *Emitter) Emit(ctx context.Context, event events.Event) (DomainEvent, error) {
	stored, err := e.journal.Record(ctx, event)
	if err != nil {
		return DomainEvent{}, err
	}

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.Error("failed to publish event",
				zap.String("event_type", event.EventType()),
				zap.String("aggregate_id", event.AggregateID()),
				zap.Error(err))
		}
	}
	return stored, nil
}

// Record только добавляет событие в журнал
func (e *Emitter) Record(ctx context.Context, event events.Event) (DomainEvent, error) {
	return e.journal.Record(ctx, event)
}

// History возвращает события агрегата
func (e *Emitter) History(ctx context.Context, aggregateID string) ([]DomainEvent, error) {
	return e.journal.History(ctx, aggregateID)
}
