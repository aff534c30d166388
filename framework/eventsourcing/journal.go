package eventsourcing

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/events"
)

// VersionPolicy правило назначения версии событию
type VersionPolicy string

const (
	// VersionRevision версия равна числу событий агрегата, включая текущее
	VersionRevision VersionPolicy = "revision"
	// VersionConstant версия всегда 1 (совместимость со старыми журналами)
	VersionConstant VersionPolicy = "constant"
)

// ParseVersionPolicy разбирает политику из конфигурации
func ParseVersionPolicy(s string) (VersionPolicy, error) {
	switch VersionPolicy(s) {
	case VersionRevision, VersionConstant:
		return VersionPolicy(s), nil
	case "":
		return VersionRevision, nil
	default:
		return "", fmt.Errorf("unknown version policy: %s", s)
	}
}

// Journal превращает доменные события в DomainEvent и добавляет их в EventStore
type Journal struct {
	store  EventStore
	policy VersionPolicy
	logger *zap.Logger
}

// NewJournal создает журнал
func NewJournal(store EventStore, policy VersionPolicy, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == "" {
		policy = VersionRevision
	}
	return &Journal{store: store, policy: policy, logger: logger.Named("journal")}
}

// Record добавляет событие в журнал. Любая ошибка возвращается как KindPropagated.
func (j *Journal) Record(ctx context.Context, event events.Event) (DomainEvent, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to marshal event "+event.EventType())
	}

	record := DomainEvent{
		ID:            event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		EventType:     event.EventType(),
		EventData:     data,
		OccurredAt:    event.OccurredAt(),
	}
	if j.policy == VersionConstant {
		record.Version = 1
	}

	stored, err := j.store.Append(ctx, record)
	if err != nil {
		j.logger.Error("failed to append event",
			zap.String("event_type", record.EventType),
			zap.String("aggregate_type", record.AggregateType),
			zap.String("aggregate_id", record.AggregateID),
			zap.Error(err))
		return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to append event "+record.EventType)
	}
	return stored, nil
}

// History возвращает события агрегата в порядке добавления
func (j *Journal) History(ctx context.Context, aggregateID string) ([]DomainEvent, error) {
	return j.store.ReadAll(ctx, aggregateID)
}
