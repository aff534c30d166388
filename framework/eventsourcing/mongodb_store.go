package eventsourcing

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/akriventsev/commerce/framework/core"
)

const globalPositionKey = "$all"

// mongoEvent документ события. event_data хранится строкой JSON.
type mongoEvent struct {
	ID            string    `bson:"_id"`
	AggregateID   string    `bson:"aggregate_id"`
	AggregateType string    `bson:"aggregate_type"`
	EventType     string    `bson:"event_type"`
	EventData     string    `bson:"event_data"`
	Version       int64     `bson:"version"`
	Position      int64     `bson:"position"`
	OccurredAt    time.Time `bson:"occurred_at"`
}

func toMongoEvent(e DomainEvent) mongoEvent {
	return mongoEvent{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		EventType:     e.EventType,
		EventData:     string(e.EventData),
		Version:       e.Version,
		Position:      e.Position,
		OccurredAt:    e.OccurredAt,
	}
}

func (d mongoEvent) toDomain() DomainEvent {
	return DomainEvent{
		ID:            d.ID,
		AggregateID:   d.AggregateID,
		AggregateType: d.AggregateType,
		EventType:     d.EventType,
		EventData:     []byte(d.EventData),
		Version:       d.Version,
		Position:      d.Position,
		OccurredAt:    d.OccurredAt,
	}
}

// MongoEventStoreConfig конфигурация для MongoDB Event Store
type MongoEventStoreConfig struct {
	Collection         string
	CountersCollection string
}

// DefaultMongoEventStoreConfig возвращает конфигурацию по умолчанию
func DefaultMongoEventStoreConfig() MongoEventStoreConfig {
	return MongoEventStoreConfig{
		Collection:         "event_store",
		CountersCollection: "event_store_counters",
	}
}

// MongoEventStore реализация EventStore для MongoDB. Ревизии и глобальная
// позиция выдаются атомарными счетчиками ($inc), без транзакций.
type MongoEventStore struct {
	events   *mongo.Collection
	counters *mongo.Collection
}

// NewMongoEventStore создает Event Store и индексы
func NewMongoEventStore(ctx context.Context, db *mongo.Database, config MongoEventStoreConfig) (*MongoEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	s := &MongoEventStore{
		events:   db.Collection(config.Collection),
		counters: db.Collection(config.CountersCollection),
	}

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "aggregate_id", Value: 1}, {Key: "position", Value: 1}}},
		{Keys: bson.D{{Key: "event_type", Value: 1}}},
		{Keys: bson.D{{Key: "position", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := s.events.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoEventStore) next(ctx context.Context, key string) (int64, error) {
	var doc struct {
		Value int64 `bson:"value"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Value, nil
}

// Append добавляет событие
func (s *MongoEventStore) Append(ctx context.Context, event DomainEvent) (DomainEvent, error) {
	if event.Version == 0 {
		revision, err := s.next(ctx, event.AggregateID)
		if err != nil {
			return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to allocate revision")
		}
		event.Version = revision
	}

	position, err := s.next(ctx, globalPositionKey)
	if err != nil {
		return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to allocate position")
	}
	event.Position = position

	if _, err := s.events.InsertOne(ctx, toMongoEvent(event)); err != nil {
		return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to insert event")
	}
	return event, nil
}

// ReadAll возвращает события агрегата в порядке добавления
func (s *MongoEventStore) ReadAll(ctx context.Context, aggregateID string) ([]DomainEvent, error) {
	cursor, err := s.events.Find(ctx,
		bson.M{"aggregate_id": aggregateID},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}}),
	)
	if err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to query events")
	}
	defer cursor.Close(ctx)

	result := make([]DomainEvent, 0)
	for cursor.Next(ctx) {
		var doc mongoEvent
		if err := cursor.Decode(&doc); err != nil {
			return nil, core.Wrap(err, core.KindPropagated, "failed to decode event")
		}
		result = append(result, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to iterate events")
	}
	return result, nil
}

// Name возвращает имя компонента
func (s *MongoEventStore) Name() string {
	return "mongo-event-store"
}

// Type возвращает тип компонента
func (s *MongoEventStore) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}
