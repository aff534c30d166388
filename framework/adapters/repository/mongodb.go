package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/akriventsev/commerce/framework/core"
)

// MongoConfig конфигурация MongoDB репозитория
type MongoConfig struct {
	Collection string
	// IndexFields поля вторичных индексов
	IndexFields []string
}

// Validate проверяет конфигурацию
func (c MongoConfig) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("collection cannot be empty")
	}
	return nil
}

// MongoRepository хранит сущности документами. Поле ID сущности должно
// маппиться на _id, остальные bson имена совпадают с JSON именами.
type MongoRepository[T Entity] struct {
	config     MongoConfig
	collection *mongo.Collection
}

// NewMongoRepository создает репозиторий и индексы по IndexFields
func NewMongoRepository[T Entity](ctx context.Context, db *mongo.Database, config MongoConfig) (*MongoRepository[T], error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongodb config: %w", err)
	}
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := db.Collection(config.Collection)
	if len(config.IndexFields) > 0 {
		models := make([]mongo.IndexModel, 0, len(config.IndexFields))
		for _, field := range config.IndexFields {
			models = append(models, mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}})
		}
		if _, err := collection.Indexes().CreateMany(ctx, models); err != nil {
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return &MongoRepository[T]{config: config, collection: collection}, nil
}

// Name возвращает имя компонента
func (m *MongoRepository[T]) Name() string {
	return "mongodb-repository:" + m.config.Collection
}

// Type возвращает тип компонента
func (m *MongoRepository[T]) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Insert вставляет документ; дубликат _id дает KindConditionalWriteConflict
func (m *MongoRepository[T]) Insert(ctx context.Context, entity T) error {
	if _, err := m.collection.InsertOne(ctx, entity); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return core.Wrap(err, core.KindConditionalWriteConflict, "entity already exists: "+entity.ID())
		}
		return core.Wrap(err, core.KindPropagated, "failed to insert entity")
	}
	return nil
}

// Save сохраняет документ (upsert)
func (m *MongoRepository[T]) Save(ctx context.Context, entity T) error {
	_, err := m.collection.ReplaceOne(ctx,
		bson.M{"_id": entity.ID()},
		entity,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to save entity")
	}
	return nil
}

// FindByID находит документ по _id
func (m *MongoRepository[T]) FindByID(ctx context.Context, id string) (T, error) {
	var entity T
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&entity)
	if err != nil {
		var zero T
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, core.Errorf(core.KindNotFound, "entity not found: %s", id)
		}
		return zero, core.Wrap(err, core.KindPropagated, "failed to find entity")
	}
	return entity, nil
}

// FindBy находит документы по полю
func (m *MongoRepository[T]) FindBy(ctx context.Context, field, value string) ([]T, error) {
	cursor, err := m.collection.Find(ctx, bson.M{field: value})
	if err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to query entities")
	}
	defer cursor.Close(ctx)

	results := make([]T, 0)
	if err := cursor.All(ctx, &results); err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to decode entities")
	}
	return results, nil
}

// Update применяет $set к документу
func (m *MongoRepository[T]) Update(ctx context.Context, id string, patch Patch) error {
	result, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(patch)})
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to update entity")
	}
	if result.MatchedCount == 0 {
		return core.Errorf(core.KindNotFound, "entity not found: %s", id)
	}
	return nil
}

// UpdateBy применяет $set ко всем документам с field == value
func (m *MongoRepository[T]) UpdateBy(ctx context.Context, field, value string, patch Patch) (int64, error) {
	result, err := m.collection.UpdateMany(ctx, bson.M{field: value}, bson.M{"$set": bson.M(patch)})
	if err != nil {
		return 0, core.Wrap(err, core.KindPropagated, "failed to update entities")
	}
	return result.ModifiedCount, nil
}

// Delete удаляет документ
func (m *MongoRepository[T]) Delete(ctx context.Context, id string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to delete entity")
	}
	if result.DeletedCount == 0 {
		return core.Errorf(core.KindNotFound, "entity not found: %s", id)
	}
	return nil
}

// DeleteBy удаляет все документы с field == value
func (m *MongoRepository[T]) DeleteBy(ctx context.Context, field, value string) (int64, error) {
	result, err := m.collection.DeleteMany(ctx, bson.M{field: value})
	if err != nil {
		return 0, core.Wrap(err, core.KindPropagated, "failed to delete entities")
	}
	return result.DeletedCount, nil
}
