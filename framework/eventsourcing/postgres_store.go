package eventsourcing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akriventsev/commerce/framework/core"
)

// PostgresEventStoreConfig конфигурация для PostgreSQL Event Store
type PostgresEventStoreConfig struct {
	SchemaName string
	TableName  string
}

// DefaultPostgresEventStoreConfig возвращает конфигурацию по умолчанию
func DefaultPostgresEventStoreConfig() PostgresEventStoreConfig {
	return PostgresEventStoreConfig{
		SchemaName: "public",
		TableName:  "event_store",
	}
}

// Validate проверяет корректность конфигурации
func (c PostgresEventStoreConfig) Validate() error {
	if c.SchemaName == "" || c.TableName == "" {
		return fmt.Errorf("schema and table name are required")
	}
	return nil
}

// PostgresEventStore реализация EventStore для PostgreSQL. Схема создается миграциями.
type PostgresEventStore struct {
	config PostgresEventStoreConfig
	pool   *pgxpool.Pool
}

// NewPostgresEventStore создает новый PostgreSQL Event Store поверх пула соединений
func NewPostgresEventStore(pool *pgxpool.Pool, config PostgresEventStoreConfig) (*PostgresEventStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresEventStore{config: config, pool: pool}, nil
}

func (s *PostgresEventStore) table() string {
	return pgx.Identifier{s.config.SchemaName, s.config.TableName}.Sanitize()
}

// Append добавляет событие. Для Version == 0 ревизия вычисляется под
// advisory lock агрегата внутри транзакции.
func (s *PostgresEventStore) Append(ctx context.Context, event DomainEvent) (DomainEvent, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if event.Version == 0 {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", event.AggregateID); err != nil {
			return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to lock aggregate stream")
		}
		var current int64
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE aggregate_id = $1", s.table())
		if err := tx.QueryRow(ctx, query, event.AggregateID).Scan(&current); err != nil {
			return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to read stream revision")
		}
		event.Version = current + 1
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, aggregate_id, aggregate_type, event_type, event_data, version, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING position
	`, s.table())

	err = tx.QueryRow(ctx, insert,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		[]byte(event.EventData),
		event.Version,
		event.OccurredAt,
	).Scan(&event.Position)
	if err != nil {
		return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to insert event")
	}

	if err := tx.Commit(ctx); err != nil {
		return DomainEvent{}, core.Wrap(err, core.KindPropagated, "failed to commit event")
	}
	return event, nil
}

// ReadAll возвращает события агрегата в порядке добавления
func (s *PostgresEventStore) ReadAll(ctx context.Context, aggregateID string) ([]DomainEvent, error) {
	query := fmt.Sprintf(`
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, version, position, occurred_at
		FROM %s
		WHERE aggregate_id = $1
		ORDER BY position ASC
	`, s.table())

	rows, err := s.pool.Query(ctx, query, aggregateID)
	if err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to query events")
	}
	defer rows.Close()

	result := make([]DomainEvent, 0)
	for rows.Next() {
		var e DomainEvent
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &e.Position, &e.OccurredAt); err != nil {
			return nil, core.Wrap(err, core.KindPropagated, "failed to scan event")
		}
		e.EventData = data
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to iterate events")
	}
	return result, nil
}

// Name возвращает имя компонента
func (s *PostgresEventStore) Name() string {
	return "postgres-event-store"
}

// Type возвращает тип компонента
func (s *PostgresEventStore) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}
