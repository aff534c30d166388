package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akriventsev/commerce/framework/core"
)

const pgUniqueViolation = "23505"

// PostgresConfig конфигурация PostgreSQL репозитория
type PostgresConfig struct {
	SchemaName string
	TableName  string
}

// Validate проверяет конфигурацию
func (c PostgresConfig) Validate() error {
	if c.TableName == "" {
		return fmt.Errorf("TableName cannot be empty")
	}
	if c.SchemaName == "" {
		return fmt.Errorf("SchemaName cannot be empty")
	}
	return nil
}

// PostgresRepository хранит сущности в JSONB колонке data таблицы (id, data, created_at, updated_at).
// Таблицы и индексы по полям создаются миграциями.
type PostgresRepository[T Entity] struct {
	config PostgresConfig
	pool   *pgxpool.Pool
}

// NewPostgresRepository создает репозиторий поверх общего пула
func NewPostgresRepository[T Entity](pool *pgxpool.Pool, config PostgresConfig) (*PostgresRepository[T], error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresRepository[T]{config: config, pool: pool}, nil
}

func (p *PostgresRepository[T]) table() string {
	return pgx.Identifier{p.config.SchemaName, p.config.TableName}.Sanitize()
}

// Name возвращает имя компонента
func (p *PostgresRepository[T]) Name() string {
	return "postgres-repository:" + p.config.TableName
}

// Type возвращает тип компонента
func (p *PostgresRepository[T]) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

func mapPgError(err error, message string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return core.Wrap(err, core.KindConditionalWriteConflict, message)
	}
	return core.Wrap(err, core.KindPropagated, message)
}

// Insert вставляет сущность, если ее нет
func (p *PostgresRepository[T]) Insert(ctx context.Context, entity T) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to marshal entity")
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, data) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, p.table())
	result, err := p.pool.Exec(ctx, query, entity.ID(), data)
	if err != nil {
		return mapPgError(err, "failed to insert entity")
	}
	if result.RowsAffected() == 0 {
		return core.Errorf(core.KindConditionalWriteConflict, "entity already exists: %s", entity.ID())
	}
	return nil
}

// Save сохраняет сущность
func (p *PostgresRepository[T]) Save(ctx context.Context, entity T) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to marshal entity")
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, data)
		VALUES ($1, $2)
		ON CONFLICT (id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, p.table())

	if _, err := p.pool.Exec(ctx, query, entity.ID(), data); err != nil {
		return mapPgError(err, "failed to save entity")
	}
	return nil
}

// FindByID находит сущность по ID
func (p *PostgresRepository[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	query := fmt.Sprintf("SELECT data FROM %s WHERE id = $1", p.table())

	var data []byte
	if err := p.pool.QueryRow(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return zero, core.Errorf(core.KindNotFound, "entity not found: %s", id)
		}
		return zero, core.Wrap(err, core.KindPropagated, "failed to find entity")
	}

	var entity T
	if err := json.Unmarshal(data, &entity); err != nil {
		return zero, core.Wrap(err, core.KindPropagated, "failed to unmarshal entity")
	}
	return entity, nil
}

// FindBy находит сущности по полю JSONB документа
func (p *PostgresRepository[T]) FindBy(ctx context.Context, field, value string) ([]T, error) {
	query := fmt.Sprintf("SELECT data FROM %s WHERE data->>$1 = $2", p.table())

	rows, err := p.pool.Query(ctx, query, field, value)
	if err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to query entities")
	}
	defer rows.Close()

	results := make([]T, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, core.Wrap(err, core.KindPropagated, "failed to scan entity")
		}
		var entity T
		if err := json.Unmarshal(data, &entity); err != nil {
			return nil, core.Wrap(err, core.KindPropagated, "failed to unmarshal entity")
		}
		results = append(results, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to iterate entities")
	}
	return results, nil
}

// Update применяет patch через оператор jsonb ||
func (p *PostgresRepository[T]) Update(ctx context.Context, id string, patch Patch) error {
	data, err := json.Marshal(patch)
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to marshal patch")
	}

	query := fmt.Sprintf("UPDATE %s SET data = data || $1::jsonb, updated_at = NOW() WHERE id = $2", p.table())
	result, err := p.pool.Exec(ctx, query, data, id)
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to update entity")
	}
	if result.RowsAffected() == 0 {
		return core.Errorf(core.KindNotFound, "entity not found: %s", id)
	}
	return nil
}

// UpdateBy применяет patch ко всем строкам с data->>field = value
func (p *PostgresRepository[T]) UpdateBy(ctx context.Context, field, value string, patch Patch) (int64, error) {
	data, err := json.Marshal(patch)
	if err != nil {
		return 0, core.Wrap(err, core.KindPropagated, "failed to marshal patch")
	}

	query := fmt.Sprintf("UPDATE %s SET data = data || $1::jsonb, updated_at = NOW() WHERE data->>$2 = $3", p.table())
	result, err := p.pool.Exec(ctx, query, data, field, value)
	if err != nil {
		return 0, core.Wrap(err, core.KindPropagated, "failed to update entities")
	}
	return result.RowsAffected(), nil
}

// Delete удаляет сущность
func (p *PostgresRepository[T]) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", p.table())

	result, err := p.pool.Exec(ctx, query, id)
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to delete entity")
	}
	if result.RowsAffected() == 0 {
		return core.Errorf(core.KindNotFound, "entity not found: %s", id)
	}
	return nil
}

// DeleteBy удаляет все строки с data->>field = value
func (p *PostgresRepository[T]) DeleteBy(ctx context.Context, field, value string) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE data->>$1 = $2", p.table())

	result, err := p.pool.Exec(ctx, query, field, value)
	if err != nil {
		return 0, core.Wrap(err, core.KindPropagated, "failed to delete entities")
	}
	return result.RowsAffected(), nil
}
