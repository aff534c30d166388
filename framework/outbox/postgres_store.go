package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akriventsev/commerce/framework/core"
)

// PostgresStore хранилище outbox в PostgreSQL. Таблица создается миграциями.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresStore создает хранилище поверх пула соединений
func NewPostgresStore(pool *pgxpool.Pool, schema, table string) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if schema == "" {
		schema = "public"
	}
	if table == "" {
		table = "outbox"
	}
	return &PostgresStore{pool: pool, table: pgx.Identifier{schema, table}.Sanitize()}, nil
}

const entryColumns = "id, command_name, payload, status, attempts, next_attempt_at, last_error, created_at"

const selectColumns = entryColumns + ", claimed_at"

func (s *PostgresStore) Enqueue(ctx context.Context, entry Entry) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table, entryColumns)
	_, err := s.pool.Exec(ctx, query,
		entry.ID, entry.CommandName, entry.Payload, string(entry.Status),
		entry.Attempts, entry.NextAttemptAt, entry.LastError, entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return core.Wrap(err, core.KindConditionalWriteConflict, "outbox entry already exists")
		}
		return core.Wrap(err, core.KindPropagated, "failed to enqueue outbox entry")
	}
	return nil
}

// ClaimDue захватывает записи через FOR UPDATE SKIP LOCKED, чтобы несколько
// relay не доставляли одну запись одновременно. Записи с истекшей арендой
// захватываются повторно.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Entry, error) {
	query := fmt.Sprintf(`
		UPDATE %[1]s SET
			attempts = attempts + CASE WHEN status = $1 THEN 1 ELSE 0 END,
			last_error = CASE WHEN status = $1 THEN $6 ELSE last_error END,
			status = $1, claimed_at = $3, updated_at = NOW()
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE (status = $2 AND next_attempt_at <= $3)
			   OR (status = $1 AND COALESCE(claimed_at, updated_at) <= $4)
			ORDER BY created_at
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %[2]s`, s.table, selectColumns)

	rows, err := s.pool.Query(ctx, query,
		string(StatusProcessing), string(StatusPending), now, now.Add(-lease), limit, errLeaseExpired)
	if err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to claim outbox entries")
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2, attempts = attempts + 1, last_error = '', updated_at = NOW() WHERE id = $1`, s.table)
	return s.exec(ctx, query, id, string(StatusPublished))
}

func (s *PostgresStore) MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2, attempts = $3, next_attempt_at = $4, last_error = $5, updated_at = NOW() WHERE id = $1`, s.table)
	return s.exec(ctx, query, id, string(StatusPending), attempts, next, lastErr)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $2, attempts = $3, last_error = $4, updated_at = NOW() WHERE id = $1`, s.table)
	return s.exec(ctx, query, id, string(StatusFailed), attempts, lastErr)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.table)
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return Entry{}, core.Wrap(err, core.KindPropagated, "failed to load outbox entry")
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, core.Errorf(core.KindNotFound, "outbox entry %s not found", id)
	}
	return entries[0], nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = $1 ORDER BY created_at`, selectColumns, s.table)
	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to list outbox entries")
	}
	return scanEntries(rows)
}

func (s *PostgresStore) exec(ctx context.Context, query string, args ...interface{}) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to update outbox entry")
	}
	if tag.RowsAffected() == 0 {
		return core.Errorf(core.KindNotFound, "outbox entry %v not found", args[0])
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var status string
		var claimedAt *time.Time
		if err := rows.Scan(&e.ID, &e.CommandName, &e.Payload, &status, &e.Attempts, &e.NextAttemptAt, &e.LastError, &e.CreatedAt, &claimedAt); err != nil {
			return nil, core.Wrap(err, core.KindPropagated, "failed to scan outbox entry")
		}
		e.Status = Status(status)
		if claimedAt != nil {
			e.ClaimedAt = claimedAt.UTC()
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to iterate outbox entries")
	}
	return entries, nil
}

var _ Store = (*PostgresStore)(nil)
