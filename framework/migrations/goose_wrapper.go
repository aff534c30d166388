// Package migrations управляет схемой PostgreSQL через goose и встроенные SQL миграции.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

// Dir каталог миграций внутри встроенной файловой системы
const Dir = "sql"

// MigrationStatus представляет статус миграции
type MigrationStatus struct {
	Version   int64
	Name      string
	AppliedAt *time.Time
	Status    string // "pending", "applied"
}

func init() {
	goose.SetBaseFS(embedded)
}

// Open открывает database/sql соединение через драйвер pgx
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := SetDialect("postgres"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// RunMigrations применяет все pending миграции
func RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := goose.UpContext(ctx, db, Dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RunMigrationsLimited применяет не больше steps pending миграций
func RunMigrationsLimited(ctx context.Context, db *sql.DB, steps int64) error {
	if steps <= 0 {
		return RunMigrations(ctx, db)
	}

	currentVersion, err := GetCurrentVersion(ctx, db)
	if err != nil {
		// таблицы версий еще нет
		currentVersion = 0
	}

	all, err := Collect()
	if err != nil {
		return err
	}

	var pending []*goose.Migration
	for _, m := range all {
		if m.Version > currentVersion {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	target := pending[len(pending)-1].Version
	if int64(len(pending)) > steps {
		target = pending[steps-1].Version
	}

	if err := goose.UpToContext(ctx, db, Dir, target); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RollbackMigrations откатывает steps последних миграций
func RollbackMigrations(ctx context.Context, db *sql.DB, steps int64) error {
	if steps <= 1 {
		if err := goose.DownContext(ctx, db, Dir); err != nil {
			return fmt.Errorf("failed to rollback migration: %w", err)
		}
		return nil
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	var target int64
	if int64(len(applied)) > steps {
		target = applied[int64(len(applied))-steps-1]
	}

	if err := goose.DownToContext(ctx, db, Dir, target); err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) ([]int64, error) {
	current, err := GetCurrentVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	all, err := Collect()
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, m := range all {
		if m.Version <= current {
			out = append(out, m.Version)
		}
	}
	return out, nil
}

// Collect возвращает встроенные миграции в порядке версий
func Collect() (goose.Migrations, error) {
	migrations, err := goose.CollectMigrations(Dir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to collect migrations: %w", err)
	}
	return migrations, nil
}

// GetMigrationStatus возвращает статус всех миграций
func GetMigrationStatus(ctx context.Context, db *sql.DB) ([]MigrationStatus, error) {
	migrations, err := Collect()
	if err != nil {
		return nil, err
	}

	currentVersion, err := GetCurrentVersion(ctx, db)
	if err != nil {
		// все миграции pending
		currentVersion = 0
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		status := MigrationStatus{
			Version: m.Version,
			Name:    filepath.Base(m.Source),
			Status:  "pending",
		}

		if m.Version <= currentVersion {
			var appliedAt time.Time
			err := db.QueryRowContext(ctx,
				"SELECT tstamp FROM goose_db_version WHERE version_id = $1 AND is_applied = true ORDER BY tstamp DESC LIMIT 1",
				m.Version,
			).Scan(&appliedAt)
			if err == nil {
				status.AppliedAt = &appliedAt
				status.Status = "applied"
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// GetCurrentVersion возвращает текущую версию БД
func GetCurrentVersion(ctx context.Context, db *sql.DB) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// CreateMigration создает файл миграции в dir. Новые файлы попадают в
// бинарь после пересборки, если dir указывает на каталог sql пакета.
func CreateMigration(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	all, err := Collect()
	if err != nil {
		return "", err
	}
	next := int64(1)
	if len(all) > 0 {
		next = all[len(all)-1].Version + 1
	}

	filename := fmt.Sprintf("%05d_%s.sql", next, name)
	path := filepath.Join(dir, filename)
	content := fmt.Sprintf("-- +goose Up\n-- Migration: %s\n\n\n-- +goose Down\n\n", name)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}
	return path, nil
}

// SetDialect устанавливает диалект БД.
// Если dialect пустой, устанавливается значение по умолчанию "postgres".
func SetDialect(dialect string) error {
	if dialect == "" {
		dialect = "postgres"
	}
	return goose.SetDialect(dialect)
}
