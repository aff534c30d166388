// Package outbox хранит намерения каскадных команд и доставляет их
// асинхронно с повторами (at-least-once).
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status состояние записи outbox
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusPublished  Status = "PUBLISHED"
	StatusFailed     Status = "FAILED"
)

// Entry сериализованная команда, ожидающая доставки
type Entry struct {
	ID            string    `json:"id"`
	CommandName   string    `json:"commandName"`
	Payload       []byte    `json:"payload"`
	Status        Status    `json:"status"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"nextAttemptAt"`
	LastError     string    `json:"lastError,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	// ClaimedAt момент последнего захвата relay, нулевой до первого захвата
	ClaimedAt time.Time `json:"claimedAt,omitempty"`
}

// NewEntry создает запись в статусе PENDING, готовую к немедленной доставке
func NewEntry(commandName string, payload []byte) Entry {
	now := time.Now().UTC()
	return Entry{
		ID:            uuid.New().String(),
		CommandName:   commandName,
		Payload:       payload,
		Status:        StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
}

// Store хранилище outbox
type Store interface {
	// Enqueue сохраняет новую запись
	Enqueue(ctx context.Context, entry Entry) error
	// ClaimDue переводит до limit готовых PENDING записей в PROCESSING и возвращает их.
	// Запись в PROCESSING, захваченная раньше now-lease, захватывается повторно,
	// прерванная доставка засчитывается как попытка.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Entry, error)
	// MarkPublished отмечает успешную доставку
	MarkPublished(ctx context.Context, id string) error
	// MarkRetry возвращает запись в PENDING с новым временем попытки
	MarkRetry(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error
	// MarkFailed окончательно отмечает запись как FAILED
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string) error
	// Get возвращает запись по id
	Get(ctx context.Context, id string) (Entry, error)
	// ListByStatus возвращает записи в заданном статусе
	ListByStatus(ctx context.Context, status Status) ([]Entry, error)
}
