// Package repository предоставляет generic адаптеры для работы с различными storage backends.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
)

// Entity интерфейс для entity с ID
type Entity interface {
	ID() string
}

// Patch пофилдовое обновление. Ключи совпадают с JSON именами полей сущности
// (для MongoDB bson имена полей совпадают с JSON).
type Patch map[string]interface{}

// Repository интерфейс хранилища агрегатов и представлений
type Repository[T Entity] interface {
	// Insert вставляет сущность, если ее нет. Существующий id дает KindConditionalWriteConflict.
	Insert(ctx context.Context, entity T) error
	// Save сохраняет сущность (upsert)
	Save(ctx context.Context, entity T) error
	// FindByID точечный поиск. Отсутствие дает KindNotFound.
	FindByID(ctx context.Context, id string) (T, error)
	// FindBy поиск по вторичному атрибуту, порядок не гарантирован
	FindBy(ctx context.Context, field, value string) ([]T, error)
	// Update применяет patch к одной сущности. Отсутствие дает KindNotFound.
	Update(ctx context.Context, id string, patch Patch) error
	// UpdateBy применяет patch ко всем сущностям с field == value
	UpdateBy(ctx context.Context, field, value string, patch Patch) (int64, error)
	// Delete удаляет сущность. Отсутствие дает KindNotFound.
	Delete(ctx context.Context, id string) error
	// DeleteBy удаляет все сущности с field == value
	DeleteBy(ctx context.Context, field, value string) (int64, error)
}

// applyPatch применяет patch через JSON представление сущности
func applyPatch[T Entity](entity T, patch Patch) (T, error) {
	var zero T
	raw, err := json.Marshal(entity)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal entity: %w", err)
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(raw, &fields); err != nil {
		return zero, fmt.Errorf("failed to unmarshal entity: %w", err)
	}
	for k, v := range patch {
		fields[k] = v
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal patched entity: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("failed to unmarshal patched entity: %w", err)
	}
	return out, nil
}
