package repository

import (
	"context"
	"sync"

	"github.com/akriventsev/commerce/framework/core"
)

// InMemoryConfig конфигурация для InMemory репозитория
type InMemoryConfig struct {
	// MaxEntities максимальное количество сущностей (0 = без ограничений)
	MaxEntities int
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{}
}

// InMemoryRepository generic in-memory репозиторий со вторичными индексами
type InMemoryRepository[T Entity] struct {
	config   InMemoryConfig
	entities map[string]T
	indexes  map[string]map[string]map[string]struct{} // index -> key -> ids
	keyFuncs map[string]func(T) string
	mu       sync.RWMutex
}

// NewInMemoryRepository создает новый in-memory репозиторий
func NewInMemoryRepository[T Entity](config InMemoryConfig) *InMemoryRepository[T] {
	return &InMemoryRepository[T]{
		config:   config,
		entities: make(map[string]T),
		indexes:  make(map[string]map[string]map[string]struct{}),
		keyFuncs: make(map[string]func(T) string),
	}
}

// AddIndex добавляет вторичный индекс. Имя индекса совпадает с именем поля,
// по которому ищет FindBy.
func (r *InMemoryRepository[T]) AddIndex(field string, keyFunc func(T) string) *InMemoryRepository[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.keyFuncs[field] = keyFunc
	r.indexes[field] = make(map[string]map[string]struct{})
	for id, entity := range r.entities {
		r.indexOne(field, keyFunc(entity), id)
	}
	return r
}

func (r *InMemoryRepository[T]) indexOne(field, key, id string) {
	ids := r.indexes[field][key]
	if ids == nil {
		ids = make(map[string]struct{})
		r.indexes[field][key] = ids
	}
	ids[id] = struct{}{}
}

func (r *InMemoryRepository[T]) index(entity T) {
	for field, keyFunc := range r.keyFuncs {
		r.indexOne(field, keyFunc(entity), entity.ID())
	}
}

func (r *InMemoryRepository[T]) unindex(entity T) {
	id := entity.ID()
	for field, keyFunc := range r.keyFuncs {
		key := keyFunc(entity)
		if ids, ok := r.indexes[field][key]; ok {
			delete(ids, id)
			if len(ids) == 0 {
				delete(r.indexes[field], key)
			}
		}
	}
}

func (r *InMemoryRepository[T]) checkLimit(id string) error {
	if r.config.MaxEntities <= 0 {
		return nil
	}
	if _, exists := r.entities[id]; exists {
		return nil
	}
	if len(r.entities) >= r.config.MaxEntities {
		return core.Errorf(core.KindPropagated, "repository limit reached: max %d entities", r.config.MaxEntities)
	}
	return nil
}

// Insert вставляет сущность, если ее нет
func (r *InMemoryRepository[T]) Insert(ctx context.Context, entity T) error {
	id := entity.ID()
	if id == "" {
		return core.NewError(core.KindInvalidArgument, "entity ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[id]; exists {
		return core.Errorf(core.KindConditionalWriteConflict, "entity already exists: %s", id)
	}
	if err := r.checkLimit(id); err != nil {
		return err
	}
	r.entities[id] = entity
	r.index(entity)
	return nil
}

// Save сохраняет сущность
func (r *InMemoryRepository[T]) Save(ctx context.Context, entity T) error {
	id := entity.ID()
	if id == "" {
		return core.NewError(core.KindInvalidArgument, "entity ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkLimit(id); err != nil {
		return err
	}
	if old, exists := r.entities[id]; exists {
		r.unindex(old)
	}
	r.entities[id] = entity
	r.index(entity)
	return nil
}

// FindByID находит сущность по ID
func (r *InMemoryRepository[T]) FindByID(ctx context.Context, id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entity, exists := r.entities[id]
	if !exists {
		var zero T
		return zero, core.Errorf(core.KindNotFound, "entity not found: %s", id)
	}
	return entity, nil
}

// FindBy находит сущности по вторичному индексу
func (r *InMemoryRepository[T]) FindBy(ctx context.Context, field, value string) ([]T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index, exists := r.indexes[field]
	if !exists {
		return nil, core.Errorf(core.KindInvalidArgument, "index not found: %s", field)
	}

	results := make([]T, 0, len(index[value]))
	for id := range index[value] {
		results = append(results, r.entities[id])
	}
	return results, nil
}

// Update применяет patch к сущности
func (r *InMemoryRepository[T]) Update(ctx context.Context, id string, patch Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, exists := r.entities[id]
	if !exists {
		return core.Errorf(core.KindNotFound, "entity not found: %s", id)
	}
	return r.replace(entity, patch)
}

// UpdateBy применяет patch ко всем сущностям из индекса
func (r *InMemoryRepository[T]) UpdateBy(ctx context.Context, field, value string, patch Patch) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, exists := r.indexes[field]
	if !exists {
		return 0, core.Errorf(core.KindInvalidArgument, "index not found: %s", field)
	}

	targets := make([]T, 0, len(index[value]))
	for id := range index[value] {
		targets = append(targets, r.entities[id])
	}
	for _, entity := range targets {
		if err := r.replace(entity, patch); err != nil {
			return 0, err
		}
	}
	return int64(len(targets)), nil
}

func (r *InMemoryRepository[T]) replace(entity T, patch Patch) error {
	updated, err := applyPatch(entity, patch)
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to apply patch")
	}
	r.unindex(entity)
	r.entities[entity.ID()] = updated
	r.index(updated)
	return nil
}

// Delete удаляет сущность
func (r *InMemoryRepository[T]) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, exists := r.entities[id]
	if !exists {
		return core.Errorf(core.KindNotFound, "entity not found: %s", id)
	}
	r.unindex(entity)
	delete(r.entities, id)
	return nil
}

// DeleteBy удаляет все сущности из индекса
func (r *InMemoryRepository[T]) DeleteBy(ctx context.Context, field, value string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, exists := r.indexes[field]
	if !exists {
		return 0, core.Errorf(core.KindInvalidArgument, "index not found: %s", field)
	}

	ids := make([]string, 0, len(index[value]))
	for id := range index[value] {
		ids = append(ids, id)
	}
	for _, id := range ids {
		r.unindex(r.entities[id])
		delete(r.entities, id)
	}
	return int64(len(ids)), nil
}

// Count возвращает количество сущностей
func (r *InMemoryRepository[T]) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities), nil
}
