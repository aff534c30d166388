package location

import (
	"context"
	"time"

	"github.com/akriventsev/commerce/framework/adapters/repository"
)

const userField = "userId"

// ViewStore доступ к представлениям локаций. Репозиторий должен
// поддерживать FindBy, UpdateBy и DeleteBy по "userId".
type ViewStore struct {
	repo repository.Repository[View]
}

// NewViewStore создает хранилище представлений
func NewViewStore(repo repository.Repository[View]) *ViewStore {
	return &ViewStore{repo: repo}
}

// NewInMemoryViews in-memory репозиторий представлений с индексом пользователя
func NewInMemoryViews() *repository.InMemoryRepository[View] {
	return repository.NewInMemoryRepository[View](repository.DefaultInMemoryConfig()).
		AddIndex(userField, func(v View) string { return v.UserID })
}

// NewInMemoryRecords in-memory репозиторий записей с индексом пользователя
func NewInMemoryRecords() *repository.InMemoryRepository[Record] {
	return repository.NewInMemoryRepository[Record](repository.DefaultInMemoryConfig()).
		AddIndex(userField, func(r Record) string { return r.UserID })
}

// Get точечный поиск по id локации
func (s *ViewStore) Get(ctx context.Context, locationID string) (View, error) {
	return s.repo.FindByID(ctx, locationID)
}

// ListByUser все представления пользователя, порядок не определен
func (s *ViewStore) ListByUser(ctx context.Context, userID string) ([]View, error) {
	return s.repo.FindBy(ctx, userField, userID)
}

// ClearCurrent снимает флаг isCurrent со всех представлений пользователя
func (s *ViewStore) ClearCurrent(ctx context.Context, userID string) (int64, error) {
	return s.repo.UpdateBy(ctx, userField, userID, repository.Patch{
		"isCurrent": false,
		"updatedAt": time.Now().UTC(),
	})
}

// Insert вставляет представление, если его еще нет
func (s *ViewStore) Insert(ctx context.Context, v View) error {
	return s.repo.Insert(ctx, v)
}

// DeleteByUser удаляет все представления пользователя
func (s *ViewStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return s.repo.DeleteBy(ctx, userField, userID)
}
