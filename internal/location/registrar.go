package location

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akriventsev/commerce/framework/core"
)

// userLocks мьютексы по ключу пользователя. Запись удаляется,
// когда последний владелец ее отпускает.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Registrar создает представления так, чтобы у пользователя оставалась
// одна текущая локация. Операции одного пользователя выполняются
// последовательно внутри процесса.
type Registrar struct {
	views  *ViewStore
	locks  *userLocks
	logger *zap.Logger
}

// NewRegistrar создает регистратор
func NewRegistrar(views *ViewStore, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{views: views, locks: newUserLocks(), logger: logger.Named("location-registrar")}
}

// Create сохраняет представление. Если представление с таким id уже есть,
// возвращает его без изменений. Иначе снимает isCurrent со всех
// представлений пользователя и вставляет новое с переданным флагом, так
// что после вставки текущим может быть только новое представление.
func (r *Registrar) Create(ctx context.Context, v View) (View, error) {
	unlock := r.locks.lock(v.UserID)
	defer unlock()

	var (
		existing View
		found    bool
		siblings []View
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		got, err := r.views.Get(gctx, v.LocationID)
		if core.IsKind(err, core.KindNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existing, found = got, true
		return nil
	})
	g.Go(func() error {
		list, err := r.views.ListByUser(gctx, v.UserID)
		siblings = list
		return err
	})
	if err := g.Wait(); err != nil {
		r.logger.Error("failed to load location views", zap.String("user_id", v.UserID), zap.Error(err))
		return View{}, core.Wrap(err, core.KindPropagated, "failed to load location views")
	}

	if found {
		r.logger.Debug("location view already exists", zap.String("location_id", v.LocationID))
		return existing, nil
	}

	if hasCurrent(siblings) {
		if _, err := r.views.ClearCurrent(ctx, v.UserID); err != nil {
			r.logger.Error("failed to clear current location", zap.String("user_id", v.UserID), zap.Error(err))
			return View{}, core.Wrap(err, core.KindPropagated, "failed to clear current location")
		}
	}

	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	err := r.views.Insert(ctx, v)
	if core.IsKind(err, core.KindConditionalWriteConflict) {
		r.logger.Warn("location view inserted concurrently", zap.String("location_id", v.LocationID))
		stored, getErr := r.views.Get(ctx, v.LocationID)
		if getErr != nil {
			return View{}, core.Wrap(getErr, core.KindPropagated, "failed to read location view")
		}
		return stored, nil
	}
	if err != nil {
		r.logger.Error("failed to insert location view", zap.String("location_id", v.LocationID), zap.Error(err))
		return View{}, core.Wrap(err, core.KindPropagated, "failed to insert location view")
	}
	return v, nil
}

// DeleteAll удаляет все представления пользователя
func (r *Registrar) DeleteAll(ctx context.Context, userID string) (int64, error) {
	unlock := r.locks.lock(userID)
	defer unlock()

	n, err := r.views.DeleteByUser(ctx, userID)
	if err != nil {
		r.logger.Error("failed to delete location views", zap.String("user_id", userID), zap.Error(err))
		return 0, core.Wrap(err, core.KindPropagated, "failed to delete location views")
	}
	if n == 0 {
		r.logger.Warn("no location views found", zap.String("user_id", userID))
	}
	return n, nil
}

func hasCurrent(views []View) bool {
	for _, v := range views {
		if v.IsCurrent {
			return true
		}
	}
	return false
}
