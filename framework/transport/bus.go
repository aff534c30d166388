package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/akriventsev/commerce/framework/core"
)

// InMemoryCommandBus синхронная шина команд: ровно один обработчик на тип команды
type InMemoryCommandBus struct {
	mu         sync.RWMutex
	handlers   map[string]CommandHandler
	middleware []CommandInterceptor
}

// NewInMemoryCommandBus создает новую шину команд
func NewInMemoryCommandBus() *InMemoryCommandBus {
	return &InMemoryCommandBus{
		handlers:   make(map[string]CommandHandler),
		middleware: make([]CommandInterceptor, 0),
	}
}

// Dispatch выполняет команду в контексте вызывающего и возвращает результат обработчика
func (b *InMemoryCommandBus) Dispatch(ctx context.Context, cmd Command) (interface{}, error) {
	b.mu.RLock()
	handler, exists := b.handlers[cmd.CommandName()]
	middleware := b.middleware
	b.mu.RUnlock()

	if !exists {
		return nil, core.Errorf(core.KindUnhandledCommand, "no handler registered for command: %s", cmd.CommandName())
	}

	next := func(ctx context.Context, cmd Command) (interface{}, error) {
		return handler.Handle(ctx, cmd)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prevNext := next
		next = func(ctx context.Context, cmd Command) (interface{}, error) {
			return mw.Intercept(ctx, cmd, prevNext)
		}
	}

	return next(ctx, cmd)
}

// Register регистрирует обработчик команды
func (b *InMemoryCommandBus) Register(handler CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	commandName := handler.CommandName()
	if _, exists := b.handlers[commandName]; exists {
		return fmt.Errorf("handler already registered for command: %s", commandName)
	}

	b.handlers[commandName] = handler
	return nil
}

// Has проверяет наличие обработчика
func (b *InMemoryCommandBus) Has(commandName string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[commandName]
	return ok
}

// WithMiddleware добавляет middleware к шине. Первый добавленный выполняется первым.
func (b *InMemoryCommandBus) WithMiddleware(middleware ...CommandInterceptor) *InMemoryCommandBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware...)
	return b
}

// InMemoryQueryBus шина запросов в памяти
type InMemoryQueryBus struct {
	mu         sync.RWMutex
	handlers   map[string]QueryHandler
	middleware []QueryInterceptor
}

// NewInMemoryQueryBus создает новую шину запросов
func NewInMemoryQueryBus() *InMemoryQueryBus {
	return &InMemoryQueryBus{
		handlers:   make(map[string]QueryHandler),
		middleware: make([]QueryInterceptor, 0),
	}
}

// Ask отправляет запрос через шину
func (b *InMemoryQueryBus) Ask(ctx context.Context, q Query) (interface{}, error) {
	b.mu.RLock()
	handler, exists := b.handlers[q.QueryName()]
	middleware := b.middleware
	b.mu.RUnlock()

	if !exists {
		return nil, core.Errorf(core.KindUnhandledCommand, "no handler registered for query: %s", q.QueryName())
	}

	next := func(ctx context.Context, q Query) (interface{}, error) {
		return handler.Handle(ctx, q)
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prevNext := next
		next = func(ctx context.Context, q Query) (interface{}, error) {
			return mw.Intercept(ctx, q, prevNext)
		}
	}

	return next(ctx, q)
}

// Register регистрирует обработчик запроса
func (b *InMemoryQueryBus) Register(handler QueryHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	queryName := handler.QueryName()
	if _, exists := b.handlers[queryName]; exists {
		return fmt.Errorf("handler already registered for query: %s", queryName)
	}

	b.handlers[queryName] = handler
	return nil
}

// WithMiddleware добавляет middleware к шине
func (b *InMemoryQueryBus) WithMiddleware(middleware ...QueryInterceptor) *InMemoryQueryBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware...)
	return b
}
