package cqrs

import (
	"fmt"
	"sort"
	"sync"

	"github.com/akriventsev/commerce/framework/transport"
)

// Module модуль предметной области, объявляющий свои обработчики
type Module interface {
	Name() string
	RegisterHandlers(r *Registry) error
}

// Registry собирает обработчики модулей и переносит их в шины.
// Повторная регистрация имени команды или запроса является ошибкой.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]transport.CommandHandler
	queries  map[string]transport.QueryHandler
	owners   map[string]string
}

// NewRegistry создает новый реестр
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]transport.CommandHandler),
		queries:  make(map[string]transport.QueryHandler),
		owners:   make(map[string]string),
	}
}

// RegisterCommandHandler регистрирует обработчик команды
func (r *Registry) RegisterCommandHandler(handler transport.CommandHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.CommandName()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("command handler already registered: %s", name)
	}
	r.commands[name] = handler
	return nil
}

// RegisterQueryHandler регистрирует обработчик запроса
func (r *Registry) RegisterQueryHandler(handler transport.QueryHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.QueryName()
	if _, exists := r.queries[name]; exists {
		return fmt.Errorf("query handler already registered: %s", name)
	}
	r.queries[name] = handler
	return nil
}

// RegisterModules вызывает RegisterHandlers каждого модуля
func (r *Registry) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		before := r.CommandNames()
		if err := m.RegisterHandlers(r); err != nil {
			return fmt.Errorf("module %s: %w", m.Name(), err)
		}
		r.mu.Lock()
		for name := range r.commands {
			if !contains(before, name) {
				r.owners[name] = m.Name()
			}
		}
		r.mu.Unlock()
	}
	return nil
}

// Owner возвращает модуль, зарегистрировавший команду
func (r *Registry) Owner(commandName string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[commandName]
	return owner, ok
}

// Apply переносит обработчики в шины
func (r *Registry) Apply(commandBus transport.CommandBus, queryBus transport.QueryBus) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range sortedKeys(r.commands) {
		if err := commandBus.Register(r.commands[name]); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(r.queries) {
		if err := queryBus.Register(r.queries[name]); err != nil {
			return err
		}
	}
	return nil
}

// CommandNames возвращает отсортированные имена команд
func (r *Registry) CommandNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.commands)
}

// QueryNames возвращает отсортированные имена запросов
func (r *Registry) QueryNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.queries)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
