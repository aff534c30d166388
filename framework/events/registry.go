package events

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRegistryFrozen подписка после запуска доставки
var ErrRegistryFrozen = errors.New("event registry is frozen")

// Subscription явная регистрация подписчика на тип события
type Subscription struct {
	// Name имя подписчика для логов и метрик
	Name      string
	EventType string
	Handler   EventHandler
}

// Registry перечень подписок, который собирается при старте и затем замораживается
type Registry struct {
	mu     sync.RWMutex
	subs   map[string][]Subscription
	frozen bool
}

// NewRegistry создает реестр с начальным набором подписок
func NewRegistry(subs ...Subscription) (*Registry, error) {
	r := &Registry{subs: make(map[string][]Subscription)}
	for _, s := range subs {
		if err := r.Subscribe(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Subscribe добавляет подписку
func (r *Registry) Subscribe(s Subscription) error {
	if s.EventType == "" || s.Handler == nil {
		return fmt.Errorf("subscription %q requires event type and handler", s.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("subscribe %s to %s: %w", s.Name, s.EventType, ErrRegistryFrozen)
	}
	for _, existing := range r.subs[s.EventType] {
		if s.Name != "" && existing.Name == s.Name {
			return fmt.Errorf("subscriber %s already registered for %s", s.Name, s.EventType)
		}
	}
	r.subs[s.EventType] = append(r.subs[s.EventType], s)
	return nil
}

// Freeze запрещает дальнейшие подписки
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen проверяет, заморожен ли реестр
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// For возвращает подписки на тип события
func (r *Registry) For(eventType string) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subs := r.subs[eventType]
	out := make([]Subscription, len(subs))
	copy(out, subs)
	return out
}

// EventTypes возвращает типы событий, на которые есть подписки
func (r *Registry) EventTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.subs))
	for t := range r.subs {
		types = append(types, t)
	}
	return types
}
