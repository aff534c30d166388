// Package messagebus содержит адаптеры внешних брокеров сообщений.
package messagebus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/transport"
)

// InMemoryConfig конфигурация in-memory брокера
type InMemoryConfig struct {
	BufferSize int
}

// DefaultInMemoryConfig возвращает конфигурацию по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{BufferSize: 256}
}

type inMemorySub struct {
	ch     chan *transport.Message
	cancel context.CancelFunc
	done   chan struct{}
}

// InMemoryAdapter брокер в памяти процесса. Каждая подписка получает
// собственную очередь и обрабатывает сообщения в порядке публикации.
type InMemoryAdapter struct {
	config InMemoryConfig
	logger *zap.Logger
	subs   map[string][]*inMemorySub
	mu     sync.RWMutex
	closed bool
}

// NewInMemoryAdapter создает in-memory брокер
func NewInMemoryAdapter(config InMemoryConfig, logger *zap.Logger) *InMemoryAdapter {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultInMemoryConfig().BufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryAdapter{
		config: config,
		logger: logger,
		subs:   make(map[string][]*inMemorySub),
	}
}

// Publish кладет копию сообщения в очередь каждого подписчика subject
func (a *InMemoryAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return core.NewError(core.KindPropagated, "message bus is closed")
	}

	for _, sub := range a.subs[subject] {
		msg := &transport.Message{
			Subject: subject,
			Data:    append([]byte(nil), data...),
			Headers: copyHeaders(headers),
		}
		select {
		case sub.ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe регистрирует обработчик subject
func (a *InMemoryAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	if handler == nil {
		return core.NewError(core.KindInvalidArgument, "handler is nil")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return core.NewError(core.KindPropagated, "message bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &inMemorySub{
		ch:     make(chan *transport.Message, a.config.BufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	a.subs[subject] = append(a.subs[subject], sub)

	go a.consume(subCtx, subject, sub, handler)
	return nil
}

func (a *InMemoryAdapter) consume(ctx context.Context, subject string, sub *inMemorySub, handler transport.MessageHandler) {
	defer close(sub.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.ch:
			if err := handler(ctx, msg); err != nil {
				a.logger.Warn("message handler failed",
					zap.String("subject", subject),
					zap.Error(err))
			}
		}
	}
}

// Unsubscribe снимает все подписки subject
func (a *InMemoryAdapter) Unsubscribe(subject string) error {
	a.mu.Lock()
	subs, ok := a.subs[subject]
	delete(a.subs, subject)
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: subscription %s", core.ErrNotFound, subject)
	}
	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return nil
}

// Close останавливает все подписки
func (a *InMemoryAdapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	all := a.subs
	a.subs = make(map[string][]*inMemorySub)
	a.mu.Unlock()

	for _, subs := range all {
		for _, sub := range subs {
			sub.cancel()
			<-sub.done
		}
	}
	return nil
}

func copyHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}

var _ transport.MessageBus = (*InMemoryAdapter)(nil)
