package events

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/metrics"
	"github.com/akriventsev/commerce/framework/observability"
)

// ErrPublisherStopped публикация после остановки
var ErrPublisherStopped = errors.New("publisher is stopped")

// AsyncConfig конфигурация асинхронного публикатора
type AsyncConfig struct {
	Workers   int
	QueueSize int
	// HandlerTimeout ограничение на один вызов подписчика, 0 без ограничения
	HandlerTimeout time.Duration
}

// DefaultAsyncConfig возвращает конфигурацию по умолчанию
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{Workers: 4, QueueSize: 1024, HandlerTimeout: 30 * time.Second}
}

// Validate проверяет конфигурацию
func (c AsyncConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}
	return nil
}

// AsyncEventPublisher доставляет события подписчикам из Registry пулом воркеров.
// Каждый воркер владеет своей очередью, очередь выбирается по ключу упорядочивания,
// поэтому события с одним ключом обрабатываются последовательно в порядке публикации.
// Доставка at-most-once: ошибка подписчика логируется и не повторяется.
type AsyncEventPublisher struct {
	config   AsyncConfig
	registry *Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics

	shards   []chan Event
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	stopped  bool
	stopOnce sync.Once
}

// NewAsyncEventPublisher создает публикатор поверх реестра подписок
func NewAsyncEventPublisher(config AsyncConfig, registry *Registry, logger *zap.Logger, m *metrics.Metrics) (*AsyncEventPublisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	shards := make([]chan Event, config.Workers)
	for i := range shards {
		shards[i] = make(chan Event, config.QueueSize)
	}
	return &AsyncEventPublisher{
		config:   config,
		registry: registry,
		logger:   logger.Named("events"),
		metrics:  m,
		shards:   shards,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start замораживает реестр и запускает по воркеру на очередь
func (p *AsyncEventPublisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if p.stopped {
		return ErrPublisherStopped
	}

	p.registry.Freeze()
	for _, queue := range p.shards {
		p.wg.Add(1)
		go p.worker(queue)
	}
	p.running = true
	p.logger.Info("event publisher started",
		zap.Int("workers", p.config.Workers),
		zap.Strings("event_types", p.registry.EventTypes()))
	return nil
}

// Publish ставит событие в очередь его ключа и возвращается, не дожидаясь подписчиков.
// Read lock удерживается до постановки в очередь: Stop не начнет дренаж,
// пока идущие публикации не завершились.
func (p *AsyncEventPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPublisherStopped
	}

	select {
	case p.shardFor(event) <- event:
		p.metrics.RecordEventPublished(ctx, event.EventType())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *AsyncEventPublisher) shardFor(event Event) chan Event {
	if len(p.shards) == 1 {
		return p.shards[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(OrderingKeyOf(event)))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

func (p *AsyncEventPublisher) worker(queue chan Event) {
	defer p.wg.Done()
	for {
		select {
		case event := <-queue:
			p.deliver(event)
		case <-p.stopCh:
			for {
				select {
				case event := <-queue:
					p.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver вызывает всех подписчиков на тип события. Контекст публикации
// не переносится: доставка не должна зависеть от завершения исходного запроса.
func (p *AsyncEventPublisher) deliver(event Event) {
	for _, sub := range p.registry.For(event.EventType()) {
		ctx := context.Background()
		var cancel context.CancelFunc = func() {}
		if p.config.HandlerTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, p.config.HandlerTimeout)
		}
		err := p.invoke(ctx, sub, event)
		cancel()

		p.metrics.RecordEventHandled(ctx, event.EventType(), sub.Name, err == nil)
		if err != nil {
			p.logger.Error("event subscriber failed",
				zap.String("subscriber", sub.Name),
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID()),
				zap.String("aggregate_id", event.AggregateID()),
				zap.Error(err))
		}
	}
}

func (p *AsyncEventPublisher) invoke(ctx context.Context, sub Subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.Errorf(core.KindPropagated, "subscriber %s panicked: %v", sub.Name, r)
		}
	}()
	return observability.TraceEvent(ctx, event.EventType(), func(ctx context.Context) error {
		return sub.Handler.Handle(ctx, event)
	})
}

// Stop останавливает прием событий и дожидается обработки очереди.
// Метод идемпотентен.
func (p *AsyncEventPublisher) Stop(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		wasRunning := p.running
		p.running = false
		p.mu.Unlock()

		close(p.stopCh)
		if !wasRunning {
			return
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// IsRunning проверяет, запущен ли публикатор
func (p *AsyncEventPublisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Name возвращает имя компонента
func (p *AsyncEventPublisher) Name() string {
	return "async-event-publisher"
}

// Type возвращает тип компонента
func (p *AsyncEventPublisher) Type() core.ComponentType {
	return core.ComponentTypeEventBus
}
