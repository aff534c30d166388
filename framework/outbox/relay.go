package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/metrics"
	"github.com/akriventsev/commerce/framework/transport"
)

// RelayConfig параметры доставки
type RelayConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ClaimLease время, после которого незавершенная доставка считается
	// прерванной и запись захватывается снова. 0 означает значение по умолчанию.
	ClaimLease time.Duration
}

const defaultClaimLease = 5 * time.Minute

const errLeaseExpired = "claim lease expired"

// DefaultRelayConfig возвращает конфигурацию по умолчанию
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval:   time.Second,
		BatchSize:      50,
		MaxRetries:     8,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     time.Minute,
		ClaimLease:     defaultClaimLease,
	}
}

// Validate проверяет конфигурацию
func (c RelayConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("invalid backoff range")
	}
	if c.ClaimLease < 0 {
		return fmt.Errorf("claim lease cannot be negative")
	}
	return nil
}

// Backoff возвращает задержку перед попыткой attempt (начиная с 1)
func (c RelayConfig) Backoff(attempt int) time.Duration {
	d := c.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return d
}

// Relay периодически забирает готовые записи и передает их в Sink.
// Неудачная доставка повторяется с экспоненциальной задержкой, после
// MaxRetries попыток запись получает статус FAILED.
type Relay struct {
	config  RelayConfig
	store   Store
	sink    Sink
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	notify  chan struct{}
	stop    chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRelay создает relay
func NewRelay(config RelayConfig, store Store, sink Sink, logger *zap.Logger, m *metrics.Metrics) (*Relay, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relay config: %w", err)
	}
	if store == nil || sink == nil {
		return nil, fmt.Errorf("store and sink are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ClaimLease == 0 {
		config.ClaimLease = defaultClaimLease
	}
	return &Relay{
		config:  config,
		store:   store,
		sink:    sink,
		logger:  logger.Named("outbox"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		notify:  make(chan struct{}, 1),
	}, nil
}

// Start запускает цикл опроса
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop()
	return nil
}

func (r *Relay) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		case <-r.notify:
		}
		if _, err := r.ProcessOnce(context.Background()); err != nil {
			r.logger.Error("outbox batch processing failed", zap.Error(err))
		}
	}
}

// Notify будит relay без ожидания следующего тика
func (r *Relay) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// ProcessOnce обрабатывает одну пачку готовых записей и возвращает число доставленных
func (r *Relay) ProcessOnce(ctx context.Context) (int, error) {
	entries, err := r.store.ClaimDue(ctx, r.now(), r.config.ClaimLease, r.config.BatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, entry := range entries {
		if r.deliver(ctx, entry) {
			delivered++
		}
	}
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, entry Entry) bool {
	err := r.sink.Deliver(ctx, entry)
	r.metrics.RecordOutboxAttempt(ctx, entry.CommandName, err == nil)

	if err == nil {
		if markErr := r.store.MarkPublished(ctx, entry.ID); markErr != nil {
			r.logger.Error("failed to mark outbox entry as published",
				zap.String("entry_id", entry.ID),
				zap.Error(markErr))
		}
		return true
	}

	attempts := entry.Attempts + 1
	permanent := core.IsKind(err, core.KindUnhandledCommand)
	if permanent || attempts > r.config.MaxRetries {
		r.logger.Error("outbox entry failed permanently",
			zap.String("entry_id", entry.ID),
			zap.String("command", entry.CommandName),
			zap.Int("attempts", attempts),
			zap.Error(err))
		if markErr := r.store.MarkFailed(ctx, entry.ID, attempts, err.Error()); markErr != nil {
			r.logger.Error("failed to mark outbox entry as failed", zap.String("entry_id", entry.ID), zap.Error(markErr))
		}
		return false
	}

	next := r.now().Add(r.config.Backoff(attempts))
	r.logger.Warn("outbox delivery failed, retry scheduled",
		zap.String("entry_id", entry.ID),
		zap.String("command", entry.CommandName),
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(err))
	if markErr := r.store.MarkRetry(ctx, entry.ID, attempts, next, err.Error()); markErr != nil {
		r.logger.Error("failed to schedule outbox retry", zap.String("entry_id", entry.ID), zap.Error(markErr))
	}
	return false
}

// Stop останавливает цикл опроса
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stop)
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning проверяет, запущен ли relay
func (r *Relay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Name возвращает имя компонента
func (r *Relay) Name() string {
	return "outbox-relay"
}

// Type возвращает тип компонента
func (r *Relay) Type() core.ComponentType {
	return core.ComponentTypeWorker
}

// Outbox записывает команды для отложенной доставки
type Outbox struct {
	store  Store
	codec  *Codec
	notify func()
}

// New создает outbox. notify вызывается после каждой успешной записи, может быть nil.
func New(store Store, codec *Codec, notify func()) *Outbox {
	return &Outbox{store: store, codec: codec, notify: notify}
}

// Enqueue сохраняет команду. Ошибка возвращается вызывающему как KindPropagated.
func (o *Outbox) Enqueue(ctx context.Context, cmd transport.Command) (Entry, error) {
	name, payload, err := o.codec.Encode(cmd)
	if err != nil {
		return Entry{}, core.Wrap(err, core.KindPropagated, "failed to encode cascade command")
	}
	entry := NewEntry(name, payload)
	if err := o.store.Enqueue(ctx, entry); err != nil {
		return Entry{}, core.Wrap(err, core.KindPropagated, "failed to enqueue cascade command")
	}
	if o.notify != nil {
		o.notify()
	}
	return entry, nil
}
