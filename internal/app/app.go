// Package app собирает сервис из конфигурации: хранилища, шины, модули,
// доставку событий и relay каскадных команд.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	eventsadapter "github.com/akriventsev/commerce/framework/adapters/events"
	"github.com/akriventsev/commerce/framework/adapters/messagebus"
	"github.com/akriventsev/commerce/framework/config"
	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/cqrs"
	"github.com/akriventsev/commerce/framework/events"
	"github.com/akriventsev/commerce/framework/eventsourcing"
	"github.com/akriventsev/commerce/framework/logging"
	"github.com/akriventsev/commerce/framework/metrics"
	"github.com/akriventsev/commerce/framework/observability"
	"github.com/akriventsev/commerce/framework/outbox"
	"github.com/akriventsev/commerce/framework/transport"
	"github.com/akriventsev/commerce/internal/geocode"
	"github.com/akriventsev/commerce/internal/inventory"
	"github.com/akriventsev/commerce/internal/location"
	"github.com/akriventsev/commerce/internal/order"
	"github.com/akriventsev/commerce/internal/product"
	"github.com/akriventsev/commerce/internal/seller"
)

const (
	commandSubjectPrefix = "commands"
	eventSubjectPrefix   = "events"
)

// DomainEventTypes все типы доменных событий сервиса
var DomainEventTypes = []string{
	product.EventProductCreated,
	product.EventProductDeleted,
	inventory.EventInventoryUpdated,
	inventory.EventInventoryDeleted,
	order.EventOrderCreated,
	order.EventOrderDeleted,
	location.EventLocationSaved,
	location.EventUserLocationsDeleted,
	seller.EventSellerRegistered,
}

// App собранный сервис
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Commands *transport.InMemoryCommandBus
	Queries  *transport.InMemoryQueryBus
	Handlers *cqrs.Registry
	Metrics  *metrics.Metrics

	metricsProvider *metrics.Provider
	tracing         *observability.TracingManager
	stores          *stores
	redis           *redis.Client
	bus             transport.MessageBus
	publisher       *events.AsyncEventPublisher
	relay           *outbox.Relay
	consumer        *outbox.Consumer
	checks          []observability.HealthCheck

	mu        sync.Mutex
	started   []core.Lifecycle
	closeOnce sync.Once
}

// New собирает сервис. Внешние соединения открываются здесь, фоновые
// компоненты запускаются в Start.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	a := &App{Config: cfg, Logger: logger}

	if err := a.setupObservability(); err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.stores = st
	a.checks = append(a.checks, st.checks...)

	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		rdb := a.redis
		a.checks = append(a.checks, observability.HealthCheckFunc{
			CheckName: "redis",
			Fn:        func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	if a.bus, err = messagebus.New(cfg.MessageBus, a.redis, logger.Named("messagebus")); err != nil {
		a.closeResources(ctx)
		return nil, fmt.Errorf("failed to create message bus: %w", err)
	}
	if hc, ok := a.bus.(core.HealthCheckable); ok {
		a.checks = append(a.checks, observability.HealthCheckFunc{CheckName: "messagebus", Fn: hc.HealthCheck})
	}

	if err := a.wire(); err != nil {
		a.closeResources(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) setupObservability() error {
	cfg := a.Config
	if cfg.Metrics.Enabled {
		provider, err := metrics.Setup(cfg.App.Name, cfg.App.Version)
		if err != nil {
			return err
		}
		m, err := metrics.NewMetricsWithMeter(provider.Meter("commerce"))
		if err != nil {
			return fmt.Errorf("failed to create metrics: %w", err)
		}
		a.metricsProvider, a.Metrics = provider, m
	}

	tracing, err := observability.NewTracingManager(observability.TracingConfig{
		Enabled:          cfg.Tracing.Enabled,
		ServiceName:      cfg.App.Name,
		ServiceVersion:   cfg.App.Version,
		Exporter:         cfg.Tracing.Exporter,
		ExporterEndpoint: cfg.Tracing.Endpoint,
		SamplingRate:     cfg.Tracing.SamplingRate,
		Environment:      cfg.App.Env,
	})
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}
	a.tracing = tracing
	return nil
}

func (a *App) wire() error {
	cfg, logger, st := a.Config, a.Logger, a.stores

	a.Commands = transport.NewInMemoryCommandBus().WithMiddleware(
		cqrs.RecoveryCommandMiddleware(logger),
		cqrs.LoggingCommandMiddleware(logger),
		cqrs.TracingCommandMiddleware(),
		cqrs.MetricsCommandMiddleware(a.Metrics),
		cqrs.ValidationCommandMiddleware(),
	)
	a.Queries = transport.NewInMemoryQueryBus().WithMiddleware(
		cqrs.RecoveryQueryMiddleware(logger),
		cqrs.LoggingQueryMiddleware(logger),
		cqrs.TracingQueryMiddleware(),
		cqrs.MetricsQueryMiddleware(a.Metrics),
	)

	// события
	subscriptions, err := events.NewRegistry()
	if err != nil {
		return err
	}
	a.publisher, err = events.NewAsyncEventPublisher(events.AsyncConfig{
		Workers:        cfg.Events.Workers,
		QueueSize:      cfg.Events.QueueSize,
		HandlerTimeout: 30 * time.Second,
	}, subscriptions, logger, a.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	policy, err := eventsourcing.ParseVersionPolicy(cfg.EventStore.VersionPolicy)
	if err != nil {
		return err
	}
	emitter := eventsourcing.NewEmitter(eventsourcing.NewJournal(st.events, policy, logger), a.publisher, logger)

	// каскад через outbox
	codec := outbox.NewCodec()
	var sink outbox.Sink = outbox.NewDispatchSink(codec, a.Commands)
	if cfg.MessageBus.CascadeViaBus && a.bus != nil {
		sink = outbox.NewBusSink(a.bus, commandSubjectPrefix)
		a.consumer = outbox.NewConsumer(codec, a.bus, a.Commands, commandSubjectPrefix, logger)
	}
	a.relay, err = outbox.NewRelay(outbox.RelayConfig{
		PollInterval:   cfg.Outbox.PollInterval,
		BatchSize:      cfg.Outbox.BatchSize,
		MaxRetries:     cfg.Outbox.MaxRetries,
		InitialBackoff: cfg.Outbox.InitialBackoff,
		MaxBackoff:     cfg.Outbox.MaxBackoff,
		ClaimLease:     cfg.Outbox.ClaimLease,
	}, st.outbox, sink, logger, a.Metrics)
	if err != nil {
		return err
	}
	cascade := outbox.New(st.outbox, codec, a.relay.Notify)

	// геокодер
	var geocoder location.Geocoder
	if cfg.Geocoder.KeyID != "" {
		client, err := geocode.NewClient(geocode.Config{
			BaseURL: cfg.Geocoder.BaseURL,
			KeyID:   cfg.Geocoder.KeyID,
			Key:     cfg.Geocoder.Key,
			Timeout: cfg.Geocoder.Timeout,
		}, logger)
		if err != nil {
			return err
		}
		geocoder = client
		if a.redis != nil {
			geocoder = geocode.NewCachedClient(client, geocode.NewRedisCache(a.redis, ""), cfg.Geocoder.CacheTTL, logger, a.Metrics)
		}
	} else {
		logger.Warn("geocoder key is not configured, addresses will not be resolved")
	}

	// модули
	inventoryModule := inventory.NewModule(st.inventory, emitter, logger)
	inventoryModule.RegisterOutboxCommands(codec)
	productModule := product.NewModule(st.products, product.NewProjector(st.productViews, logger), emitter, cascade, logger)
	locationViews := location.NewViewStore(st.locationViews)
	locationModule := location.NewModule(
		st.locationRecords,
		emitter,
		location.NewRegistrar(locationViews, logger),
		location.NewQueryService(locationViews, geocoder, cfg.Geocoder.Concurrency, logger, a.Metrics),
		logger,
	)

	a.Handlers = cqrs.NewRegistry()
	err = a.Handlers.RegisterModules(
		inventoryModule,
		productModule,
		order.NewModule(st.orders, emitter, logger),
		locationModule,
		seller.NewModule(st.sellers, emitter, logger),
	)
	if err != nil {
		return err
	}
	if err := a.Handlers.Apply(a.Commands, a.Queries); err != nil {
		return err
	}

	subs := append(productModule.Subscriptions(), locationModule.Subscriptions()...)
	if cfg.MessageBus.PublishEvents && a.bus != nil {
		forwarder, err := eventsadapter.NewForwarder(eventsadapter.ForwarderConfig{
			Bus:           a.bus,
			SubjectPrefix: eventSubjectPrefix,
			Logger:        logger,
			Metrics:       a.Metrics,
		})
		if err != nil {
			return err
		}
		subs = append(subs, forwarder.Subscriptions(DomainEventTypes...)...)
	}
	for _, s := range subs {
		if err := subscriptions.Subscribe(s); err != nil {
			return err
		}
	}
	return nil
}

// Start запускает фоновые компоненты. При ошибке уже запущенные останавливаются.
func (a *App) Start(ctx context.Context) error {
	components := []core.Lifecycle{a.tracing, a.publisher}
	if a.consumer != nil {
		components = append(components, a.consumer)
	}
	components = append(components, a.relay)

	for _, c := range components {
		if err := c.Start(ctx); err != nil {
			_ = a.Stop(ctx)
			return fmt.Errorf("failed to start component: %w", err)
		}
		a.mu.Lock()
		a.started = append(a.started, c)
		a.mu.Unlock()
	}
	a.Logger.Info("commerce started",
		zap.String("storage", a.Config.Storage.Driver),
		zap.String("messagebus", a.Config.MessageBus.Type),
		zap.Strings("commands", a.Handlers.CommandNames()))
	return nil
}

// Stop останавливает компоненты в обратном порядке и закрывает соединения
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	started := a.started
	a.started = nil
	a.mu.Unlock()

	var firstErr error
	for i := len(started) - 1; i >= 0; i-- {
		if err := started[i].Stop(ctx); err != nil {
			a.Logger.Error("failed to stop component", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closeResources(ctx)
	return firstErr
}

func (a *App) closeResources(ctx context.Context) {
	a.closeOnce.Do(func() { a.close(ctx) })
}

func (a *App) close(ctx context.Context) {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.Logger.Warn("failed to close message bus", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.stores != nil {
		a.stores.close(ctx)
	}
	if a.metricsProvider != nil {
		_ = a.metricsProvider.Shutdown(ctx)
	}
}

// HealthChecks проверки внешних зависимостей
func (a *App) HealthChecks() []observability.HealthCheck {
	return a.checks
}

// MetricsHandler handler для scrape или nil, если метрики выключены
func (a *App) MetricsHandler() http.Handler {
	if a.metricsProvider == nil {
		return nil
	}
	return a.metricsProvider.Handler()
}
