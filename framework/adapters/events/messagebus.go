// Package events пересылает доменные события во внешний брокер сообщений.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/events"
	"github.com/akriventsev/commerce/framework/metrics"
	"github.com/akriventsev/commerce/framework/observability"
	"github.com/akriventsev/commerce/framework/transport"
)

// Заголовки сообщения с метаданными события
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderAggregateID   = "aggregate_id"
	HeaderAggregateType = "aggregate_type"
	HeaderOccurredAt    = "occurred_at"
	HeaderCorrelationID = "correlation_id"
)

// ForwarderConfig конфигурация пересылки
type ForwarderConfig struct {
	Bus           transport.Publisher
	SubjectPrefix string
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Forwarder публикует доменные события как JSON в subject "<prefix>.<eventType>"
type Forwarder struct {
	bus     transport.Publisher
	prefix  string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewForwarder создает пересылку событий
func NewForwarder(config ForwarderConfig) (*Forwarder, error) {
	if config.Bus == nil {
		return nil, fmt.Errorf("message bus is required")
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = "events"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Forwarder{
		bus:     config.Bus,
		prefix:  config.SubjectPrefix,
		logger:  config.Logger,
		metrics: config.Metrics,
	}, nil
}

// Subject возвращает subject для типа события
func (f *Forwarder) Subject(eventType string) string {
	return f.prefix + "." + eventType
}

// Handle реализует events.EventHandler
func (f *Forwarder) Handle(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to marshal event")
	}

	headers := map[string]string{
		HeaderEventID:       event.EventID(),
		HeaderEventType:     event.EventType(),
		HeaderAggregateID:   event.AggregateID(),
		HeaderAggregateType: event.AggregateType(),
		HeaderOccurredAt:    event.OccurredAt().UTC().Format(time.RFC3339Nano),
	}
	if id := observability.ExtractCorrelationID(ctx); id != "" {
		headers[HeaderCorrelationID] = id
	}

	if err := f.bus.Publish(ctx, f.Subject(event.EventType()), data, headers); err != nil {
		return err
	}
	f.metrics.RecordEventPublished(ctx, event.EventType())
	f.logger.Debug("event forwarded",
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_id", event.AggregateID()))
	return nil
}

// Subscriptions возвращает подписки пересылки для перечисленных типов событий
func (f *Forwarder) Subscriptions(eventTypes ...string) []events.Subscription {
	subs := make([]events.Subscription, 0, len(eventTypes))
	for _, t := range eventTypes {
		subs = append(subs, events.Subscription{
			Name:      "forward:" + t,
			EventType: t,
			Handler:   f,
		})
	}
	return subs
}
