// Package metrics предоставляет систему метрик на основе OpenTelemetry.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics сборщик метрик приложения
type Metrics struct {
	commandsTotal       metric.Int64Counter
	commandDuration     metric.Float64Histogram
	queriesTotal        metric.Int64Counter
	queryDuration       metric.Float64Histogram
	eventsPublished     metric.Int64Counter
	eventsHandled       metric.Int64Counter
	outboxAttempts      metric.Int64Counter
	enrichmentFailures  metric.Int64Counter
	geocodeCacheLookups metric.Int64Counter
	activeCommands      metric.Int64UpDownCounter
}

// NewMetricsWithMeter создает сборщик метрик поверх заданного meter
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.commandsTotal, err = meter.Int64Counter("commands_total",
		metric.WithDescription("Total number of commands processed")); err != nil {
		return nil, err
	}
	if m.commandDuration, err = meter.Float64Histogram("command_duration_seconds",
		metric.WithDescription("Command processing duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.queriesTotal, err = meter.Int64Counter("queries_total",
		metric.WithDescription("Total number of queries processed")); err != nil {
		return nil, err
	}
	if m.queryDuration, err = meter.Float64Histogram("query_duration_seconds",
		metric.WithDescription("Query processing duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.eventsPublished, err = meter.Int64Counter("events_published_total",
		metric.WithDescription("Total number of domain events published")); err != nil {
		return nil, err
	}
	if m.eventsHandled, err = meter.Int64Counter("events_handled_total",
		metric.WithDescription("Total number of subscriber invocations")); err != nil {
		return nil, err
	}
	if m.outboxAttempts, err = meter.Int64Counter("outbox_attempts_total",
		metric.WithDescription("Total number of outbox delivery attempts")); err != nil {
		return nil, err
	}
	if m.enrichmentFailures, err = meter.Int64Counter("enrichment_failures_total",
		metric.WithDescription("Total number of failed enrichment lookups")); err != nil {
		return nil, err
	}
	if m.geocodeCacheLookups, err = meter.Int64Counter("geocode_cache_lookups_total",
		metric.WithDescription("Geocode cache lookups by outcome")); err != nil {
		return nil, err
	}
	if m.activeCommands, err = meter.Int64UpDownCounter("active_commands",
		metric.WithDescription("Number of active commands being processed")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordCommand записывает метрику команды
func (m *Metrics) RecordCommand(ctx context.Context, commandName string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("command", commandName),
		attribute.Bool("success", success),
	)
	m.commandsTotal.Add(ctx, 1, attrs)
	m.commandDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordQuery записывает метрику запроса
func (m *Metrics) RecordQuery(ctx context.Context, queryName string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("query", queryName),
		attribute.Bool("success", success),
	)
	m.queriesTotal.Add(ctx, 1, attrs)
	m.queryDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordEventPublished записывает публикацию события
func (m *Metrics) RecordEventPublished(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventType)))
}

// RecordEventHandled записывает вызов подписчика
func (m *Metrics) RecordEventHandled(ctx context.Context, eventType, subscriber string, success bool) {
	if m == nil {
		return
	}
	m.eventsHandled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", eventType),
		attribute.String("subscriber", subscriber),
		attribute.Bool("success", success),
	))
}

// RecordOutboxAttempt записывает попытку доставки из outbox
func (m *Metrics) RecordOutboxAttempt(ctx context.Context, commandName string, success bool) {
	if m == nil {
		return
	}
	m.outboxAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", commandName),
		attribute.Bool("success", success),
	))
}

// RecordEnrichmentFailure записывает неудачное обогащение
func (m *Metrics) RecordEnrichmentFailure(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.enrichmentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordCacheLookup записывает обращение к кэшу геокодера
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	m.geocodeCacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// IncrementActiveCommands увеличивает счетчик активных команд
func (m *Metrics) IncrementActiveCommands(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeCommands.Add(ctx, 1)
}

// DecrementActiveCommands уменьшает счетчик активных команд
func (m *Metrics) DecrementActiveCommands(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeCommands.Add(ctx, -1)
}
