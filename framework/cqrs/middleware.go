// Package cqrs предоставляет middleware для шин команд и запросов.
package cqrs

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/metrics"
	"github.com/akriventsev/commerce/framework/observability"
	"github.com/akriventsev/commerce/framework/transport"
)

type commandNext = func(ctx context.Context, cmd transport.Command) (interface{}, error)
type queryNext = func(ctx context.Context, q transport.Query) (interface{}, error)

// CommandMiddleware функция-перехватчик команд
type CommandMiddleware func(ctx context.Context, cmd transport.Command, next commandNext) (interface{}, error)

// Intercept реализует transport.CommandInterceptor
func (m CommandMiddleware) Intercept(ctx context.Context, cmd transport.Command, next commandNext) (interface{}, error) {
	return m(ctx, cmd, next)
}

// QueryMiddleware функция-перехватчик запросов
type QueryMiddleware func(ctx context.Context, q transport.Query, next queryNext) (interface{}, error)

// Intercept реализует transport.QueryInterceptor
func (m QueryMiddleware) Intercept(ctx context.Context, q transport.Query, next queryNext) (interface{}, error) {
	return m(ctx, q, next)
}

// LoggingCommandMiddleware логирует выполнение команд
func LoggingCommandMiddleware(logger *zap.Logger) CommandMiddleware {
	logger = logger.Named("commands")
	return func(ctx context.Context, cmd transport.Command, next commandNext) (interface{}, error) {
		start := time.Now()
		result, err := next(ctx, cmd)

		fields := []zap.Field{
			zap.String("command", cmd.CommandName()),
			zap.Duration("duration", time.Since(start)),
		}
		if id := observability.ExtractCorrelationID(ctx); id != "" {
			fields = append(fields, zap.String("correlation_id", id))
		}
		if err != nil {
			fields = append(fields, zap.Error(err), zap.Stringer("kind", core.KindOf(err)))
			logger.Warn("command failed", fields...)
		} else {
			logger.Debug("command completed", fields...)
		}
		return result, err
	}
}

// LoggingQueryMiddleware логирует выполнение запросов
func LoggingQueryMiddleware(logger *zap.Logger) QueryMiddleware {
	logger = logger.Named("queries")
	return func(ctx context.Context, q transport.Query, next queryNext) (interface{}, error) {
		start := time.Now()
		result, err := next(ctx, q)

		if err != nil {
			logger.Warn("query failed",
				zap.String("query", q.QueryName()),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err))
		} else {
			logger.Debug("query completed",
				zap.String("query", q.QueryName()),
				zap.Duration("duration", time.Since(start)))
		}
		return result, err
	}
}

// RecoveryCommandMiddleware превращает панику обработчика в ошибку
func RecoveryCommandMiddleware(logger *zap.Logger) CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next commandNext) (result interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("command handler panicked",
					zap.String("command", cmd.CommandName()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				result = nil
				err = core.NewError(core.KindPropagated, fmt.Sprintf("panic in %s: %v", cmd.CommandName(), r))
			}
		}()
		return next(ctx, cmd)
	}
}

// RecoveryQueryMiddleware превращает панику обработчика запроса в ошибку
func RecoveryQueryMiddleware(logger *zap.Logger) QueryMiddleware {
	return func(ctx context.Context, q transport.Query, next queryNext) (result interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("query handler panicked",
					zap.String("query", q.QueryName()),
					zap.Any("panic", r))
				result = nil
				err = core.NewError(core.KindPropagated, fmt.Sprintf("panic in %s: %v", q.QueryName(), r))
			}
		}()
		return next(ctx, q)
	}
}

// MetricsCommandMiddleware записывает длительность и результат команды
func MetricsCommandMiddleware(m *metrics.Metrics) CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next commandNext) (interface{}, error) {
		m.IncrementActiveCommands(ctx)
		defer m.DecrementActiveCommands(ctx)

		start := time.Now()
		result, err := next(ctx, cmd)
		m.RecordCommand(ctx, cmd.CommandName(), time.Since(start), err == nil)
		return result, err
	}
}

// MetricsQueryMiddleware записывает длительность и результат запроса
func MetricsQueryMiddleware(m *metrics.Metrics) QueryMiddleware {
	return func(ctx context.Context, q transport.Query, next queryNext) (interface{}, error) {
		start := time.Now()
		result, err := next(ctx, q)
		m.RecordQuery(ctx, q.QueryName(), time.Since(start), err == nil)
		return result, err
	}
}

// TracingCommandMiddleware оборачивает команду в span
func TracingCommandMiddleware() CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next commandNext) (interface{}, error) {
		return observability.TraceCommand(ctx, cmd.CommandName(), func(ctx context.Context) (interface{}, error) {
			return next(ctx, cmd)
		})
	}
}

// TracingQueryMiddleware оборачивает запрос в span
func TracingQueryMiddleware() QueryMiddleware {
	return func(ctx context.Context, q transport.Query, next queryNext) (interface{}, error) {
		return observability.TraceQuery(ctx, q.QueryName(), func(ctx context.Context) (interface{}, error) {
			return next(ctx, q)
		})
	}
}

// TimeoutCommandMiddleware ограничивает время выполнения команды
func TimeoutCommandMiddleware(timeout time.Duration) CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next commandNext) (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return next(ctx, cmd)
	}
}

// ValidationCommandMiddleware вызывает Validate у команд, которые его реализуют.
// Ошибка валидации получает вид KindInvalidArgument.
func ValidationCommandMiddleware() CommandMiddleware {
	return func(ctx context.Context, cmd transport.Command, next commandNext) (interface{}, error) {
		if v, ok := cmd.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				if core.KindOf(err) == core.KindPropagated {
					return nil, core.Wrap(err, core.KindInvalidArgument, "validation failed")
				}
				return nil, err
			}
		}
		return next(ctx, cmd)
	}
}
