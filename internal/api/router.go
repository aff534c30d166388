// Package api HTTP-поверхность сервиса: маршруты gin поверх шин команд и запросов.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/logging"
	"github.com/akriventsev/commerce/framework/observability"
	"github.com/akriventsev/commerce/framework/transport"
)

// Config конфигурация роутера
type Config struct {
	ServiceName  string
	BasePath     string
	Commands     transport.CommandBus
	Queries      transport.QueryBus
	HealthChecks []observability.HealthCheck
	// Metrics handler для scrape, nil отключает маршрут
	Metrics     http.Handler
	MetricsPath string
	Logger      *zap.Logger
}

// Router маршруты сервиса
type Router struct {
	commands transport.CommandBus
	queries  transport.QueryBus
	logger   *zap.Logger
}

// NewRouter собирает gin.Engine со всеми маршрутами
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.Commands == nil || cfg.Queries == nil {
		return nil, errors.New("command and query buses are required")
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/api/v1"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	r := &Router{commands: cfg.Commands, queries: cfg.Queries, logger: logging.OrNop(cfg.Logger).Named("http")}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		observability.CorrelationIDMiddleware(),
		observability.HTTPTracingMiddleware(cfg.ServiceName),
		r.accessLog(),
	)

	engine.GET("/health", observability.HealthHandler(cfg.HealthChecks...))
	if cfg.Metrics != nil {
		engine.GET(cfg.MetricsPath, gin.WrapH(cfg.Metrics))
	}

	api := engine.Group(cfg.BasePath)
	r.productRoutes(api)
	r.orderRoutes(api)
	r.locationRoutes(api)
	r.sellerRoutes(api)

	return engine, nil
}

func (r *Router) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("correlation_id", observability.ExtractCorrelationID(c.Request.Context())))
	}
}

// dispatch отправляет команду и пишет идентификатор результата.
// Пустой результат означает no-op и отдается как 204.
func (r *Router) dispatch(c *gin.Context, cmd transport.Command, status int) {
	result, err := r.commands.Dispatch(c.Request.Context(), cmd)
	if err != nil {
		r.writeError(c, err)
		return
	}
	if result == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(status, gin.H{"id": result})
}

func (r *Router) ask(c *gin.Context, q transport.Query) {
	result, err := r.queries.Ask(c.Request.Context(), q)
	if err != nil {
		r.writeError(c, err)
		return
	}
	if result == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) writeError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": core.KindOf(err).String()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": core.KindInvalidArgument.String()})
}

// StatusFor HTTP-статус для вида ошибки
func StatusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindInvalidArgument:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindAlreadyExists, core.KindDuplicateCreate, core.KindConditionalWriteConflict:
		return http.StatusConflict
	case core.KindUnhandledCommand:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
