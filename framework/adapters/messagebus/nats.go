package messagebus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/transport"
)

// NATSConfig конфигурация NATS адаптера
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	DrainTimeout  time.Duration
	Timeout       time.Duration
	Token         string
}

// Validate проверяет конфигурацию
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "nats://") && !strings.HasPrefix(c.URL, "tls://") {
		return fmt.Errorf("URL must start with nats:// or tls://")
	}
	return nil
}

// DefaultNATSConfig возвращает конфигурацию по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		DrainTimeout:  30 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSAdapter адаптер NATS
type NATSAdapter struct {
	config NATSConfig
	conn   *nats.Conn
	logger *zap.Logger
	subs   map[string]*nats.Subscription
	mu     sync.Mutex
}

// NewNATSAdapter подключается к NATS
func NewNATSAdapter(config NATSConfig, logger *zap.Logger) (*NATSAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.KindInvalidArgument, "invalid nats config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name("commerce"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DrainTimeout(config.DrainTimeout),
		nats.Timeout(config.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}
	if config.Token != "" {
		opts = append(opts, nats.Token(config.Token))
	}

	conn, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to connect to nats")
	}

	return &NATSAdapter{
		config: config,
		conn:   conn,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Publish публикует сообщение с заголовками
func (n *NATSAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	if err := n.conn.PublishMsg(msg); err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to publish message")
	}
	return nil
}

// Subscribe подписывается на subject
func (n *NATSAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	sub, err := n.conn.Subscribe(subject, func(m *nats.Msg) {
		msg := &transport.Message{
			Subject: m.Subject,
			Data:    m.Data,
			Headers: make(map[string]string, len(m.Header)),
		}
		for k := range m.Header {
			msg.Headers[k] = m.Header.Get(k)
		}
		if err := handler(ctx, msg); err != nil {
			n.logger.Warn("message handler failed",
				zap.String("subject", m.Subject),
				zap.Error(err))
		}
	})
	if err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to subscribe")
	}

	n.mu.Lock()
	n.subs[subject] = sub
	n.mu.Unlock()
	return nil
}

// Unsubscribe отписывается от subject
func (n *NATSAdapter) Unsubscribe(subject string) error {
	n.mu.Lock()
	sub, ok := n.subs[subject]
	delete(n.subs, subject)
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: subscription %s", core.ErrNotFound, subject)
	}
	return sub.Unsubscribe()
}

// Close дренирует соединение
func (n *NATSAdapter) Close() error {
	n.mu.Lock()
	n.subs = make(map[string]*nats.Subscription)
	n.mu.Unlock()

	if n.conn == nil || n.conn.IsClosed() {
		return nil
	}
	return n.conn.Drain()
}

// HealthCheck проверяет соединение
func (n *NATSAdapter) HealthCheck(ctx context.Context) error {
	if n.conn == nil || !n.conn.IsConnected() {
		return fmt.Errorf("nats is not connected")
	}
	return nil
}

var _ transport.MessageBus = (*NATSAdapter)(nil)
