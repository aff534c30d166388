package messagebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/transport"
)

// RedisConfig конфигурация адаптера Redis Streams
type RedisConfig struct {
	StreamPrefix  string
	ConsumerGroup string
	ConsumerName  string
	MaxLen        int64
	BlockTimeout  time.Duration
	BatchSize     int64
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		StreamPrefix:  "commerce:",
		ConsumerGroup: "commerce",
		ConsumerName:  "commerce-1",
		MaxLen:        10000,
		BlockTimeout:  5 * time.Second,
		BatchSize:     10,
	}
}

// RedisAdapter реализация MessageBus через Redis Streams
type RedisAdapter struct {
	config RedisConfig
	client *redis.Client
	logger *zap.Logger
	subs   map[string]context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRedisAdapter создает адаптер поверх готового клиента
func NewRedisAdapter(client *redis.Client, config RedisConfig, logger *zap.Logger) *RedisAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = DefaultRedisConfig().BlockTimeout
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultRedisConfig().BatchSize
	}
	return &RedisAdapter{
		config: config,
		client: client,
		logger: logger,
		subs:   make(map[string]context.CancelFunc),
	}
}

func (r *RedisAdapter) streamName(subject string) string {
	return r.config.StreamPrefix + subject
}

// Publish добавляет запись в stream
func (r *RedisAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	values := map[string]interface{}{"data": data}
	if len(headers) > 0 {
		raw, err := json.Marshal(headers)
		if err != nil {
			return core.Wrap(err, core.KindPropagated, "failed to marshal headers")
		}
		values["headers"] = raw
	}

	args := &redis.XAddArgs{
		Stream: r.streamName(subject),
		Values: values,
	}
	if r.config.MaxLen > 0 {
		args.MaxLen = r.config.MaxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to publish message")
	}
	return nil
}

// Subscribe читает stream через consumer group. Запись подтверждается
// только после успешной обработки.
func (r *RedisAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	stream := r.streamName(subject)
	err := r.client.XGroupCreateMkStream(ctx, stream, r.config.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return core.Wrap(err, core.KindPropagated, "failed to create consumer group")
	}

	subCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if prev, ok := r.subs[subject]; ok {
		prev()
	}
	r.subs[subject] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.readLoop(subCtx, subject, stream, handler)
	}()
	return nil
}

func (r *RedisAdapter) readLoop(ctx context.Context, subject, stream string, handler transport.MessageHandler) {
	for {
		if ctx.Err() != nil {
			return
		}

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    r.config.ConsumerGroup,
			Consumer: r.config.ConsumerName,
			Streams:  []string{stream, ">"},
			Count:    r.config.BatchSize,
			Block:    r.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("redis stream read failed", zap.String("stream", stream), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, entry := range s.Messages {
				msg := decodeStreamEntry(subject, entry)
				if err := handler(ctx, msg); err != nil {
					r.logger.Warn("message handler failed",
						zap.String("subject", subject),
						zap.String("entry_id", entry.ID),
						zap.Error(err))
					continue
				}
				if err := r.client.XAck(ctx, s.Stream, r.config.ConsumerGroup, entry.ID).Err(); err != nil {
					r.logger.Warn("redis ack failed", zap.String("entry_id", entry.ID), zap.Error(err))
				}
			}
		}
	}
}

func decodeStreamEntry(subject string, entry redis.XMessage) *transport.Message {
	msg := &transport.Message{Subject: subject, Headers: map[string]string{}}
	switch v := entry.Values["data"].(type) {
	case string:
		msg.Data = []byte(v)
	case []byte:
		msg.Data = v
	}
	if raw, ok := entry.Values["headers"].(string); ok {
		_ = json.Unmarshal([]byte(raw), &msg.Headers)
	}
	return msg
}

// Unsubscribe останавливает чтение stream
func (r *RedisAdapter) Unsubscribe(subject string) error {
	r.mu.Lock()
	cancel, ok := r.subs[subject]
	delete(r.subs, subject)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: subscription %s", core.ErrNotFound, subject)
	}
	cancel()
	return nil
}

// Close останавливает все подписки. Клиент закрывает его владелец.
func (r *RedisAdapter) Close() error {
	r.mu.Lock()
	for subject, cancel := range r.subs {
		cancel()
		delete(r.subs, subject)
	}
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

var _ transport.MessageBus = (*RedisAdapter)(nil)
