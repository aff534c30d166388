package messagebus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/transport"
)

// KafkaConfig конфигурация Kafka адаптера
type KafkaConfig struct {
	Brokers      []string
	GroupID      string
	Compression  string
	BatchTimeout time.Duration
	RequiredAcks int
	MinBytes     int
	MaxBytes     int
	MaxWait      time.Duration
}

// Validate проверяет конфигурацию
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	if c.GroupID == "" {
		return fmt.Errorf("group id cannot be empty")
	}
	return nil
}

// DefaultKafkaConfig возвращает конфигурацию по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		GroupID:      "commerce",
		Compression:  "snappy",
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
		MinBytes:     1,
		MaxBytes:     10e6,
		MaxWait:      500 * time.Millisecond,
	}
}

// KafkaAdapter адаптер Kafka на segmentio/kafka-go
type KafkaAdapter struct {
	config  KafkaConfig
	writer  *kafka.Writer
	logger  *zap.Logger
	readers map[string]*kafka.Reader
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// NewKafkaAdapter создает адаптер
func NewKafkaAdapter(config KafkaConfig, logger *zap.Logger) (*KafkaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.KindInvalidArgument, "invalid kafka config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &KafkaAdapter{
		config: config,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
			BatchTimeout:           config.BatchTimeout,
			Compression:            compression(config.Compression),
			AllowAutoTopicCreation: true,
		},
		logger:  logger,
		readers: make(map[string]*kafka.Reader),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

func compression(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Publish пишет сообщение в топик subject
func (k *KafkaAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	msg := kafka.Message{Topic: subject, Value: data}
	for key, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(v)})
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return core.Wrap(err, core.KindPropagated, "failed to publish message")
	}
	return nil
}

// Subscribe читает топик в составе consumer group. Offset коммитится
// только после успешной обработки.
func (k *KafkaAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.config.Brokers,
		Topic:       subject,
		GroupID:     k.config.GroupID,
		MinBytes:    k.config.MinBytes,
		MaxBytes:    k.config.MaxBytes,
		MaxWait:     k.config.MaxWait,
		StartOffset: kafka.FirstOffset,
	})

	subCtx, cancel := context.WithCancel(ctx)
	k.mu.Lock()
	k.readers[subject] = reader
	k.cancels[subject] = cancel
	k.mu.Unlock()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer func() { _ = reader.Close() }()
		for {
			m, err := reader.FetchMessage(subCtx)
			if err != nil {
				if subCtx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				k.logger.Warn("kafka fetch failed", zap.String("topic", subject), zap.Error(err))
				continue
			}

			msg := &transport.Message{
				Subject: m.Topic,
				Data:    m.Value,
				Headers: make(map[string]string, len(m.Headers)),
			}
			for _, h := range m.Headers {
				msg.Headers[h.Key] = string(h.Value)
			}

			if err := handler(subCtx, msg); err != nil {
				k.logger.Warn("message handler failed",
					zap.String("topic", subject),
					zap.Int64("offset", m.Offset),
					zap.Error(err))
				continue
			}
			if err := reader.CommitMessages(subCtx, m); err != nil {
				k.logger.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			}
		}
	}()
	return nil
}

// Unsubscribe останавливает чтение топика
func (k *KafkaAdapter) Unsubscribe(subject string) error {
	k.mu.Lock()
	cancel, ok := k.cancels[subject]
	delete(k.cancels, subject)
	delete(k.readers, subject)
	k.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: subscription %s", core.ErrNotFound, subject)
	}
	cancel()
	return nil
}

// Close останавливает читателей и закрывает writer
func (k *KafkaAdapter) Close() error {
	k.mu.Lock()
	for subject, cancel := range k.cancels {
		cancel()
		delete(k.cancels, subject)
		delete(k.readers, subject)
	}
	k.mu.Unlock()
	k.wg.Wait()
	return k.writer.Close()
}

var _ transport.MessageBus = (*KafkaAdapter)(nil)
