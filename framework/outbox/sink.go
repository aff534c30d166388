package outbox

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/transport"
)

// HeaderEntryID заголовок с id записи outbox
const HeaderEntryID = "outbox_id"

// Sink получатель записей outbox
type Sink interface {
	Deliver(ctx context.Context, entry Entry) error
}

// DispatchSink восстанавливает команду и выполняет ее в локальной шине
type DispatchSink struct {
	codec *Codec
	bus   transport.CommandBus
}

// NewDispatchSink создает sink для шины команд процесса
func NewDispatchSink(codec *Codec, bus transport.CommandBus) *DispatchSink {
	return &DispatchSink{codec: codec, bus: bus}
}

func (s *DispatchSink) Deliver(ctx context.Context, entry Entry) error {
	cmd, err := s.codec.Decode(entry.CommandName, entry.Payload)
	if err != nil {
		return err
	}
	_, err = s.bus.Dispatch(ctx, cmd)
	return err
}

// BusSink публикует запись во внешний брокер в subject "<prefix>.<CommandName>"
type BusSink struct {
	publisher transport.Publisher
	prefix    string
}

// NewBusSink создает sink брокера сообщений
func NewBusSink(publisher transport.Publisher, prefix string) *BusSink {
	if prefix == "" {
		prefix = "commands"
	}
	return &BusSink{publisher: publisher, prefix: prefix}
}

func (s *BusSink) Deliver(ctx context.Context, entry Entry) error {
	return s.publisher.Publish(ctx, subject(s.prefix, entry.CommandName), entry.Payload, map[string]string{
		HeaderEntryID: entry.ID,
	})
}

func subject(prefix, commandName string) string {
	return prefix + "." + commandName
}

// Consumer принимает команды из брокера и выполняет их в шине команд.
// Обработчики команд должны быть идемпотентны: доставка at-least-once.
type Consumer struct {
	codec      *Codec
	subscriber transport.Subscriber
	bus        transport.CommandBus
	prefix     string
	logger     *zap.Logger

	mu       sync.Mutex
	subjects []string
}

// NewConsumer создает потребителя команд
func NewConsumer(codec *Codec, subscriber transport.Subscriber, bus transport.CommandBus, prefix string, logger *zap.Logger) *Consumer {
	if prefix == "" {
		prefix = "commands"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		codec:      codec,
		subscriber: subscriber,
		bus:        bus,
		prefix:     prefix,
		logger:     logger.Named("outbox-consumer"),
	}
}

// Start подписывается на все команды, зарегистрированные в codec
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range c.codec.CommandNames() {
		name := name
		subj := subject(c.prefix, name)
		err := c.subscriber.Subscribe(ctx, subj, func(ctx context.Context, msg *transport.Message) error {
			return c.handle(ctx, name, msg)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subj, err)
		}
		c.subjects = append(c.subjects, subj)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, commandName string, msg *transport.Message) error {
	cmd, err := c.codec.Decode(commandName, msg.Data)
	if err != nil {
		// повтор не поможет
		c.logger.Error("undecodable outbox command",
			zap.String("command", commandName),
			zap.String("entry_id", msg.Headers[HeaderEntryID]),
			zap.Error(err))
		return nil
	}
	if _, err := c.bus.Dispatch(ctx, cmd); err != nil {
		if core.IsKind(err, core.KindUnhandledCommand) {
			c.logger.Error("no handler for outbox command", zap.String("command", commandName))
			return nil
		}
		return err
	}
	return nil
}

// Stop отписывается от всех subject
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, subj := range c.subjects {
		if err := c.subscriber.Unsubscribe(subj); err != nil {
			c.logger.Warn("failed to unsubscribe", zap.String("subject", subj), zap.Error(err))
		}
	}
	c.subjects = nil
	return nil
}

// IsRunning проверяет, есть ли активные подписки
func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subjects) > 0
}
