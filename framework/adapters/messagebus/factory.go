package messagebus

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/config"
	"github.com/akriventsev/commerce/framework/transport"
)

// New создает брокер по конфигурации. Для типа "none" возвращает nil.
// Redis адаптер использует переданный клиент.
func New(cfg config.MessageBusConfig, redisClient *redis.Client, logger *zap.Logger) (transport.MessageBus, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "inmemory":
		return NewInMemoryAdapter(DefaultInMemoryConfig(), logger), nil
	case "nats":
		natsCfg := DefaultNATSConfig()
		if cfg.NATSURL != "" {
			natsCfg.URL = cfg.NATSURL
		}
		return NewNATSAdapter(natsCfg, logger)
	case "kafka":
		kafkaCfg := DefaultKafkaConfig()
		if len(cfg.KafkaBrokers) > 0 {
			kafkaCfg.Brokers = cfg.KafkaBrokers
		}
		if cfg.ConsumerGroup != "" {
			kafkaCfg.GroupID = cfg.ConsumerGroup
		}
		return NewKafkaAdapter(kafkaCfg, logger)
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis message bus requires a redis client")
		}
		redisCfg := DefaultRedisConfig()
		if cfg.ConsumerGroup != "" {
			redisCfg.ConsumerGroup = cfg.ConsumerGroup
		}
		return NewRedisAdapter(redisClient, redisCfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown message bus type: %s", cfg.Type)
	}
}
