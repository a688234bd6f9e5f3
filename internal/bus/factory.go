package bus

import (
	"context"
	"fmt"

	"github.com/nexus-trading/launchwatch/internal/config"
	"github.com/redis/go-redis/v9"
)

func redisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewProducer builds the producer selected by cfg.Kind.
func NewProducer(ctx context.Context, cfg config.BrokerConfig, instanceID string) (Producer, error) {
	switch cfg.Kind {
	case "redis":
		return NewRedisProducer(ctx, redisOptions(cfg.Redis))
	case "kafka":
		return NewKafkaProducer(cfg.Kafka.Brokers, WithInstanceID(instanceID))
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}

// NewConsumer builds the consumer selected by cfg.Kind, subscribed to cfg.Topic.
func NewConsumer(ctx context.Context, cfg config.BrokerConfig) (Consumer, error) {
	topics := []string{cfg.Topic}
	switch cfg.Kind {
	case "redis":
		return NewRedisConsumer(ctx, redisOptions(cfg.Redis), topics)
	case "kafka":
		return NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, topics)
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}
