package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisProducer publishes to Redis pub/sub channels. The channel name is the
// message topic; keys and headers are not carried.
type RedisProducer struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
}

// NewRedisProducer connects to Redis and verifies the connection.
func NewRedisProducer(ctx context.Context, opts *redis.Options) (*RedisProducer, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	log.Info().Str("addr", opts.Addr).Msg("redis producer connected")
	return &RedisProducer{client: client}, nil
}

// Publish sends msg.Value to the msg.Topic channel.
func (p *RedisProducer) Publish(ctx context.Context, msg Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	receivers, err := p.client.Publish(ctx, msg.Topic, msg.Value).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	log.Debug().
		Str("topic", msg.Topic).
		Int64("receivers", receivers).
		Msg("message published")
	return nil
}

// Ping reports whether Redis is reachable.
func (p *RedisProducer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the connection pool.
func (p *RedisProducer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if err := p.client.Close(); err != nil {
		log.Warn().Err(err).Msg("redis producer close")
	}
	log.Info().Msg("redis producer closed")
}

// RedisConsumer subscribes to Redis pub/sub channels. Pub/sub has no history:
// only messages published while subscribed are delivered.
type RedisConsumer struct {
	client *redis.Client
	topics []string

	mu     sync.Mutex
	pubsub *redis.PubSub
	closed bool
}

// NewRedisConsumer connects to Redis and verifies the connection.
func NewRedisConsumer(ctx context.Context, opts *redis.Options, topics []string) (*RedisConsumer, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	log.Info().Str("addr", opts.Addr).Strs("topics", topics).Msg("redis consumer connected")
	return &RedisConsumer{client: client, topics: topics}, nil
}

// Consume subscribes and dispatches every message to handler. Blocks until ctx
// is cancelled or the consumer is closed.
func (c *RedisConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("consumer is closed")
	}
	pubsub := c.client.Subscribe(ctx, c.topics...)
	c.pubsub = pubsub
	c.mu.Unlock()

	// Wait for the subscription confirmation so a failure surfaces here.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %v: %w", c.topics, err)
	}
	log.Info().Strs("topics", c.topics).Msg("subscribed, waiting for new tokens")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return fmt.Errorf("consumer is closed")
			}
			dispatch(ctx, handler, Message{
				Topic:     m.Channel,
				Value:     []byte(m.Payload),
				Timestamp: time.Now(),
			})
		}
	}
}

// Ping reports whether Redis is reachable.
func (c *RedisConsumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close unsubscribes and closes the connection pool.
func (c *RedisConsumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pubsub := c.pubsub
	c.mu.Unlock()

	if pubsub != nil {
		pubsub.Close()
	}
	if err := c.client.Close(); err != nil {
		log.Warn().Err(err).Msg("redis consumer close")
	}
	log.Info().Msg("redis consumer closed")
}
