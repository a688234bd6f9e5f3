package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

// MessageHandler processes a consumed message.
// Returned errors are logged; consumption continues with the next message.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer reads messages from the event channel.
type Consumer interface {
	// Consume starts the receive loop. Blocks until ctx is cancelled.
	Consume(ctx context.Context, handler MessageHandler) error
	// Close shuts down the consumer.
	Close()
}

// KafkaConsumer is a Kafka consumer backed by franz-go with consumer group support.
type KafkaConsumer struct {
	client  *kgo.Client
	groupID string
	topics  []string
	mu      sync.Mutex
	closed  bool
}

// NewKafkaConsumer creates a Kafka consumer for the given topics. New groups
// start at the end of the topic: announcements published while no watcher was
// running are not replayed.
func NewKafkaConsumer(brokers []string, groupID string, topics []string) (*KafkaConsumer, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(groupID),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	log.Info().
		Strs("brokers", brokers).
		Str("group_id", groupID).
		Strs("topics", topics).
		Msg("kafka consumer created (franz-go)")

	return &KafkaConsumer{client: client, groupID: groupID, topics: topics}, nil
}

// Consume starts the consumer poll loop. Blocks until ctx is cancelled.
func (c *KafkaConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("consumer is closed")
	}
	c.mu.Unlock()

	log.Info().
		Strs("topics", c.topics).
		Str("group", c.groupID).
		Msg("starting consumer loop")

	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fetches.IsClientClosed() {
			return fmt.Errorf("consumer is closed")
		}

		for _, fe := range fetches.Errors() {
			log.Error().
				Err(fe.Err).
				Str("topic", fe.Topic).
				Int32("partition", fe.Partition).
				Msg("fetch error")
		}

		fetches.EachRecord(func(record *kgo.Record) {
			dispatch(ctx, handler, recordToMessage(record))
		})
	}
}

// Ping checks that at least one broker answers.
func (c *KafkaConsumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Close shuts down the consumer, committing final offsets.
func (c *KafkaConsumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.client.Close()
	log.Info().Str("group", c.groupID).Msg("kafka consumer closed")
}

// recordToMessage converts a franz-go Record to a bus.Message.
func recordToMessage(r *kgo.Record) Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}
}

// dispatch runs handler for one message. A failing or panicking handler is
// logged and never stops the loop.
func dispatch(ctx context.Context, handler MessageHandler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("topic", msg.Topic).Msg("message handler panic recovered")
		}
	}()
	if err := handler(ctx, msg); err != nil {
		log.Error().Err(err).
			Str("topic", msg.Topic).
			Int("bytes", len(msg.Value)).
			Msg("message handler error")
	}
}

// --- Stub consumer for development/testing ---

// StubConsumer delivers messages pushed with Push to the running handler.
type StubConsumer struct {
	ch        chan Message
	closeOnce sync.Once
	done      chan struct{}
}

// NewStubConsumer creates an in-memory consumer with the given buffer.
func NewStubConsumer(buffer int) *StubConsumer {
	return &StubConsumer{
		ch:   make(chan Message, buffer),
		done: make(chan struct{}),
	}
}

// Push enqueues a message for delivery.
func (c *StubConsumer) Push(msg Message) {
	c.ch <- msg
}

func (c *StubConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case msg := <-c.ch:
			dispatch(ctx, handler, msg)
		}
	}
}

func (c *StubConsumer) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
