package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message represents a message published to or consumed from the event channel.
type Message struct {
	Topic     string
	Key       string // partition key (Kafka only)
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Producer publishes messages to the event channel.
// This is an interface so we can swap implementations (Redis, Kafka, in-memory for tests).
type Producer interface {
	// Publish sends a Message synchronously.
	Publish(ctx context.Context, msg Message) error
	// Close shuts down the producer.
	Close()
}

// ProducerOption configures a KafkaProducer.
type ProducerOption func(*producerConfig)

type producerConfig struct {
	instanceID string
	linger     time.Duration
}

// WithInstanceID sets the producer instance identifier used as ClientID and in message headers.
func WithInstanceID(id string) ProducerOption {
	return func(c *producerConfig) { c.instanceID = id }
}

// WithLinger sets the time to wait for batching before sending.
func WithLinger(d time.Duration) ProducerOption {
	return func(c *producerConfig) { c.linger = d }
}

// KafkaProducer is a Kafka producer backed by franz-go.
type KafkaProducer struct {
	client         *kgo.Client
	defaultHeaders map[string]string
	mu             sync.RWMutex
	closed         bool
}

// NewKafkaProducer creates a new Kafka producer. Announcements are rare, so
// linger is short and every record waits for all in-sync replicas.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) (*KafkaProducer, error) {
	cfg := &producerConfig{
		instanceID: "launch-publisher",
		linger:     time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(cfg.instanceID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(cfg.linger),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	log.Info().
		Strs("brokers", brokers).
		Str("instance_id", cfg.instanceID).
		Msg("kafka producer created (franz-go)")

	return &KafkaProducer{
		client:         client,
		defaultHeaders: map[string]string{"producer": cfg.instanceID},
	}, nil
}

// messageToRecord converts a bus.Message to a kgo.Record, injecting default headers.
func (p *KafkaProducer) messageToRecord(msg Message) *kgo.Record {
	headers := make([]kgo.RecordHeader, 0, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	for k, v := range p.defaultHeaders {
		if _, exists := msg.Headers[k]; !exists {
			headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}
	if _, ok := msg.Headers["event_id"]; !ok {
		headers = append(headers, kgo.RecordHeader{Key: "event_id", Value: []byte(uuid.New().String())})
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &kgo.Record{
		Topic:     msg.Topic,
		Key:       []byte(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Timestamp: ts,
	}
}

// Publish sends a Message synchronously, waiting for broker acknowledgement.
func (p *KafkaProducer) Publish(ctx context.Context, msg Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	results := p.client.ProduceSync(ctx, p.messageToRecord(msg))
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}

	r := results[0].Record
	log.Debug().
		Str("topic", r.Topic).
		Int32("partition", r.Partition).
		Int64("offset", r.Offset).
		Msg("message published")

	return nil
}

// Ping checks that at least one broker answers.
func (p *KafkaProducer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes pending records and shuts down the producer.
func (p *KafkaProducer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.client.Close()
	log.Info().Msg("kafka producer closed")
}

// --- Stub producer for development/testing ---

// StubProducer implements Producer by buffering messages in memory.
// Set Err to simulate a broker outage.
type StubProducer struct {
	Messages []StubMessage
	Err      error
	mu       sync.Mutex
}

// StubMessage is a message captured by StubProducer.
type StubMessage struct {
	Topic string
	Key   string
	Value []byte
}

// NewStubProducer creates a new in-memory stub producer.
func NewStubProducer() *StubProducer {
	return &StubProducer{Messages: make([]StubMessage, 0, 16)}
}

// SetErr makes every following publish fail with err (nil restores success).
func (p *StubProducer) SetErr(err error) {
	p.mu.Lock()
	p.Err = err
	p.mu.Unlock()
}

func (p *StubProducer) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, p.Err)
	}
	p.Messages = append(p.Messages, StubMessage{Topic: msg.Topic, Key: msg.Key, Value: msg.Value})
	log.Debug().Str("topic", msg.Topic).Int("bytes", len(msg.Value)).Msg("stub: publish")
	return nil
}

// Published returns a copy of the captured messages.
func (p *StubProducer) Published() []StubMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StubMessage, len(p.Messages))
	copy(out, p.Messages)
	return out
}

func (p *StubProducer) Close() {
	log.Info().Msg("stub: producer closed")
}
