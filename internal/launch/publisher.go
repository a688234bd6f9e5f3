package launch

import (
	"context"
	"time"

	"github.com/nexus-trading/launchwatch/internal/announce"
	"github.com/nexus-trading/launchwatch/internal/archive"
	"github.com/nexus-trading/launchwatch/internal/bus"
	"github.com/nexus-trading/launchwatch/internal/observability"
	"github.com/nexus-trading/launchwatch/internal/telegram"
	"github.com/rs/zerolog/log"
)

// Notifier sends a MarkdownV2 alert.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Feed yields inbound announcements until ctx is cancelled.
type Feed interface {
	Messages(ctx context.Context) <-chan telegram.InboundMessage
}

// Config configures the publisher.
type Config struct {
	ChannelID  int64  // only messages from this chat are considered
	Topic      string // event channel for launch facts
	InstanceID string
}

// Publisher turns announcements from one channel into launch facts on the
// event channel, and alerts the chat about each one.
type Publisher struct {
	cfg      Config
	producer bus.Producer
	notifier Notifier
	archive  archive.Archive
	metrics  *observability.PipelineMetrics
	now      func() time.Time
}

// NewPublisher wires a publisher. arch and metrics may be nil.
func NewPublisher(cfg Config, producer bus.Producer, notifier Notifier, arch archive.Archive, metrics *observability.PipelineMetrics) *Publisher {
	if cfg.Topic == "" {
		cfg.Topic = bus.TopicNewTokens
	}
	if arch == nil {
		arch = archive.Nop{}
	}
	if metrics == nil {
		metrics = observability.NewPipelineMetrics("launch-publisher")
	}
	return &Publisher{
		cfg:      cfg,
		producer: producer,
		notifier: notifier,
		archive:  arch,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Run handles every message of feed until ctx is cancelled or the feed ends.
func (p *Publisher) Run(ctx context.Context, feed Feed) error {
	log.Info().Int64("channel_id", p.cfg.ChannelID).Str("topic", p.cfg.Topic).Msg("launch publisher: waiting for announcements")
	messages := feed.Messages(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			p.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage processes one inbound message. It never fails: a broker or
// chat outage is logged and the next message is handled normally.
func (p *Publisher) HandleMessage(ctx context.Context, msg telegram.InboundMessage) {
	p.metrics.AnnouncementsSeen.Inc()

	if msg.ChatID != p.cfg.ChannelID {
		p.metrics.AnnouncementsFiltered.Inc()
		return
	}

	parsed, ok := announce.Parse(msg.Text)
	if !ok {
		p.metrics.ParseMisses.Inc()
		log.Debug().Int("len", len(msg.Text)).Msg("launch publisher: not a launch announcement")
		return
	}
	fact := parsed.Fact(p.now())

	logger := log.With().
		Str("token", fact.Token).
		Str("issuer", fact.Issuer).
		Str("supply", fact.Supply).
		Logger()
	logger.Info().Msg("launch publisher: launch detected")

	published := p.publish(ctx, fact)
	if published {
		logger.Info().Str("topic", p.cfg.Topic).Msg("launch publisher: fact published")
	}

	notified := true
	if err := p.notifier.Send(ctx, ConfirmedMessage(fact)); err != nil {
		notified = false
		p.metrics.NotifyFailures.Inc()
		logger.Error().Err(err).Msg("launch publisher: confirmation alert failed")
	} else {
		p.metrics.AlertsSent.Inc()
	}

	row := archive.LaunchRow{
		DetectedAt: fact.Timestamp,
		Token:      fact.Token,
		Issuer:     fact.Issuer,
		Supply:     fact.Supply,
		Source:     fact.Source,
		Instance:   p.cfg.InstanceID,
		Published:  published,
		Notified:   notified,
	}
	if err := p.archive.RecordLaunch(ctx, row); err != nil {
		p.metrics.ArchiveErrors.Inc()
		logger.Warn().Err(err).Msg("launch publisher: archive write failed")
	}
}

func (p *Publisher) publish(ctx context.Context, fact bus.LaunchFact) bool {
	data, err := fact.Encode()
	if err == nil {
		err = p.producer.Publish(ctx, bus.Message{
			Topic:     p.cfg.Topic,
			Key:       string(fact.WatchKey()),
			Value:     data,
			Timestamp: fact.Timestamp,
		})
	}
	if err != nil {
		p.metrics.PublishFailures.Inc()
		log.Error().Err(err).
			Str("topic", p.cfg.Topic).
			Str("watch_key", string(fact.WatchKey())).
			Msg("launch publisher: publish failed")
		return false
	}
	p.metrics.LaunchesPublished.Inc()
	return true
}
