package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexus-trading/launchwatch/internal/archive"
	"github.com/nexus-trading/launchwatch/internal/bus"
	"github.com/nexus-trading/launchwatch/internal/config"
	"github.com/nexus-trading/launchwatch/internal/launch"
	"github.com/nexus-trading/launchwatch/internal/logging"
	"github.com/nexus-trading/launchwatch/internal/observability"
	"github.com/nexus-trading/launchwatch/internal/telegram"
	"github.com/rs/zerolog/log"
)

const service = "launch-publisher"

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	envPath := flag.String("env", ".env", "Optional dotenv file loaded before the config")
	flag.Parse()

	// 2. Load configuration.
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	// 3. Setup logging.
	logging.Setup(cfg.General, service)

	if err := cfg.ValidatePublisher(); err != nil {
		if errors.Is(err, config.ErrMissingSession) {
			fmt.Fprintln(os.Stderr, "No Telegram session configured.")
			fmt.Fprintln(os.Stderr, "Create a listener session, then set TELEGRAM_SESSION_TOKEN (or telegram.session_token) and restart.")
		}
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("broker", cfg.Broker.Kind).
		Str("topic", cfg.Broker.Topic).
		Int64("channel_id", cfg.Telegram.ChannelID).
		Str("channel", cfg.Telegram.ChannelUsername).
		Bool("archive", cfg.Archive.Enabled).
		Msg("Launch publisher starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Alert sender.
	notifier, err := telegram.NewNotifier(telegram.NotifierConfig{
		BotToken:       cfg.Telegram.BotToken,
		ChatID:         cfg.Telegram.ChatID,
		APIEndpoint:    cfg.Telegram.APIEndpoint,
		MaxRetries:     cfg.Telegram.MaxRetries,
		InitialBackoff: 500 * time.Millisecond,
		Timeout:        10 * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Telegram notifier init failed")
	}

	// 5. Announcement feed.
	feed, err := telegram.NewChannelFeed(cfg.Telegram.SessionToken, cfg.Telegram.APIEndpoint, cfg.Telegram.PollTimeoutS)
	if err != nil {
		log.Fatal().Err(err).Msg("Telegram listener init failed")
	}
	channelID := cfg.Telegram.ChannelID
	if channelID == 0 {
		channelID, err = feed.ResolveChannel(cfg.Telegram.ChannelUsername)
		if err != nil {
			log.Fatal().Err(err).Msg("Source channel lookup failed")
		}
		log.Info().Str("channel", cfg.Telegram.ChannelUsername).Int64("channel_id", channelID).Msg("Source channel resolved")
	}

	// 6. Event channel.
	producer, err := bus.NewProducer(ctx, cfg.Broker, cfg.General.InstanceID)
	if err != nil {
		log.Fatal().Err(err).Msg("Broker connection failed")
	}

	// 7. Archive.
	arch, archClient, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		log.Fatal().Err(err).Msg("Archive init failed")
	}

	// 8. Metrics and health.
	metrics := observability.NewPipelineMetrics(service)
	if cfg.Metrics.Enabled {
		health := observability.NewHealthMonitor()
		if p, ok := producer.(interface{ Ping(context.Context) error }); ok {
			health.Register("broker", observability.PingCheck(p.Ping))
		}
		if archClient != nil {
			health.Register("archive", observability.PingCheck(archClient.Ping))
		}
		go func() {
			if err := observability.Serve(ctx, cfg.Metrics.Port, observability.NewHandler(metrics.Registry, health)); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	// 9. Run until shutdown.
	publisher := launch.NewPublisher(launch.Config{
		ChannelID:  channelID,
		Topic:      cfg.Broker.Topic,
		InstanceID: cfg.General.InstanceID,
	}, producer, notifier, arch, metrics)

	runErr := publisher.Run(ctx, feed)
	if runErr != nil {
		log.Error().Err(runErr).Msg("Launch publisher stopped with error")
	}

	// 10. Graceful shutdown.
	log.Info().Msg("Shutting down launch publisher...")
	producer.Close()
	if err := arch.Close(); err != nil {
		log.Warn().Err(err).Msg("Archive close failed")
	}
	if archClient != nil {
		archClient.Close()
	}

	log.Info().
		Float64("seen", metrics.AnnouncementsSeen.Value()).
		Float64("published", metrics.LaunchesPublished.Value()).
		Float64("publish_failures", metrics.PublishFailures.Value()).
		Float64("alerts", metrics.AlertsSent.Value()).
		Msg("Launch publisher - Final Statistics")
	log.Info().Msg("Launch publisher - Shutdown complete")
	if runErr != nil {
		os.Exit(1)
	}
}
