package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexus-trading/launchwatch/internal/archive"
	"github.com/nexus-trading/launchwatch/internal/bus"
	"github.com/nexus-trading/launchwatch/internal/config"
	"github.com/nexus-trading/launchwatch/internal/logging"
	"github.com/nexus-trading/launchwatch/internal/observability"
	"github.com/nexus-trading/launchwatch/internal/pool"
	"github.com/nexus-trading/launchwatch/internal/quality"
	"github.com/nexus-trading/launchwatch/internal/telegram"
	"github.com/nexus-trading/launchwatch/internal/xrpl"
	"github.com/rs/zerolog/log"
)

const (
	service    = "pool-watcher"
	ledgerFeed = "transactions"
)

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

	if err := cfg.ValidateWatcher(); err != nil {
		log.Fatal().Err(err).Msg("Configuration validation failed")
	}

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Str("broker", cfg.Broker.Kind).
		Str("topic", cfg.Broker.Topic).
		Str("ws", cfg.Ledger.WSEndpoint).
		Str("rpc", cfg.Ledger.RPCEndpoint).
		Int("watch_ttl_min", cfg.Watcher.WatchTTLMinutes).
		Bool("archive", cfg.Archive.Enabled).
		Msg("Pool watcher starting")

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

	// 5. Event channel.
	consumer, err := bus.NewConsumer(ctx, cfg.Broker)
	if err != nil {
		log.Fatal().Err(err).Msg("Broker connection failed")
	}

	// 6. Ledger access.
	rpc := xrpl.NewRPCClient(xrpl.RPCConfig{
		Endpoint:   cfg.Ledger.RPCEndpoint,
		Timeout:    time.Duration(cfg.Ledger.TimeoutMs) * time.Millisecond,
		MaxRetries: cfg.Ledger.MaxRetries,
	})
	stream := xrpl.NewStream(xrpl.StreamConfig{
		WSEndpoint:       cfg.Ledger.WSEndpoint,
		ReconnectDelayMs: cfg.Ledger.ReconnectDelayMs,
		PingIntervalS:    cfg.Ledger.PingIntervalS,
		MaxReconnects:    cfg.Ledger.MaxReconnects,
	})

	feedMonitor := quality.NewMonitor(time.Duration(cfg.Ledger.StaleTimeoutS) * time.Second)
	go feedMonitor.Start(ctx)

	// 7. Archive.
	arch, archClient, err := archive.Open(ctx, cfg.Archive)
	if err != nil {
		log.Fatal().Err(err).Msg("Archive init failed")
	}

	// 8. Metrics and health.
	metrics := observability.NewPipelineMetrics(service)
	if cfg.Metrics.Enabled {
		health := observability.NewHealthMonitor()
		health.Register("ledger_stream", observability.ConnectivityCheck(stream.Connected))
		health.Register("ledger_feed", feedMonitor.HealthCheck(ledgerFeed))
		if c, ok := consumer.(interface{ Ping(context.Context) error }); ok {
			health.Register("broker", observability.PingCheck(c.Ping))
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
	watcher := pool.NewWatcher(pool.Config{
		WatchTTL:      time.Duration(cfg.Watcher.WatchTTLMinutes) * time.Minute,
		SweepInterval: time.Duration(cfg.Watcher.SweepIntervalS) * time.Second,
	}, rpc, notifier, arch, metrics)

	txs := feedMonitor.Observe(ctx, ledgerFeed, stream.Start(ctx))
	runErr := watcher.Run(ctx, consumer, txs)
	if runErr != nil {
		log.Error().Err(runErr).Msg("Pool watcher stopped with error")
	}

	// 10. Graceful shutdown.
	log.Info().Int("pending", watcher.Pending()).Msg("Shutting down pool watcher...")
	stream.Close()
	consumer.Close()
	if !watcher.WaitTimeout(2 * time.Second) {
		log.Warn().Msg("Pool watcher: in-flight completions abandoned at shutdown")
	}
	if err := arch.Close(); err != nil {
		log.Warn().Err(err).Msg("Archive close failed")
	}
	if archClient != nil {
		archClient.Close()
	}

	streamStats := stream.Stats()
	rpcStats := rpc.Stats()
	feedStats := feedMonitor.Snapshot()[ledgerFeed]
	log.Info().
		Int64("messages", streamStats.MessagesRecv).
		Int64("transactions", streamStats.Transactions).
		Int64("reconnects", streamStats.Reconnects).
		Int64("ledger_gaps", feedStats.GapCount).
		Uint64("missed_ledgers", feedStats.MissedLedgers).
		Int64("rpc_requests", rpcStats.RequestCount).
		Int64("rpc_errors", rpcStats.ErrorCount).
		Float64("matched", metrics.PoolsMatched.Value()).
		Float64("alerts", metrics.AlertsSent.Value()).
		Msg("Pool watcher - Final Statistics")
	log.Info().Msg("Pool watcher - Shutdown complete")
	if runErr != nil {
		os.Exit(1)
	}
}
