package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-trading/launchwatch/internal/config"
	"github.com/rs/zerolog/log"
)

// Open builds the archive selected by cfg. A disabled archive is a Nop. The
// returned client is nil unless ClickHouse is in use.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Archive, *Client, error) {
	if !cfg.Enabled {
		log.Info().Msg("archive disabled")
		return Nop{}, nil, nil
	}

	client, err := NewClient(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("archive: ping: %w", err)
	}
	if err := client.EnsureSchema(ctx, cfg.Database); err != nil {
		client.Close()
		return nil, nil, err
	}

	w := NewWriter(client, cfg.Database, cfg.BatchSize, time.Duration(cfg.FlushIntervalS)*time.Second)
	w.Start(ctx)
	log.Info().Str("database", cfg.Database).Int("batch_size", cfg.BatchSize).Msg("archive writer started")
	return w, client, nil
}
