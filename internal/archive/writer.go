package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	tableLaunches = "launch_events"
	tablePools    = "pool_events"
)

var errClosed = errors.New("archive writer is closed")

// LaunchRow records one launch announcement handled by the publisher.
type LaunchRow struct {
	DetectedAt time.Time
	Token      string
	Issuer     string
	Supply     string
	Source     string
	Instance   string
	Published  bool
	Notified   bool
}

func (r LaunchRow) values() []any {
	return []any{r.DetectedAt, r.Token, r.Issuer, r.Supply, r.Source, r.Instance, r.Published, r.Notified}
}

var launchColumns = []string{"detected_at", "token", "issuer", "supply", "source", "instance", "published", "notified"}

// PoolRow records one matched pool and its computed metrics.
type PoolRow struct {
	MatchedAt        time.Time
	AnnouncedAt      time.Time
	Token            string
	Issuer           string
	TxHash           string
	LedgerIndex      uint64
	AMMAccount       string
	LiquidityXRP     decimal.Decimal
	PoolSupply       decimal.Decimal
	InitialPrice     decimal.Decimal
	DevAllocationPct decimal.Decimal
	Notified         bool
}

func (r PoolRow) values() []any {
	return []any{
		r.MatchedAt, r.AnnouncedAt, r.Token, r.Issuer, r.TxHash, r.LedgerIndex, r.AMMAccount,
		r.LiquidityXRP, r.PoolSupply, r.InitialPrice, r.DevAllocationPct, r.Notified,
	}
}

var poolColumns = []string{
	"matched_at", "announced_at", "token", "issuer", "tx_hash", "ledger_index", "amm_account",
	"liquidity_xrp", "pool_supply", "initial_price", "dev_allocation_pct", "notified",
}

// Archive receives rows from either stage.
type Archive interface {
	RecordLaunch(ctx context.Context, row LaunchRow) error
	RecordPool(ctx context.Context, row PoolRow) error
	Close() error
}

// Nop discards every row. Used when the archive is disabled.
type Nop struct{}

func (Nop) RecordLaunch(context.Context, LaunchRow) error { return nil }
func (Nop) RecordPool(context.Context, PoolRow) error     { return nil }
func (Nop) Close() error                                  { return nil }

// Writer buffers rows and inserts them into ClickHouse in batches, on size
// or on the flush interval.
type Writer struct {
	client        *Client
	database      string
	batchSize     int
	flushInterval time.Duration

	mu       sync.Mutex
	launches [][]any
	pools    [][]any
	closed   bool

	flushCount atomic.Int64
	errorCount atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	// flushHook replaces real inserts in tests.
	flushHook func(ctx context.Context, table string, rows [][]any) error
}

// NewWriter creates a batch writer. client may be nil when a flush hook is set.
func NewWriter(client *Client, database string, batchSize int, flushInterval time.Duration) *Writer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Writer{
		client:        client,
		database:      database,
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (w *Writer) tableName(name string) string {
	if w.database == "" {
		return name
	}
	return w.database + "." + name
}

func (w *Writer) RecordLaunch(ctx context.Context, row LaunchRow) error {
	return w.add(ctx, &w.launches, row.values())
}

func (w *Writer) RecordPool(ctx context.Context, row PoolRow) error {
	return w.add(ctx, &w.pools, row.values())
}

func (w *Writer) add(ctx context.Context, buf *[][]any, row []any) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errClosed
	}
	*buf = append(*buf, row)
	full := len(w.launches)+len(w.pools) >= w.batchSize
	w.mu.Unlock()

	if full {
		return w.Flush(ctx)
	}
	return nil
}

// Start runs the periodic flush loop in the background.
func (w *Writer) Start(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()

		log.Info().
			Str("database", w.database).
			Int("batch_size", w.batchSize).
			Dur("flush_interval", w.flushInterval).
			Msg("archive writer started")

		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				if err := w.Flush(bgCtx); err != nil {
					log.Error().Err(err).Msg("archive: periodic flush error")
				}
			}
		}
	}()
}

// Flush inserts every buffered row.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	launches, pools := w.launches, w.pools
	w.launches, w.pools = nil, nil
	w.mu.Unlock()

	if len(launches) == 0 && len(pools) == 0 {
		return nil
	}

	var errs []error
	if len(launches) > 0 {
		if err := w.insert(ctx, tableLaunches, launchColumns, launches); err != nil {
			errs = append(errs, err)
		}
	}
	if len(pools) > 0 {
		if err := w.insert(ctx, tablePools, poolColumns, pools); err != nil {
			errs = append(errs, err)
		}
	}

	w.flushCount.Add(1)
	log.Debug().Int("launches", len(launches)).Int("pools", len(pools)).Msg("archive flushed")
	return errors.Join(errs...)
}

func (w *Writer) insert(ctx context.Context, table string, columns []string, rows [][]any) error {
	name := w.tableName(table)
	err := w.send(ctx, name, columns, rows)
	if err != nil {
		w.errorCount.Add(1)
		log.Error().Err(err).Str("table", name).Int("count", len(rows)).Msg("archive: insert failed")
	}
	return err
}

func (w *Writer) send(ctx context.Context, table string, columns []string, rows [][]any) error {
	if w.flushHook != nil {
		return w.flushHook(ctx, table, rows)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))
	batch, err := w.client.Conn().PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s batch: %w", table, err)
	}
	for _, r := range rows {
		if err := batch.Append(r...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append %s row: %w", table, err)
		}
	}
	return batch.Send()
}

// Close stops the flush loop and writes what is left.
func (w *Writer) Close() error {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	err := w.Flush(context.Background())
	log.Info().
		Int64("flushes", w.flushCount.Load()).
		Int64("errors", w.errorCount.Load()).
		Msg("archive writer closed")
	return err
}

// Stats returns flush and error counts and the number of buffered rows.
func (w *Writer) Stats() (flushCount, errorCount int64, pending int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushCount.Load(), w.errorCount.Load(), len(w.launches) + len(w.pools)
}

// SetFlushHook replaces inserts with hook. Test only.
func (w *Writer) SetFlushHook(hook func(ctx context.Context, table string, rows [][]any) error) {
	w.flushHook = hook
}
