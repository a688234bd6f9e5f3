package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexus-trading/launchwatch/internal/archive"
	"github.com/nexus-trading/launchwatch/internal/bus"
	"github.com/nexus-trading/launchwatch/internal/observability"
	"github.com/nexus-trading/launchwatch/internal/xrpl"
	"github.com/rs/zerolog/log"
)

// Notifier sends a MarkdownV2 alert.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Config configures the watcher.
type Config struct {
	WatchTTL      time.Duration // 0 keeps watches until matched
	SweepInterval time.Duration
}

// Watcher correlates launch facts from the event channel with AMMCreate
// transactions from the ledger stream.
type Watcher struct {
	cfg      Config
	pending  *PendingSet
	amm      xrpl.AMMQuerier
	notifier Notifier
	archive  archive.Archive
	metrics  *observability.PipelineMetrics
	now      func() time.Time

	inflight sync.WaitGroup
}

// NewWatcher wires a watcher. arch and metrics may be nil.
func NewWatcher(cfg Config, amm xrpl.AMMQuerier, notifier Notifier, arch archive.Archive, metrics *observability.PipelineMetrics) *Watcher {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if arch == nil {
		arch = archive.Nop{}
	}
	if metrics == nil {
		metrics = observability.NewPipelineMetrics("pool-watcher")
	}
	return &Watcher{
		cfg:      cfg,
		pending:  NewPendingSet(),
		amm:      amm,
		notifier: notifier,
		archive:  arch,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Pending returns the number of open watches.
func (w *Watcher) Pending() int { return w.pending.Len() }

// HandleLaunch is the bus handler for launch facts. Malformed payloads are
// logged and dropped.
func (w *Watcher) HandleLaunch(_ context.Context, msg bus.Message) error {
	fact, err := bus.DecodeLaunchFact(msg.Value)
	if err != nil {
		w.metrics.MalformedEvents.Inc()
		log.Error().Err(err).Str("topic", msg.Topic).Int("bytes", len(msg.Value)).Msg("pool watcher: dropping malformed launch event")
		return nil
	}
	w.metrics.LaunchesReceived.Inc()

	key := fact.WatchKey()
	if !w.pending.Add(fact, w.now()) {
		w.metrics.DuplicateWatches.Inc()
		log.Info().Str("watch_key", string(key)).Msg("pool watcher: already watching, duplicate announcement ignored")
		return nil
	}
	w.metrics.WatchesPending.Set(float64(w.pending.Len()))
	log.Info().
		Str("watch_key", string(key)).
		Str("supply", fact.Supply).
		Msg("pool watcher: new token, waiting for AMM creation")
	return nil
}

// HandleTransaction checks one stream event against the pending watches.
// On a match the watch is removed before this call returns; the pool lookup
// and alert run in the background. It reports whether a watch was claimed.
func (w *Watcher) HandleTransaction(ctx context.Context, ev xrpl.TransactionEvent) bool {
	if !ev.Validated || !ev.Succeeded() || ev.Tx.TransactionType != xrpl.TxTypeAMMCreate {
		return false
	}
	_, issued, ok := ev.Tx.PoolAssets()
	if !ok {
		return false
	}

	watch, ok := w.claim(issued)
	if !ok {
		return false
	}
	w.metrics.PoolsMatched.Inc()
	w.metrics.WatchesPending.Set(float64(w.pending.Len()))
	w.metrics.MatchLatency.ObserveDuration(w.now().Sub(watch.Fact.Timestamp))
	log.Info().
		Str("watch_key", string(watch.Fact.WatchKey())).
		Str("tx", ev.Hash).
		Uint64("ledger", ev.LedgerIndex).
		Msg("pool watcher: AMMCreate matched")

	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.complete(ctx, watch, issued, ev)
	}()
	return true
}

// claim looks up the watch for the issued side of a pool. Nonstandard codes
// are hex on the ledger, so the decoded ticker is tried as well.
func (w *Watcher) claim(issued xrpl.Amount) (Watch, bool) {
	candidates := []string{issued.Currency}
	if decoded := xrpl.DecodeCurrency(issued.Currency); decoded != issued.Currency {
		candidates = append(candidates, decoded)
	}
	for _, ticker := range candidates {
		if watch, ok := w.pending.Claim(bus.NewWatchKey(issued.Issuer, ticker)); ok {
			return watch, true
		}
	}
	return Watch{}, false
}

// complete fetches the pool state, derives the metrics and sends the alert.
// The watch is already gone, so failures are logged and not retried.
func (w *Watcher) complete(ctx context.Context, watch Watch, issued xrpl.Amount, ev xrpl.TransactionEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("pool watcher: completion panic recovered")
		}
	}()

	fact := watch.Fact
	logger := log.With().Str("watch_key", string(fact.WatchKey())).Str("tx", ev.Hash).Logger()

	asset := xrpl.Asset{Currency: issued.Currency, Issuer: issued.Issuer}
	info, err := w.amm.AMMInfo(ctx, asset, xrpl.NativeAsset)
	if err != nil {
		w.metrics.LedgerQueryFailures.Inc()
		logger.Error().Err(err).Msg("pool watcher: amm_info failed, no alert for this token")
		return
	}

	if _, pooled, ok := info.Reserves(); ok && (pooled.Issuer != fact.Issuer || !xrpl.CurrencyMatches(pooled.Currency, fact.Token)) {
		w.metrics.MetricFailures.Inc()
		logger.Error().
			Str("pool_token", pooled.String()).
			Msg("pool watcher: amm_info returned a pool for another token, no alert")
		return
	}

	m, err := ComputeMetrics(fact.Supply, info.Amount, info.Amount2)
	if err != nil {
		w.metrics.MetricFailures.Inc()
		logger.Error().Err(err).
			Str("amount", info.Amount.String()).
			Str("amount2", info.Amount2.String()).
			Str("supply", fact.Supply).
			Msg("pool watcher: metric computation failed, no alert for this token")
		return
	}

	logger.Info().
		Str("price", m.InitialPrice.String()).
		Str("liquidity_xrp", m.Liquidity.String()).
		Str("pool_supply", m.PoolSupply.String()).
		Str("dev_pct", m.DevAllocationPercent.StringFixed(2)).
		Str("lp_tokens", info.LPToken.Value.String()).
		Uint32("trading_fee", info.TradingFee).
		Msg("pool watcher: pool is live")

	notified := true
	if err := w.notifier.Send(ctx, LiveMessage(fact.Token, m)); err != nil {
		notified = false
		w.metrics.NotifyFailures.Inc()
		logger.Error().Err(err).Msg("pool watcher: pool live alert failed")
	} else {
		w.metrics.AlertsSent.Inc()
	}

	row := archive.PoolRow{
		MatchedAt:        w.now(),
		AnnouncedAt:      fact.Timestamp,
		Token:            fact.Token,
		Issuer:           fact.Issuer,
		TxHash:           ev.Hash,
		LedgerIndex:      ev.LedgerIndex,
		AMMAccount:       info.Account,
		LiquidityXRP:     m.Liquidity,
		PoolSupply:       m.PoolSupply,
		InitialPrice:     m.InitialPrice,
		DevAllocationPct: m.DevAllocationPercent,
		Notified:         notified,
	}
	if err := w.archive.RecordPool(ctx, row); err != nil {
		w.metrics.ArchiveErrors.Inc()
		logger.Warn().Err(err).Msg("pool watcher: archive write failed")
	}
}

// Sweep abandons watches older than the TTL.
func (w *Watcher) Sweep() int {
	expired := w.pending.Expire(w.now(), w.cfg.WatchTTL)
	for _, watch := range expired {
		w.metrics.WatchesExpired.Inc()
		log.Warn().
			Str("watch_key", string(watch.Fact.WatchKey())).
			Time("since", watch.AddedAt).
			Dur("ttl", w.cfg.WatchTTL).
			Msg("pool watcher: launch abandoned, no AMM pool before TTL")
	}
	if len(expired) > 0 {
		w.metrics.WatchesPending.Set(float64(w.pending.Len()))
	}
	return len(expired)
}

// Wait blocks until every background completion has finished.
func (w *Watcher) Wait() { w.inflight.Wait() }

// WaitTimeout is Wait bounded by d. It reports whether all completions
// finished in time; the rest are abandoned.
func (w *Watcher) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// Run consumes launch facts and transactions until ctx is cancelled, the
// transaction stream closes or the launch subscription fails. Background
// completions are not awaited.
func (w *Watcher) Run(ctx context.Context, consumer bus.Consumer, txs <-chan xrpl.TransactionEvent) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subErr := make(chan error, 1)
	go func() { subErr <- consumer.Consume(ctx, w.HandleLaunch) }()

	sweep := time.NewTicker(w.cfg.SweepInterval)
	defer sweep.Stop()

	log.Info().Dur("watch_ttl", w.cfg.WatchTTL).Msg("pool watcher: listening for AMM creation")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-subErr:
			if ctx.Err() != nil || err == nil {
				return nil
			}
			return fmt.Errorf("launch subscription: %w", err)
		case <-sweep.C:
			w.Sweep()
		case ev, ok := <-txs:
			if !ok {
				log.Warn().Msg("pool watcher: transaction stream closed")
				return nil
			}
			w.HandleTransaction(ctx, ev)
		}
	}
}
