package quality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexus-trading/launchwatch/internal/observability"
	"github.com/nexus-trading/launchwatch/internal/xrpl"
	"github.com/rs/zerolog/log"
)

// FeedStats tracks delivery statistics for one ledger stream.
type FeedStats struct {
	Feed          string    `json:"feed"`
	LastEventTime time.Time `json:"last_event_time"`
	EventCount    int64     `json:"event_count"`
	LastLedger    uint64    `json:"last_ledger"`
	GapCount      int64     `json:"gap_count"`
	MissedLedgers uint64    `json:"missed_ledgers"`
	StartTime     time.Time `json:"start_time"`
}

// Alert represents a delivery problem on a feed.
type Alert struct {
	Level   string    `json:"level"` // warn|critical
	Feed    string    `json:"feed"`
	Message string    `json:"message"`
	Ts      time.Time `json:"ts"`
}

// Monitor watches validated transaction feeds for skipped ledgers and silence.
// Transactions in a skipped ledger never reach the watcher.
type Monitor struct {
	mu           sync.RWMutex
	stats        map[string]*FeedStats
	alertCh      chan Alert
	staleTimeout time.Duration
	now          func() time.Time
}

// NewMonitor creates a monitor. A feed with no event for staleTimeout is
// reported stale.
func NewMonitor(staleTimeout time.Duration) *Monitor {
	return &Monitor{
		stats:        make(map[string]*FeedStats),
		alertCh:      make(chan Alert, 256),
		staleTimeout: staleTimeout,
		now:          time.Now,
	}
}

// Caller must hold m.mu write lock.
func (m *Monitor) getOrCreate(feed string) *FeedStats {
	stats, ok := m.stats[feed]
	if !ok {
		stats = &FeedStats{Feed: feed, StartTime: m.now()}
		m.stats[feed] = stats
	}
	return stats
}

// Record notes a validated event from feed at ledgerIndex.
func (m *Monitor) Record(feed string, ledgerIndex uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreate(feed)
	stats.LastEventTime = m.now()
	stats.EventCount++

	if ledgerIndex == 0 || ledgerIndex <= stats.LastLedger {
		return
	}
	if stats.LastLedger > 0 && ledgerIndex > stats.LastLedger+1 {
		missed := ledgerIndex - stats.LastLedger - 1
		stats.GapCount++
		stats.MissedLedgers += missed
		m.emitAlert(Alert{
			Level:   "warn",
			Feed:    feed,
			Message: fmt.Sprintf("Ledger gap: %d ledgers skipped between %d and %d", missed, stats.LastLedger, ledgerIndex),
			Ts:      stats.LastEventTime,
		})
	}
	stats.LastLedger = ledgerIndex
}

// Observe records every validated event of in and forwards all events
// unchanged. The returned channel closes when in closes.
func (m *Monitor) Observe(ctx context.Context, feed string, in <-chan xrpl.TransactionEvent) <-chan xrpl.TransactionEvent {
	out := make(chan xrpl.TransactionEvent)
	go func() {
		defer close(out)
		for ev := range in {
			if ev.Validated {
				m.Record(feed, ev.LedgerIndex)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Alerts returns the read-only alert channel.
func (m *Monitor) Alerts() <-chan Alert {
	return m.alertCh
}

// Snapshot returns a copy of all current feed stats.
func (m *Monitor) Snapshot() map[string]FeedStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := make(map[string]FeedStats, len(m.stats))
	for k, v := range m.stats {
		snap[k] = *v
	}
	return snap
}

// HealthCheck reports feed degraded while it is stale, and healthy before
// its first event.
func (m *Monitor) HealthCheck(feed string) observability.HealthCheck {
	return func(context.Context) observability.ComponentHealth {
		m.mu.RLock()
		defer m.mu.RUnlock()
		stats, ok := m.stats[feed]
		if !ok {
			return observability.ComponentHealth{Status: observability.StatusHealthy, Message: "no events yet"}
		}
		if idle := m.now().Sub(stats.LastEventTime); m.staleTimeout > 0 && idle > m.staleTimeout {
			return observability.ComponentHealth{
				Status:  observability.StatusDegraded,
				Message: fmt.Sprintf("no validated transaction for %s", idle.Round(time.Second)),
			}
		}
		return observability.ComponentHealth{Status: observability.StatusHealthy}
	}
}

// Start checks for stale feeds every 10s and logs alerts until ctx is
// cancelled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log.Info().Dur("stale_timeout", m.staleTimeout).Msg("Quality monitor started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Quality monitor stopped")
			return
		case <-ticker.C:
			m.checkStaleFeeds()
		case alert := <-m.alertCh:
			logAlert(alert)
		}
	}
}

func logAlert(alert Alert) {
	ev := log.Warn()
	if alert.Level == "critical" {
		ev = log.Error()
	}
	ev.Str("feed", alert.Feed).Time("ts", alert.Ts).Msg(alert.Message)
}

// checkStaleFeeds emits critical alerts for any feed that has not received an
// event for more than staleTimeout.
func (m *Monitor) checkStaleFeeds() {
	if m.staleTimeout <= 0 {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	for _, stats := range m.stats {
		if stats.LastEventTime.IsZero() {
			continue
		}
		staleDur := now.Sub(stats.LastEventTime)
		if staleDur > m.staleTimeout {
			m.emitAlert(Alert{
				Level:   "critical",
				Feed:    stats.Feed,
				Message: fmt.Sprintf("Feed stale for >%s (last event %.1fs ago)", m.staleTimeout, staleDur.Seconds()),
				Ts:      now,
			})
		}
	}
}

// emitAlert sends an alert to the channel without blocking.
func (m *Monitor) emitAlert(alert Alert) {
	select {
	case m.alertCh <- alert:
	default:
		log.Warn().
			Str("feed", alert.Feed).
			Str("level", alert.Level).
			Str("message", alert.Message).
			Msg("Alert channel full, dropping alert")
	}
}
