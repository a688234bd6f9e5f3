package observability

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// -----------------------------------------------------------------------
// Counter
// -----------------------------------------------------------------------

// Counter is a monotonically increasing counter. The value is kept as
// int64 * 1000 so it stays lock-free with 3 decimal places.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1000)
}

// Add increments the counter by delta. Negative deltas are ignored.
func (c *Counter) Add(delta float64) {
	if delta < 0 {
		return
	}
	c.value.Add(int64(math.Round(delta * 1000)))
}

// Value returns the current counter value.
func (c *Counter) Value() float64 {
	return float64(c.value.Load()) / 1000.0
}

// -----------------------------------------------------------------------
// Gauge
// -----------------------------------------------------------------------

// Gauge can go up and down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	mu     sync.Mutex
	value  float64
}

func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

func (g *Gauge) Inc() { g.Add(1) }

func (g *Gauge) Dec() { g.Add(-1) }

func (g *Gauge) Add(delta float64) {
	g.mu.Lock()
	g.value += delta
	g.mu.Unlock()
}

func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// -----------------------------------------------------------------------
// Histogram
// -----------------------------------------------------------------------

// Histogram tracks a value distribution. Buckets are upper-bound inclusive
// and counts are cumulative.
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	mu      sync.Mutex
	buckets []float64
	counts  []int64
	sum     float64
	count   int64
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
		}
	}
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// BucketCounts returns a snapshot of bounds and cumulative counts for the
// exporter.
func (h *Histogram) BucketCounts() (buckets []float64, counts []int64, sum float64, count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := make([]float64, len(h.buckets))
	c := make([]int64, len(h.counts))
	copy(b, h.buckets)
	copy(c, h.counts)
	return b, c, h.sum, h.count
}

// -----------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------

// Registry owns every metric of a process. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	labels     map[string]string
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates an empty registry. constLabels are attached to every
// metric registered afterwards.
func NewRegistry(constLabels map[string]string) *Registry {
	return &Registry{
		labels:     copyLabels(constLabels),
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// NewCounter registers a counter, or returns the existing one with that name.
func (r *Registry) NewCounter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing
	}
	c := &Counter{name: name, help: help, labels: r.labels}
	r.counters[name] = c
	return c
}

// NewGauge registers a gauge, or returns the existing one with that name.
func (r *Registry) NewGauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.gauges[name]; ok {
		return existing
	}
	g := &Gauge{name: name, help: help, labels: r.labels}
	r.gauges[name] = g
	return g
}

// NewHistogram registers a histogram, or returns the existing one with that
// name.
func (r *Registry) NewHistogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	h := &Histogram{
		name:    name,
		help:    help,
		labels:  r.labels,
		buckets: sorted,
		counts:  make([]int64, len(sorted)),
	}
	r.histograms[name] = h
	return h
}

func (r *Registry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

func (r *Registry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

func (r *Registry) GetHistogram(name string) *Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.histograms[name]
}

// -----------------------------------------------------------------------
// Pipeline metrics
// -----------------------------------------------------------------------

// MatchLatencyBuckets cover announcement-to-pool delays, in seconds.
var MatchLatencyBuckets = []float64{1, 10, 30, 60, 300, 900, 3600, 6 * 3600, 24 * 3600}

// PipelineMetrics is the fixed metric set shared by both stages. Each
// process only moves the counters of its own stage.
type PipelineMetrics struct {
	Registry *Registry

	// Launch publisher.
	AnnouncementsSeen     *Counter
	AnnouncementsFiltered *Counter
	ParseMisses           *Counter
	LaunchesPublished     *Counter
	PublishFailures       *Counter

	// Pool watcher.
	LaunchesReceived    *Counter
	MalformedEvents     *Counter
	DuplicateWatches    *Counter
	WatchesExpired      *Counter
	PoolsMatched        *Counter
	LedgerQueryFailures *Counter
	MetricFailures      *Counter
	WatchesPending      *Gauge
	MatchLatency        *Histogram

	// Shared.
	AlertsSent     *Counter
	NotifyFailures *Counter
	ArchiveErrors  *Counter
}

// NewPipelineMetrics registers the pipeline metric set for one service.
func NewPipelineMetrics(service string) *PipelineMetrics {
	r := NewRegistry(map[string]string{"service": service})
	return &PipelineMetrics{
		Registry: r,

		AnnouncementsSeen:     r.NewCounter("launchwatch_announcements_total", "Inbound messages received from the feed"),
		AnnouncementsFiltered: r.NewCounter("launchwatch_announcements_filtered_total", "Inbound messages dropped by the origin filter"),
		ParseMisses:           r.NewCounter("launchwatch_parse_misses_total", "Messages from the source channel that were not launch announcements"),
		LaunchesPublished:     r.NewCounter("launchwatch_launches_published_total", "Launch facts published to the broker"),
		PublishFailures:       r.NewCounter("launchwatch_publish_failures_total", "Broker publish failures"),

		LaunchesReceived:    r.NewCounter("launchwatch_launches_received_total", "Launch facts received from the broker"),
		MalformedEvents:     r.NewCounter("launchwatch_malformed_events_total", "Broker payloads dropped as malformed"),
		DuplicateWatches:    r.NewCounter("launchwatch_duplicate_watches_total", "Launch facts ignored because the watch already exists"),
		WatchesExpired:      r.NewCounter("launchwatch_watches_expired_total", "Watches abandoned after the TTL"),
		PoolsMatched:        r.NewCounter("launchwatch_pools_matched_total", "AMMCreate transactions matched to a pending watch"),
		LedgerQueryFailures: r.NewCounter("launchwatch_ledger_query_failures_total", "amm_info lookups that failed"),
		MetricFailures:      r.NewCounter("launchwatch_metric_failures_total", "Pool metric computations that failed"),
		WatchesPending:      r.NewGauge("launchwatch_watches_pending", "Watches waiting for a pool"),
		MatchLatency:        r.NewHistogram("launchwatch_match_latency_seconds", "Delay between announcement and pool creation", MatchLatencyBuckets),

		AlertsSent:     r.NewCounter("launchwatch_alerts_sent_total", "Alerts delivered to the chat"),
		NotifyFailures: r.NewCounter("launchwatch_notify_failures_total", "Alerts that could not be delivered"),
		ArchiveErrors:  r.NewCounter("launchwatch_archive_errors_total", "Archive rows that could not be written"),
	}
}

// -----------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------

func copyLabels(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
