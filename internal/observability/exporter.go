package observability

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// PrometheusExporter serves a registry in the Prometheus text format.
type PrometheusExporter struct {
	registry *Registry
}

func NewPrometheusExporter(registry *Registry) *PrometheusExporter {
	return &PrometheusExporter{registry: registry}
}

// ServeHTTP implements http.Handler for /metrics.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(e.Format()))
}

// Format renders every metric:
//
//	# HELP <name> <help>
//	# TYPE <name> <type>
//	<name>{labels} <value>
func (e *PrometheusExporter) Format() string {
	var b strings.Builder

	e.registry.mu.RLock()
	defer e.registry.mu.RUnlock()

	for _, name := range sortedKeys(e.registry.counters) {
		c := e.registry.counters[name]
		writeHeader(&b, c.name, c.help, "counter")
		fmt.Fprintf(&b, "%s%s %s\n\n", c.name, formatLabels(c.labels), formatFloat(c.Value()))
	}

	for _, name := range sortedKeys(e.registry.gauges) {
		g := e.registry.gauges[name]
		writeHeader(&b, g.name, g.help, "gauge")
		fmt.Fprintf(&b, "%s%s %s\n\n", g.name, formatLabels(g.labels), formatFloat(g.Value()))
	}

	for _, name := range sortedKeys(e.registry.histograms) {
		h := e.registry.histograms[name]
		buckets, counts, sum, count := h.BucketCounts()
		writeHeader(&b, h.name, h.help, "histogram")

		for i, bound := range buckets {
			fmt.Fprintf(&b, "%s_bucket%s %d\n", h.name, addLabel(h.labels, "le", formatFloat(bound)), counts[i])
		}
		fmt.Fprintf(&b, "%s_bucket%s %d\n", h.name, addLabel(h.labels, "le", "+Inf"), count)

		lbl := formatLabels(h.labels)
		fmt.Fprintf(&b, "%s_sum%s %s\n", h.name, lbl, formatFloat(sum))
		fmt.Fprintf(&b, "%s_count%s %d\n\n", h.name, lbl, count)
	}

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
}

// formatLabels returns {k1="v1",k2="v2"} with sorted keys, or "" when empty.
func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func addLabel(base map[string]string, key, value string) string {
	merged := make(map[string]string, len(base)+1)
	for k, v := range base {
		merged[k] = v
	}
	merged[key] = value
	return formatLabels(merged)
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
