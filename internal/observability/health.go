package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// ComponentStatus is the health of one dependency.
type ComponentStatus string

const (
	StatusHealthy   ComponentStatus = "healthy"
	StatusDegraded  ComponentStatus = "degraded"
	StatusUnhealthy ComponentStatus = "unhealthy"
)

// HealthCheck reports the state of one component.
type HealthCheck func(ctx context.Context) ComponentHealth

// ComponentHealth is the health report for a single component.
type ComponentHealth struct {
	Name        string          `json:"name"`
	Status      ComponentStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	Details     map[string]any  `json:"details,omitempty"`
}

// SystemHealth is the aggregate over every registered component.
type SystemHealth struct {
	Status     ComponentStatus            `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"ts"`
	Uptime     string                     `json:"uptime"`
}

// HealthMonitor runs registered checks on demand.
type HealthMonitor struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	startTime time.Time
}

func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		checks:    make(map[string]HealthCheck),
		startTime: time.Now(),
	}
}

// Register adds a named check.
func (m *HealthMonitor) Register(name string, check HealthCheck) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// ConnectivityCheck adapts a connected flag into a HealthCheck.
func ConnectivityCheck(connected func() bool) HealthCheck {
	return func(context.Context) ComponentHealth {
		if connected() {
			return ComponentHealth{Status: StatusHealthy}
		}
		return ComponentHealth{Status: StatusUnhealthy, Message: "disconnected"}
	}
}

// PingCheck adapts a ping function into a HealthCheck.
func PingCheck(ping func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusUnhealthy, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// Check runs every check and returns the worst status.
func (m *HealthMonitor) Check(ctx context.Context) SystemHealth {
	m.mu.RLock()
	names := make([]string, 0, len(m.checks))
	for name := range m.checks {
		names = append(names, name)
	}
	checks := make(map[string]HealthCheck, len(m.checks))
	for name, fn := range m.checks {
		checks[name] = fn
	}
	m.mu.RUnlock()
	sort.Strings(names)

	components := make(map[string]ComponentHealth, len(names))
	worst := StatusHealthy
	for _, name := range names {
		h := checks[name](ctx)
		h.Name = name
		h.LastChecked = time.Now()
		components[name] = h
		if statusSeverity(h.Status) > statusSeverity(worst) {
			worst = h.Status
		}
	}

	return SystemHealth{
		Status:     worst,
		Components: components,
		Timestamp:  time.Now(),
		Uptime:     time.Since(m.startTime).Round(time.Second).String(),
	}
}

// ServeHTTP answers /health; unhealthy maps to 503.
func (m *HealthMonitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := m.Check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if health.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}

func statusSeverity(s ComponentStatus) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnhealthy:
		return 2
	default:
		return -1
	}
}
