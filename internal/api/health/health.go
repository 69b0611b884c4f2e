// Package health reports whether the API's backing services are reachable.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component is operational but with issues.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy Status = "unhealthy"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response represents the health check response.
type Response struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
}

// Pinger is an interface for components that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type optional struct {
	name   string
	pinger Pinger
}

// Checker performs health checks. The store is required: when it fails the
// service is unhealthy. Optional dependencies such as Redis only degrade it,
// since the API falls back to in-process behaviour without them.
type Checker struct {
	store     Pinger
	optional  []optional
	startTime time.Time
	version   string
	timeout   time.Duration
	mu        sync.RWMutex
}

// NewChecker creates a new health checker for the store.
func NewChecker(store Pinger, version string) *Checker {
	return &Checker{
		store:     store,
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// AddOptional registers a dependency whose failure degrades the service.
func (c *Checker) AddOptional(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.optional = append(c.optional, optional{name: name, pinger: p})
}

// SetTimeout sets the timeout for health checks.
func (c *Checker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// Check performs all health checks and returns the aggregated response.
func (c *Checker) Check(ctx context.Context) *Response {
	c.mu.RLock()
	timeout := c.timeout
	deps := make([]optional, len(c.optional))
	copy(deps, c.optional)
	c.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components := map[string]ComponentStatus{
		"database": ping(checkCtx, c.store, StatusUnhealthy),
	}
	for _, d := range deps {
		components[d.name] = ping(checkCtx, d.pinger, StatusDegraded)
	}

	overallStatus := StatusHealthy
	for _, comp := range components {
		if comp.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		}
		if comp.Status == StatusDegraded {
			overallStatus = StatusDegraded
		}
	}

	return &Response{
		Status:     overallStatus,
		Components: components,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
	}
}

func ping(ctx context.Context, p Pinger, failed Status) ComponentStatus {
	if p == nil {
		return ComponentStatus{Status: failed, Message: "not configured"}
	}
	if err := p.Ping(ctx); err != nil {
		return ComponentStatus{Status: failed, Message: "ping failed: " + err.Error()}
	}
	return ComponentStatus{Status: StatusHealthy, Message: "connected"}
}

// Handler returns an HTTP handler for health checks.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")

		switch response.Status {
		case StatusHealthy, StatusDegraded:
			w.WriteHeader(http.StatusOK)
		case StatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}
