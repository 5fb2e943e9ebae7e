package circuitbreaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reflection_breaker_state",
			Help: "Breaker state per transport (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker", "provider"},
	)

	breakerCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_breaker_calls_total",
			Help: "Calls through a breaker by result (success, failure, canceled, rejected)",
		},
		[]string{"breaker", "provider", "result"},
	)

	breakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reflection_breaker_transitions_total",
			Help: "Breaker state transitions by target state",
		},
		[]string{"breaker", "provider", "to"},
	)

	breakerOpenSince = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reflection_breaker_open_since_seconds",
			Help: "Unix time the breaker last opened, 0 while it is not open",
		},
		[]string{"breaker", "provider"},
	)
)

// Tracked is a breaker registered with a Collector.
type Tracked struct {
	Breaker  *CircuitBreaker
	Provider string
}

// Collector exports the state of the breakers guarding review transports
// and the outcome stream. Breakers are keyed by name.
type Collector struct {
	mu      sync.RWMutex
	tracked map[string]Tracked
}

func NewCollector() *Collector {
	return &Collector{tracked: make(map[string]Tracked)}
}

// Breakers is the process-wide collector used by the wrappers and the
// review client factory.
var Breakers = NewCollector()

// Track registers cb under provider and hooks its state changes. Tracking a
// name again replaces the earlier breaker.
func (c *Collector) Track(cb *CircuitBreaker, provider string) {
	name := cb.Name()
	c.mu.Lock()
	c.tracked[name] = Tracked{Breaker: cb, Provider: provider}
	c.mu.Unlock()

	prev := cb.config.OnStateChange
	cb.config.OnStateChange = func(n string, from, to State) {
		if prev != nil {
			prev(n, from, to)
		}
		breakerTransitions.WithLabelValues(name, provider, to.String()).Inc()
		breakerState.WithLabelValues(name, provider).Set(float64(to))
		switch {
		case to == StateOpen:
			breakerOpenSince.WithLabelValues(name, provider).SetToCurrentTime()
		case from == StateOpen:
			breakerOpenSince.WithLabelValues(name, provider).Set(0)
		}
	}
	breakerState.WithLabelValues(name, provider).Set(float64(cb.State()))
}

// Observe counts one call through cb. Calls the breaker refused are
// rejected, not failed.
func (c *Collector) Observe(cb *CircuitBreaker, err error) {
	result := "success"
	switch {
	case errors.Is(err, ErrCircuitBreakerOpen), errors.Is(err, ErrTooManyRequests):
		result = "rejected"
	case errors.Is(err, context.Canceled):
		result = "canceled"
	case err != nil:
		result = "failure"
	}
	breakerCalls.WithLabelValues(cb.Name(), c.providerOf(cb.Name()), result).Inc()
}

func (c *Collector) providerOf(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.tracked[name]; ok {
		return t.Provider
	}
	return "unknown"
}

// Snapshot returns the tracked breakers sorted by name.
func (c *Collector) Snapshot() []Tracked {
	c.mu.RLock()
	out := make([]Tracked, 0, len(c.tracked))
	for _, t := range c.tracked {
		out = append(out, t)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Breaker.Name() < out[j].Breaker.Name() })
	return out
}

// Refresh sets the state gauges. An open breaker whose timeout has passed
// is moved to half-open here even when no call has arrived.
func (c *Collector) Refresh() {
	for _, t := range c.Snapshot() {
		breakerState.WithLabelValues(t.Breaker.Name(), t.Provider).Set(float64(t.Breaker.advance()))
	}
}

// Start refreshes the gauges every interval until ctx is done.
func (c *Collector) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Refresh()
			}
		}
	}()
}
