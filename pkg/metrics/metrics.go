// Package metrics exposes dispatch statistics as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricDispatch         = "cherrycake_dispatch_total"
	MetricDispatchDuration = "cherrycake_dispatch_duration_seconds"
	MetricActionCache      = "cherrycake_action_cache_total"
	MetricBruteForceDelay  = "cherrycake_brute_force_delay_seconds"
	MetricHandlerPanic     = "cherrycake_handler_panic_total"
)

// Collector groups the dispatch collectors. A nil *Collector is valid and
// records nothing, so callers never need to check for it.
type Collector struct {
	dispatch        *prometheus.CounterVec
	dispatchSeconds *prometheus.HistogramVec
	actionCache     *prometheus.CounterVec
	bruteForce      prometheus.Histogram
	panics          *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dispatch: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDispatch,
				Help: "Dispatches by terminal status.",
			},
			[]string{"status", "action"},
		),
		dispatchSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricDispatchDuration,
				Help:    "Time spent dispatching a request, brute force delays included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		actionCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricActionCache,
				Help: "Action cache lookups by result.",
			},
			[]string{"result", "action"},
		),
		bruteForce: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricBruteForceDelay,
				Help:    "Delays applied to declined brute force sensitive actions.",
				Buckets: []float64{0, 1, 2, 3, 5, 10},
			},
		),
		panics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHandlerPanic,
				Help: "Handler panics recovered during dispatch.",
			},
			[]string{"action"},
		),
	}
	reg.MustRegister(c.dispatch, c.dispatchSeconds, c.actionCache, c.bruteForce, c.panics)
	return c
}

// Dispatch records the terminal status of a dispatch.
func (c *Collector) Dispatch(status, action string, d time.Duration) {
	if c == nil {
		return
	}
	c.dispatch.WithLabelValues(status, action).Inc()
	c.dispatchSeconds.WithLabelValues(status).Observe(d.Seconds())
}

// CacheLookup records an action cache lookup. result is hit, miss or error.
func (c *Collector) CacheLookup(result, action string) {
	if c == nil {
		return
	}
	c.actionCache.WithLabelValues(result, action).Inc()
}

// BruteForceDelay records a brute force delay.
func (c *Collector) BruteForceDelay(d time.Duration) {
	if c == nil {
		return
	}
	c.bruteForce.Observe(d.Seconds())
}

// Panic records a recovered handler panic.
func (c *Collector) Panic(action string) {
	if c == nil {
		return
	}
	c.panics.WithLabelValues(action).Inc()
}
