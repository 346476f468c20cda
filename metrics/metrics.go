// Package metrics instruments the executor and cursor driver with
// Prometheus collectors, the way the teacher repo wires client_golang
// counters/histograms around its RPC dispatch paths.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups the counters and histograms the executor and cursor
// register against a caller-supplied registerer. A nil *Collectors is
// valid everywhere it's used: every method is a no-op on a nil receiver,
// so instrumentation is opt-in.
type Collectors struct {
	attempts       *prometheus.CounterVec
	retries        *prometheus.CounterVec
	commandLatency *prometheus.HistogramVec
	getMores       prometheus.Counter
	cursorsKilled  prometheus.Counter
}

// NewCollectors builds and registers the driver's collectors against reg.
// Passing nil from NewCollectors is never done by this constructor; use a
// nil *Collectors directly when metrics are not wanted.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestdb",
			Subsystem: "driver",
			Name:      "command_attempts_total",
			Help:      "Number of command attempts issued by the executor, labeled by command name.",
		}, []string{"command"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nestdb",
			Subsystem: "driver",
			Name:      "command_retries_total",
			Help:      "Number of retry attempts issued by the executor, labeled by command name.",
		}, []string{"command"}),
		commandLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nestdb",
			Subsystem: "driver",
			Name:      "command_duration_seconds",
			Help:      "Command round-trip latency, labeled by command name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		getMores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nestdb",
			Subsystem: "cursor",
			Name:      "get_more_total",
			Help:      "Number of getMore commands issued by cursor iteration.",
		}),
		cursorsKilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nestdb",
			Subsystem: "cursor",
			Name:      "killed_total",
			Help:      "Number of best-effort killCursors commands issued on cursor drop.",
		}),
	}
	reg.MustRegister(c.attempts, c.retries, c.commandLatency, c.getMores, c.cursorsKilled)
	return c
}

func (c *Collectors) ObserveAttempt(command string) {
	if c == nil {
		return
	}
	c.attempts.WithLabelValues(command).Inc()
}

func (c *Collectors) ObserveRetry(command string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(command).Inc()
}

func (c *Collectors) ObserveLatency(command string, seconds float64) {
	if c == nil {
		return
	}
	c.commandLatency.WithLabelValues(command).Observe(seconds)
}

func (c *Collectors) ObserveGetMore() {
	if c == nil {
		return
	}
	c.getMores.Inc()
}

func (c *Collectors) ObserveCursorKilled() {
	if c == nil {
		return
	}
	c.cursorsKilled.Inc()
}
