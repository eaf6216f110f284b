// Package metrics exposes Prometheus collectors for statement execution,
// mirroring and record caching.
//
//	m := metrics.New()
//	prometheus.MustRegister(m)
//	conn := sql.NewConnection(cfg, sql.WithObserver(m))
//	users := model.New("users", model.WithMetrics(m))
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mirrorm"

// Collector holds every mirrorm metric. It implements prometheus.Collector,
// sql.Observer and mirror.Recorder.
type Collector struct {
	statements        *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
	mirrorOps         *prometheus.CounterVec
	mirrorDuration    prometheus.Histogram
	shadowFailures    *prometheus.CounterVec
	cacheRequests     *prometheus.CounterVec
}

// New returns an unregistered Collector.
func New() *Collector {
	return &Collector{
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statements_total",
			Help:      "Statements executed, by dialect, kind and outcome",
		}, []string{"dialect", "kind", "outcome"}),
		statementDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "statement_duration_seconds",
			Help:      "Statement execution latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"dialect", "kind"}),
		mirrorOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_operations_total",
			Help:      "Mirrored operations that reached the shadows, by outcome",
		}, []string{"op", "outcome"}),
		mirrorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mirror_duration_seconds",
			Help:      "Time spent applying an operation to all shadows",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		shadowFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shadow_failures_total",
			Help:      "Shadow operations that failed after the primary succeeded",
		}, []string{"op", "shadow"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Record cache lookups, by table and result",
		}, []string{"table", "result"}),
	}
}

// Register registers the Collector on reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	return reg.Register(c)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.statements.Describe(ch)
	c.statementDuration.Describe(ch)
	c.mirrorOps.Describe(ch)
	c.mirrorDuration.Describe(ch)
	c.shadowFailures.Describe(ch)
	c.cacheRequests.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.statements.Collect(ch)
	c.statementDuration.Collect(ch)
	c.mirrorOps.Collect(ch)
	c.mirrorDuration.Collect(ch)
	c.shadowFailures.Collect(ch)
	c.cacheRequests.Collect(ch)
}

// ObserveStatement records one executed statement.
func (c *Collector) ObserveStatement(dialect, kind string, d time.Duration, err error) {
	c.statements.WithLabelValues(dialect, kind, outcome(err)).Inc()
	c.statementDuration.WithLabelValues(dialect, kind).Observe(d.Seconds())
}

// MirrorCompleted records one mirrored call.
func (c *Collector) MirrorCompleted(op string, _, failures int, d time.Duration) {
	result := "ok"
	if failures > 0 {
		result = "partial"
	}
	c.mirrorOps.WithLabelValues(op, result).Inc()
	c.mirrorDuration.Observe(d.Seconds())
}

// ShadowFailed records one failing shadow.
func (c *Collector) ShadowFailed(op, shadow string) {
	c.shadowFailures.WithLabelValues(op, shadow).Inc()
}

// CacheHit records a record served from the cache.
func (c *Collector) CacheHit(table string) {
	c.cacheRequests.WithLabelValues(table, "hit").Inc()
}

// CacheMiss records a cache lookup that fell through to the primary.
func (c *Collector) CacheMiss(table string) {
	c.cacheRequests.WithLabelValues(table, "miss").Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
