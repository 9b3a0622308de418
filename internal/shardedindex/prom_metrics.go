package shardedindex

// prom_metrics.go wires ShardedIndex's per-shard counters to Prometheus:
// one CounterVec/HistogramVec/GaugeVec per metric, labeled by shard,
// registered eagerly and updated without allocation on the hot path.

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type promMetrics struct {
	reads    *prometheus.CounterVec
	writes   *prometheus.CounterVec
	slowOps  *prometheus.CounterVec
	lockWait *prometheus.HistogramVec
	keys     *prometheus.GaugeVec
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	label := []string{"shard"}
	pm := &promMetrics{
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zumic", Subsystem: "index", Name: "reads_total",
			Help: "Number of read operations per shard.",
		}, label),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zumic", Subsystem: "index", Name: "writes_total",
			Help: "Number of write operations per shard.",
		}, label),
		slowOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zumic", Subsystem: "index", Name: "slow_ops_total",
			Help: "Number of operations exceeding the slow-op threshold.",
		}, label),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zumic", Subsystem: "index", Name: "lock_wait_seconds",
			Help:    "Time spent waiting under a shard lock.",
			Buckets: prometheus.DefBuckets,
		}, label),
		keys: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "zumic", Subsystem: "index", Name: "shard_keys",
			Help: "Live key count per shard.",
		}, label),
	}
	reg.MustRegister(pm.reads, pm.writes, pm.slowOps, pm.lockWait, pm.keys)
	return pm
}

func (m *promMetrics) incRead(shard int)  { m.reads.WithLabelValues(strconv.Itoa(shard)).Inc() }
func (m *promMetrics) incWrite(shard int) { m.writes.WithLabelValues(strconv.Itoa(shard)).Inc() }
func (m *promMetrics) incSlowOp(shard int) {
	m.slowOps.WithLabelValues(strconv.Itoa(shard)).Inc()
}
func (m *promMetrics) observeLockWait(shard int, seconds float64) {
	m.lockWait.WithLabelValues(strconv.Itoa(shard)).Observe(seconds)
}
func (m *promMetrics) setKeyCount(shard int, n int64) {
	m.keys.WithLabelValues(strconv.Itoa(shard)).Set(float64(n))
}

// newMetricsSink decides which implementation to use based on whether the
// caller enabled metrics.
func newMetricsSink(enabled bool, reg *prometheus.Registry) metricsSink {
	if !enabled || reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg)
}
