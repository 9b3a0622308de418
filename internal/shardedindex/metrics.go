package shardedindex

// metricsSink abstracts away the concrete metrics backend (Prometheus vs
// noop) so the hot path never pays for label lookups when metrics are
// disabled.
type metricsSink interface {
	incRead(shard int)
	incWrite(shard int)
	incSlowOp(shard int)
	observeLockWait(shard int, seconds float64)
	setKeyCount(shard int, n int64)
}

type noopMetrics struct{}

func (noopMetrics) incRead(int)                    {}
func (noopMetrics) incWrite(int)                   {}
func (noopMetrics) incSlowOp(int)                  {}
func (noopMetrics) observeLockWait(int, float64)   {}
func (noopMetrics) setKeyCount(int, int64)         {}
