package zumic

// config.go defines StorageEngine's functional-options configuration: a
// Config struct with unexported fields, a defaultConfig constructor, and a set of
// With* options applied in New.

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zumic/zumic/internal/aof"
	"github.com/zumic/zumic/internal/compaction"
	"github.com/zumic/zumic/internal/recovery"
)

// BackendKind selects which StorageEngine backend to construct.
type BackendKind uint8

const (
	BackendMemory BackendKind = iota
	BackendPersistent
	BackendCluster
)

// Config bundles every knob that influences engine behavior. All fields are
// immutable once the engine is constructed.
type Config struct {
	backend BackendKind

	numShards            int
	enableMetrics        bool
	slowOperationThreshold time.Duration

	aofPath        string
	aofSyncPolicy  aof.SyncPolicy
	autoCompaction bool

	minFileSizeThreshold int64
	maxFileSizeThreshold int64
	maxTimeThreshold     time.Duration
	compactionInterval   time.Duration

	enableSnapshots        bool
	snapshotDir            string
	snapshotRetentionCount int
	snapshotRetentionAge   time.Duration
	snapshotCompression    bool

	recoveryStrategy recovery.Strategy
	repairMode       aof.RepairMode

	maxConnections       int
	maxConnectionsPerIP  int
	idleTimeout          time.Duration
	readTimeout          time.Duration
	writeTimeout         time.Duration

	registry *prometheus.Registry
	logger   *zap.Logger
}

// Option configures a StorageEngine at construction time.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		backend:                BackendMemory,
		numShards:              nextPowerOfTwoConfig(2 * runtime.GOMAXPROCS(0)),
		enableMetrics:          false,
		slowOperationThreshold: 10 * time.Millisecond,

		aofPath:        "zumic.aof",
		aofSyncPolicy:  aof.SyncEverySec,
		autoCompaction: true,

		minFileSizeThreshold: 4 << 20,
		maxFileSizeThreshold: 64 << 20,
		maxTimeThreshold:     time.Hour,
		compactionInterval:   30 * time.Second,

		enableSnapshots:        true,
		snapshotDir:            "snapshots",
		snapshotRetentionCount: 5,
		snapshotCompression:    false,

		recoveryStrategy: recovery.Auto,
		repairMode:       aof.RepairSkip,

		maxConnections:      10000,
		maxConnectionsPerIP: 1000,
		idleTimeout:         5 * time.Minute,
		readTimeout:         30 * time.Second,
		writeTimeout:        30 * time.Second,

		logger: zap.NewNop(),
	}
}

func nextPowerOfTwoConfig(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// WithBackend selects the storage backend.
func WithBackend(b BackendKind) Option { return func(c *Config) { c.backend = b } }

// WithNumShards overrides the shard count (default 2x hardware
// concurrency).
func WithNumShards(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.numShards = n
		}
	}
}

// WithMetrics enables per-shard Prometheus counters on reg.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *Config) {
		c.enableMetrics = true
		c.registry = reg
	}
}

// WithLogger plugs an external zap.Logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSlowOperationThreshold sets the duration above which an operation is
// logged and counted as slow.
func WithSlowOperationThreshold(d time.Duration) Option {
	return func(c *Config) { c.slowOperationThreshold = d }
}

// WithAOFPath sets the append-only log file path (persistent/cluster
// backends only).
func WithAOFPath(path string) Option { return func(c *Config) { c.aofPath = path } }

// WithAOFSyncPolicy selects Always/EverySec/No fsync behavior.
func WithAOFSyncPolicy(p aof.SyncPolicy) Option {
	return func(c *Config) { c.aofSyncPolicy = p }
}

// WithAutoCompaction toggles the background compaction worker.
func WithAutoCompaction(enabled bool) Option {
	return func(c *Config) { c.autoCompaction = enabled }
}

// WithCompactionThresholds sets the size- and time-based compaction triggers.
func WithCompactionThresholds(minSize, maxSize int64, maxTime time.Duration) Option {
	return func(c *Config) {
		c.minFileSizeThreshold = minSize
		c.maxFileSizeThreshold = maxSize
		c.maxTimeThreshold = maxTime
	}
}

// WithCompactionInterval sets how often the background worker checks
// whether compaction should run.
func WithCompactionInterval(d time.Duration) Option {
	return func(c *Config) { c.compactionInterval = d }
}

// WithSnapshots toggles snapshot writing during compaction and configures
// the snapshot directory, retention count, and gzip compression.
func WithSnapshots(enabled bool, dir string, retentionCount int, compression bool) Option {
	return func(c *Config) {
		c.enableSnapshots = enabled
		c.snapshotDir = dir
		c.snapshotRetentionCount = retentionCount
		c.snapshotCompression = compression
	}
}

// WithSnapshotRetentionAge bounds snapshot age independently of count.
func WithSnapshotRetentionAge(d time.Duration) Option {
	return func(c *Config) { c.snapshotRetentionAge = d }
}

// WithRecoveryStrategy selects AofOnly/SnapshotPlusIncremental/Auto.
func WithRecoveryStrategy(s recovery.Strategy) Option {
	return func(c *Config) { c.recoveryStrategy = s }
}

// WithRepairMode selects Skip/Strict/Recover for AOF replay.
func WithRepairMode(m aof.RepairMode) Option {
	return func(c *Config) { c.repairMode = m }
}

// WithConnectionLimits bounds total and per-IP open connections (consumed
// by the network collaborator, not this package, but threaded through so a
// single Config object configures the whole stack).
func WithConnectionLimits(maxTotal, maxPerIP int) Option {
	return func(c *Config) {
		c.maxConnections = maxTotal
		c.maxConnectionsPerIP = maxPerIP
	}
}

// WithTimeouts sets idle/read/write timeouts for the network collaborator.
func WithTimeouts(idle, read, write time.Duration) Option {
	return func(c *Config) {
		c.idleTimeout = idle
		c.readTimeout = read
		c.writeTimeout = write
	}
}

func applyOptions(cfg *Config, opts []Option) error {
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.numShards <= 0 || (cfg.numShards&(cfg.numShards-1)) != 0 {
		return NewError(CodeInvalidArgs, "num_shards must be a power of two")
	}
	if cfg.backend != BackendMemory && cfg.aofPath == "" {
		return NewError(CodeInvalidArgs, "aof_path is required for persistent and cluster backends")
	}
	return nil
}
