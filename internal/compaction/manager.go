package compaction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zumic/zumic/internal/aof"
	"github.com/zumic/zumic/internal/layout"
)

// TriggerConfig holds the thresholds that decide when a compaction runs.
type TriggerConfig struct {
	MinFileSizeThreshold int64
	MaxFileSizeThreshold int64
	MaxTimeThreshold     time.Duration
}

// RetentionPolicy bounds snapshot directory growth.
type RetentionPolicy struct {
	MaxAge   time.Duration
	MaxCount int
	MaxBytes int64
}

// SourceFunc produces a point-in-time snapshot of every live key by
// iterating shards under read locks, one shard at a time. It is supplied by the storage engine, which alone knows how to walk
// its ShardedIndex.
type SourceFunc func() []SnapshotEntry

// Metrics is an exponential-moving-average tracker for compaction outcomes.
type Metrics struct {
	mu                 sync.Mutex
	Count              uint64
	TotalDuration      time.Duration
	SizeReductionEMA   float64
	CompressedCount    uint64
	emaInitialized     bool
}

const emaAlpha = 0.2

func (m *Metrics) record(d time.Duration, sizeBefore, sizeAfter int64, compressed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Count++
	m.TotalDuration += d
	if compressed {
		m.CompressedCount++
	}
	if sizeBefore > 0 {
		ratio := 1.0 - float64(sizeAfter)/float64(sizeBefore)
		if !m.emaInitialized {
			m.SizeReductionEMA = ratio
			m.emaInitialized = true
		} else {
			m.SizeReductionEMA = emaAlpha*ratio + (1-emaAlpha)*m.SizeReductionEMA
		}
	}
}

// Snapshot returns a copy of the current metrics.
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		Count:            m.Count,
		TotalDuration:    m.TotalDuration,
		SizeReductionEMA: m.SizeReductionEMA,
		CompressedCount:  m.CompressedCount,
	}
}

// Manager runs compaction on demand or on a background schedule, owning a
// single errgroup-coordinated worker goroutine for the periodic path.
type Manager struct {
	aofPath      string
	snapshotDir  string
	trigger      TriggerConfig
	retention    RetentionPolicy
	snapshots    bool
	gzip         bool
	source       SourceFunc
	logger       *zap.Logger
	metrics      Metrics

	mu              sync.Mutex
	lastCompaction  time.Time
	onRotate        func() error
}

// SetOnRotate registers a callback invoked after rewriteAOF installs a new
// inode at aofPath. rewriteAOF replaces the file by rename, which never
// affects a file descriptor already open against the old inode, so any
// writer holding the file open for append must be closed and reopened
// against the fresh path or its subsequent writes land in an unlinked file
// that recovery will never see. Passing nil disables the callback.
func (m *Manager) SetOnRotate(fn func() error) {
	m.mu.Lock()
	m.onRotate = fn
	m.mu.Unlock()
}

// NewManager constructs a Manager. source must be supplied; it is the only
// way the manager learns the engine's live state.
func NewManager(aofPath, snapshotDir string, trigger TriggerConfig, retention RetentionPolicy, enableSnapshots, gzipCompress bool, source SourceFunc, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		aofPath:     aofPath,
		snapshotDir: snapshotDir,
		trigger:     trigger,
		retention:   retention,
		snapshots:   enableSnapshots,
		gzip:        gzipCompress,
		source:      source,
		logger:      logger.Named("compaction"),
	}
}

// ShouldCompact evaluates the configured trigger conditions against the
// current AOF file size.
func (m *Manager) ShouldCompact() bool {
	fi, err := os.Stat(m.aofPath)
	if err != nil {
		return false
	}
	size := fi.Size()

	if m.trigger.MaxFileSizeThreshold > 0 && size >= m.trigger.MaxFileSizeThreshold {
		return true
	}

	m.mu.Lock()
	last := m.lastCompaction
	m.mu.Unlock()

	if m.trigger.MinFileSizeThreshold > 0 && size >= m.trigger.MinFileSizeThreshold {
		if last.IsZero() || time.Since(last) >= m.trigger.MaxTimeThreshold {
			return true
		}
	}
	return false
}

// Compact snapshots live data, writes a compact AOF, updates metrics, and
// applies the retention policy.
func (m *Manager) Compact(ctx context.Context) error {
	start := time.Now()

	sizeBefore := int64(0)
	if fi, err := os.Stat(m.aofPath); err == nil {
		sizeBefore = fi.Size()
	}

	entries := m.source()

	if m.snapshots {
		ts := uint64(start.Unix())
		path, err := WriteSnapshot(m.snapshotDir, ts, entries, m.gzip)
		if err != nil {
			return fmt.Errorf("compaction: writing snapshot: %w", err)
		}
		m.logger.Info("wrote snapshot", zap.String("path", path), zap.Int("keys", len(entries)))
	}

	if err := rewriteAOF(m.aofPath, entries); err != nil {
		return fmt.Errorf("compaction: rewriting aof: %w", err)
	}

	m.mu.Lock()
	onRotate := m.onRotate
	m.mu.Unlock()
	if onRotate != nil {
		if err := onRotate(); err != nil {
			return fmt.Errorf("compaction: reopening aof writer: %w", err)
		}
	}

	sizeAfter := int64(0)
	if fi, err := os.Stat(m.aofPath); err == nil {
		sizeAfter = fi.Size()
	}

	m.metrics.record(time.Since(start), sizeBefore, sizeAfter, m.gzip)
	m.logger.Info("compaction finished",
		zap.String("aof_before", humanize.Bytes(uint64(sizeBefore))),
		zap.String("aof_after", humanize.Bytes(uint64(sizeAfter))),
		zap.Duration("took", time.Since(start)),
	)

	m.mu.Lock()
	m.lastCompaction = start
	m.mu.Unlock()

	if err := m.applyRetention(); err != nil {
		m.logger.Warn("retention policy failed", zap.Error(err))
	}
	return nil
}

// rewriteAOF writes a compact AOF containing one SET record per live entry
// to a temp file, fsyncs, then installs it atomically.
func rewriteAOF(aofPath string, entries []SnapshotEntry) error {
	dir := filepath.Dir(aofPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("compaction: creating aof dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "aof-rewrite-*.tmp")
	if err != nil {
		return fmt.Errorf("compaction: creating temp aof: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := aof.WriteHeader(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("compaction: writing aof header: %w", err)
	}
	for _, e := range entries {
		rec := aof.Record{Op: aof.OpSet, Key: e.Key, Val: e.Val}
		if _, err := tmp.Write(aof.Encode(rec)); err != nil {
			tmp.Close()
			return fmt.Errorf("compaction: writing compacted record: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("compaction: fsync temp aof: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("compaction: closing temp aof: %w", err)
	}
	return installFile(tmpPath, aofPath)
}

// applyRetention deletes snapshots beyond the configured policy.
func (m *Manager) applyRetention() error {
	refs, err := layout.ListSnapshots(m.snapshotDir)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}

	// Oldest first; refs is already sorted ascending by timestamp.
	now := time.Now()
	var kept []layout.SnapshotRef
	var totalBytes int64
	for _, r := range refs {
		age := now.Sub(time.Unix(int64(r.UnixSecs), 0))
		if m.retention.MaxAge > 0 && age > m.retention.MaxAge {
			m.removeSnapshot(r)
			continue
		}
		if fi, err := os.Stat(r.Path); err == nil {
			totalBytes += fi.Size()
		}
		kept = append(kept, r)
	}

	if m.retention.MaxCount > 0 {
		for len(kept) > m.retention.MaxCount {
			m.removeSnapshot(kept[0])
			kept = kept[1:]
		}
	}

	if m.retention.MaxBytes > 0 {
		for totalBytes > m.retention.MaxBytes && len(kept) > 0 {
			victim := kept[0]
			if fi, err := os.Stat(victim.Path); err == nil {
				totalBytes -= fi.Size()
			}
			m.removeSnapshot(victim)
			kept = kept[1:]
		}
	}
	return nil
}

func (m *Manager) removeSnapshot(r layout.SnapshotRef) {
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed removing expired snapshot", zap.String("path", r.Path), zap.Error(err))
	}
}

// Run drives periodic compaction on a ticker until ctx is cancelled, as the
// one background worker goroutine StorageEngine starts under its errgroup.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				if m.ShouldCompact() {
					if err := m.Compact(ctx); err != nil {
						m.logger.Error("compaction failed, will retry next tick", zap.Error(err))
					}
				}
			}
		}
	})
	return g.Wait()
}
