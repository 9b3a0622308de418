// Package zumic implements an in-memory key-value store with durability,
// modelled on the Redis family: a sharded in-memory index, an append-only
// log with CRC-protected records, background compaction with snapshots, and
// (for cluster deployments) a 16384-slot migration-aware router.
package zumic

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zumic/zumic/internal/aof"
	"github.com/zumic/zumic/internal/compaction"
	"github.com/zumic/zumic/internal/glob"
	"github.com/zumic/zumic/internal/logging"
	"github.com/zumic/zumic/internal/recovery"
	"github.com/zumic/zumic/internal/shardedindex"
	"github.com/zumic/zumic/internal/slotmanager"
	"github.com/zumic/zumic/internal/slowlog"
	"github.com/zumic/zumic/internal/value"
)

// StorageEngine is the façade over the storage core. It
// dispatches across backends by a tagged union, not virtual calls, the same
// discipline internal/value.Value uses for its stored data.
type StorageEngine struct {
	cfg *Config

	index *shardedindex.ShardedIndex

	// persistent/cluster only. aofMu guards aofWriter across concurrent
	// Set/Del/MSet appends and the compactor's post-rewrite reopen: rename
	// never invalidates an fd already open on the replaced inode, so every
	// append in flight when compaction installs a new AOF file must finish
	// against the old writer before it is closed, and every append issued
	// after must see the new one.
	aofMu     sync.RWMutex
	aofWriter *aof.Writer
	compactor *compaction.Manager
	recoverer *recovery.Manager

	// cluster only
	slots *slotmanager.Manager

	slowlog *slowlog.Log
	logger  *zap.Logger

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a StorageEngine per cfg's backend selection, replaying any
// existing durable state for persistent/cluster backends before returning.
func New(opts ...Option) (*StorageEngine, error) {
	cfg := defaultConfig()
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}

	logger := logging.Named(cfg.logger, "engine")

	indexOpts := []shardedindex.Option{
		shardedindex.WithLogger(logger),
		shardedindex.WithSlowThreshold(cfg.slowOperationThreshold),
	}
	if cfg.enableMetrics {
		indexOpts = append(indexOpts, shardedindex.WithMetrics(true, cfg.registry))
	}

	e := &StorageEngine{
		cfg:     cfg,
		index:   shardedindex.New(cfg.numShards, indexOpts...),
		slowlog: slowlog.New(1024),
		logger:  logger,
	}

	if cfg.backend == BackendMemory {
		return e, nil
	}

	writer, err := aof.OpenWriter(cfg.aofPath, cfg.aofSyncPolicy)
	if err != nil {
		return nil, WrapError(CodeIO, "opening aof", err)
	}
	e.aofWriter = writer

	e.compactor = compaction.NewManager(
		cfg.aofPath, cfg.snapshotDir,
		compaction.TriggerConfig{
			MinFileSizeThreshold: cfg.minFileSizeThreshold,
			MaxFileSizeThreshold: cfg.maxFileSizeThreshold,
			MaxTimeThreshold:     cfg.maxTimeThreshold,
		},
		compaction.RetentionPolicy{
			MaxCount: cfg.snapshotRetentionCount,
			MaxAge:   cfg.snapshotRetentionAge,
		},
		cfg.enableSnapshots, cfg.snapshotCompression,
		e.snapshotSource, logger,
	)
	e.compactor.SetOnRotate(e.rotateAOFWriter)

	e.recoverer = recovery.NewManager(cfg.snapshotDir, cfg.aofPath, cfg.recoveryStrategy, cfg.repairMode)
	if _, err := e.recoverer.Recover(e.applyRecoveredRecord); err != nil {
		return nil, WrapError(CodeIO, "replaying durable state", err)
	}

	if cfg.backend == BackendCluster {
		e.slots = slotmanager.NewManager(cfg.numShards)
		e.slots.AssignAll(cfg.numShards)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	e.group = g
	if cfg.autoCompaction {
		g.Go(func() error { return e.compactor.Run(gctx, cfg.compactionInterval) })
	}

	return e, nil
}

func (e *StorageEngine) snapshotSource() []compaction.SnapshotEntry {
	var entries []compaction.SnapshotEntry
	e.index.Iter(func(key string, v value.Value) {
		entries = append(entries, compaction.SnapshotEntry{
			Key: []byte(key),
			Val: encodeValueForPersistence(v),
		})
	})
	return entries
}

func (e *StorageEngine) applyRecoveredRecord(key, val []byte, del bool) error {
	if del {
		e.index.Remove(string(key))
		return nil
	}
	v, err := decodeValueFromPersistence(val)
	if err != nil {
		return err
	}
	e.index.Insert(string(key), v)
	return nil
}

// rotateAOFWriter closes the current AOF writer and reopens one against
// cfg.aofPath, the compactor's onRotate callback after rewriteAOF installs a
// fresh inode there. Held appends finish against the old writer before the
// write lock is granted, and no append started afterward can observe the
// now-unlinked file.
func (e *StorageEngine) rotateAOFWriter() error {
	newWriter, err := aof.OpenWriter(e.cfg.aofPath, e.cfg.aofSyncPolicy)
	if err != nil {
		return WrapError(CodeIO, "reopening aof after compaction", err)
	}
	e.aofMu.Lock()
	old := e.aofWriter
	e.aofWriter = newWriter
	e.aofMu.Unlock()
	if old != nil {
		return old.Close()
	}
	return nil
}

// recordSlotOp feeds a cluster-backend key access into the slot manager's
// hot-path counters (RecordOperation for the owning shard, SlotAccessCount
// via Route's own bookkeeping), the only caller that turns real traffic
// into the data PlanRebalance/ShardLoads aggregate. A no-op on non-cluster
// backends, where e.slots is nil.
func (e *StorageEngine) recordSlotOp(key string) {
	if e.slots == nil {
		return
	}
	slot := slotmanager.SlotFor([]byte(key))
	if shard, err := e.slots.Route(slot); err == nil {
		e.slots.RecordOperation(shard)
	}
}

// Set stores value under key.
func (e *StorageEngine) Set(key string, v value.Value) error {
	e.recordSlotOp(key)
	e.index.Insert(key, v)
	e.aofMu.RLock()
	defer e.aofMu.RUnlock()
	if e.aofWriter != nil {
		if err := e.aofWriter.Append(aof.Record{Op: aof.OpSet, Key: []byte(key), Val: encodeValueForPersistence(v)}); err != nil {
			return WrapError(CodeIO, "appending set record", err)
		}
	}
	return nil
}

// Get returns the value stored under key, if any. The ok result is the only
// way to distinguish a miss from a key explicitly holding value.Null(): both
// report value.KindNull in the returned Value, since value.Value carries no
// separate presence flag.
func (e *StorageEngine) Get(key string) (value.Value, bool) {
	e.recordSlotOp(key)
	return e.index.Get(key)
}

// Del removes key, reporting whether it was present.
func (e *StorageEngine) Del(key string) (bool, error) {
	e.recordSlotOp(key)
	removed := e.index.Remove(key)
	if !removed {
		return false, nil
	}
	e.aofMu.RLock()
	defer e.aofMu.RUnlock()
	if e.aofWriter != nil {
		if err := e.aofWriter.Append(aof.Record{Op: aof.OpDel, Key: []byte(key)}); err != nil {
			return removed, WrapError(CodeIO, "appending del record", err)
		}
	}
	return removed, nil
}

// MSet writes multiple keys.
func (e *StorageEngine) MSet(entries map[string]value.Value) error {
	for k := range entries {
		e.recordSlotOp(k)
	}
	e.index.MSet(entries)
	e.aofMu.RLock()
	defer e.aofMu.RUnlock()
	if e.aofWriter != nil {
		for k, v := range entries {
			if err := e.aofWriter.Append(aof.Record{Op: aof.OpSet, Key: []byte(k), Val: encodeValueForPersistence(v)}); err != nil {
				return WrapError(CodeIO, "appending mset record", err)
			}
		}
	}
	return nil
}

// MGet reads multiple keys, preserving input order. A returned entry of
// Kind value.KindNull means either key was absent or key held an explicitly
// stored Null value (see Get) — the two are indistinguishable here.
func (e *StorageEngine) MGet(keys []string) []value.Value {
	for _, k := range keys {
		e.recordSlotOp(k)
	}
	return e.index.MGet(keys)
}

// Rename moves src's value to dst, failing with NotFound if src is absent.
func (e *StorageEngine) Rename(src, dst string) error {
	v, ok := e.index.Get(src)
	if !ok {
		return ErrNotFound
	}
	if err := e.Set(dst, v); err != nil {
		return err
	}
	if _, err := e.Del(src); err != nil {
		return err
	}
	return nil
}

// RenameNX renames src to dst only if dst is absent, returning whether the
// move happened.
func (e *StorageEngine) RenameNX(src, dst string) (bool, error) {
	if _, exists := e.index.Get(dst); exists {
		return false, nil
	}
	v, ok := e.index.Get(src)
	if !ok {
		return false, ErrNotFound
	}
	if err := e.Set(dst, v); err != nil {
		return false, err
	}
	if _, err := e.Del(src); err != nil {
		return false, err
	}
	return true, nil
}

// FlushDB clears all data.
func (e *StorageEngine) FlushDB() error {
	var keys []string
	e.index.Iter(func(key string, _ value.Value) { keys = append(keys, key) })
	for _, k := range keys {
		if _, err := e.Del(k); err != nil {
			return err
		}
	}
	return nil
}

// Keys returns every key matching pattern.
func (e *StorageEngine) Keys(pattern string) []string {
	var out []string
	e.index.Iter(func(key string, _ value.Value) {
		if glob.Match(pattern, key) {
			out = append(out, key)
		}
	})
	return out
}

// SlotForKey exposes the cluster slot a key would route to; callable on any
// backend so callers can pre-route before a cluster migration.
func (e *StorageEngine) SlotForKey(key string) int {
	return slotmanager.SlotFor([]byte(key))
}

// RouteSlot resolves the shard currently serving slot (cluster backend
// only).
func (e *StorageEngine) RouteSlot(slot int) (int, error) {
	if e.slots == nil {
		return 0, NewError(CodeInvalidOperation, "slot routing requires the cluster backend")
	}
	return e.slots.Route(slot)
}

// Stats returns the sharded index's current load and slow-operation
// statistics.
func (e *StorageEngine) Stats() shardedindex.Stats {
	return e.index.Snapshot()
}

// TriggerCompaction forces an immediate compaction pass (persistent/cluster
// backends only).
func (e *StorageEngine) TriggerCompaction(ctx context.Context) error {
	if e.compactor == nil {
		return NewError(CodeInvalidOperation, "compaction requires a durable backend")
	}
	return e.compactor.Compact(ctx)
}

// Close stops background workers and releases file handles, waiting up to
// the idle timeout for the compaction worker to observe cancellation.
func (e *StorageEngine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	if e.group != nil {
		done := make(chan error, 1)
		go func() { done <- e.group.Wait() }()
		select {
		case err := <-done:
			if err != nil {
				e.logger.Warn("background worker exited with error", zap.Error(err))
			}
		case <-time.After(e.cfg.idleTimeout):
			e.logger.Warn("background workers did not shut down within idle timeout")
		}
	}
	e.aofMu.RLock()
	w := e.aofWriter
	e.aofMu.RUnlock()
	if w != nil {
		return w.Close()
	}
	return nil
}

// encodeValueForPersistence and decodeValueFromPersistence live in codec.go.
