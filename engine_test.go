package zumic_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zumic/zumic/internal/value"

	zumic "github.com/zumic/zumic"
)

func newMemoryEngine(t *testing.T) *zumic.StorageEngine {
	t.Helper()
	e, err := zumic.New(zumic.WithBackend(zumic.BackendMemory), zumic.WithNumShards(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// Scenario A: set, get, delete a single key.
func TestSetGetDelSingleKey(t *testing.T) {
	e := newMemoryEngine(t)

	require.NoError(t, e.Set("foo", value.FromBytes([]byte("bar"))))

	v, ok := e.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v.Str.String())

	removed, err := e.Del("foo")
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok = e.Get("foo")
	assert.False(t, ok)

	removed, err = e.Del("foo")
	require.NoError(t, err)
	assert.False(t, removed)
}

// Scenario B: rename an existing key, and rename a non-existing key fails.
func TestRenameExistingAndMissing(t *testing.T) {
	e := newMemoryEngine(t)
	require.NoError(t, e.Set("src", value.FromInt(42)))

	require.NoError(t, e.Rename("src", "dst"))
	_, ok := e.Get("src")
	assert.False(t, ok)
	v, ok := e.Get("dst")
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int)

	err := e.Rename("does-not-exist", "dst2")
	require.Error(t, err)
	storageErr, ok := err.(*zumic.StorageError)
	require.True(t, ok)
	assert.Equal(t, zumic.CodeNotFound, storageErr.Code)
}

// Scenario C: RenameNX refuses to overwrite an existing destination.
func TestRenameNXCollision(t *testing.T) {
	e := newMemoryEngine(t)
	require.NoError(t, e.Set("a", value.FromInt(1)))
	require.NoError(t, e.Set("b", value.FromInt(2)))

	moved, err := e.RenameNX("a", "b")
	require.NoError(t, err)
	assert.False(t, moved)

	v, ok := e.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.Int)
	v, ok = e.Get("b")
	require.True(t, ok)
	assert.Equal(t, int64(2), v.Int)

	moved, err = e.RenameNX("a", "c")
	require.NoError(t, err)
	assert.True(t, moved)
	_, ok = e.Get("a")
	assert.False(t, ok)
}

func TestMSetMGetPreservesOrderAndMissing(t *testing.T) {
	e := newMemoryEngine(t)
	require.NoError(t, e.MSet(map[string]value.Value{
		"k1": value.FromInt(1),
		"k2": value.FromInt(2),
	}))

	got := e.MGet([]string{"k2", "missing", "k1"})
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].Int)
	assert.Equal(t, value.KindNull, got[1].Kind)
	assert.Equal(t, int64(1), got[2].Int)
}

func TestFlushDBRemovesAllKeys(t *testing.T) {
	e := newMemoryEngine(t)
	require.NoError(t, e.MSet(map[string]value.Value{
		"a": value.FromInt(1), "b": value.FromInt(2), "c": value.FromInt(3),
	}))
	require.NoError(t, e.FlushDB())
	assert.Empty(t, e.Keys("*"))
}

func TestKeysMatchesGlobPattern(t *testing.T) {
	e := newMemoryEngine(t)
	require.NoError(t, e.MSet(map[string]value.Value{
		"user:1": value.FromInt(1), "user:2": value.FromInt(2), "order:1": value.FromInt(3),
	}))
	got := e.Keys("user:*")
	assert.ElementsMatch(t, []string{"user:1", "user:2"}, got)
}

func TestRouteSlotRequiresClusterBackend(t *testing.T) {
	e := newMemoryEngine(t)
	_, err := e.RouteSlot(0)
	require.Error(t, err)
	storageErr, ok := err.(*zumic.StorageError)
	require.True(t, ok)
	assert.Equal(t, zumic.CodeInvalidOperation, storageErr.Code)
}

// Persistent backend: a restart replays the AOF and recovers prior state.
func TestPersistentBackendSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	aofPath := filepath.Join(dir, "current.aof")
	snapDir := filepath.Join(dir, "snapshots")

	e1, err := zumic.New(
		zumic.WithBackend(zumic.BackendPersistent),
		zumic.WithAOFPath(aofPath),
		zumic.WithSnapshots(true, snapDir, 5, false),
		zumic.WithAutoCompaction(false),
	)
	require.NoError(t, err)
	require.NoError(t, e1.Set("alpha", value.FromBytes([]byte("one"))))
	require.NoError(t, e1.Set("beta", value.FromBytes([]byte("two"))))
	_, err = e1.Del("beta")
	require.NoError(t, err)
	require.NoError(t, e1.Close())

	e2, err := zumic.New(
		zumic.WithBackend(zumic.BackendPersistent),
		zumic.WithAOFPath(aofPath),
		zumic.WithSnapshots(true, snapDir, 5, false),
		zumic.WithAutoCompaction(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e2.Close() })

	v, ok := e2.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "one", v.Str.String())

	_, ok = e2.Get("beta")
	assert.False(t, ok)
}

// A write issued after compaction rewrites the AOF (by atomic rename) must
// still survive a restart: the engine's AOF writer has to follow the
// rewrite onto the new inode, not keep appending to the unlinked old one.
func TestWriteAfterCompactionSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	aofPath := filepath.Join(dir, "current.aof")
	snapDir := filepath.Join(dir, "snapshots")

	e1, err := zumic.New(
		zumic.WithBackend(zumic.BackendPersistent),
		zumic.WithAOFPath(aofPath),
		zumic.WithSnapshots(true, snapDir, 5, false),
		zumic.WithAutoCompaction(false),
	)
	require.NoError(t, err)
	require.NoError(t, e1.Set("alpha", value.FromBytes([]byte("one"))))

	require.NoError(t, e1.TriggerCompaction(context.Background()))

	// Written against the rewritten AOF file; must not land in the
	// rename-replaced, now-unlinked old inode.
	require.NoError(t, e1.Set("gamma", value.FromBytes([]byte("three"))))
	require.NoError(t, e1.Close())

	e2, err := zumic.New(
		zumic.WithBackend(zumic.BackendPersistent),
		zumic.WithAOFPath(aofPath),
		zumic.WithSnapshots(true, snapDir, 5, false),
		zumic.WithAutoCompaction(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e2.Close() })

	v, ok := e2.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "one", v.Str.String())

	v, ok = e2.Get("gamma")
	require.True(t, ok, "write issued after compaction must survive restart")
	assert.Equal(t, "three", v.Str.String())
}
