package slotmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotForIsAlwaysInRange(t *testing.T) {
	for _, k := range []string{"a", "hello", "{user1000}.foo", "", "z"} {
		s := SlotFor([]byte(k))
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, SlotCount)
	}
}

func TestKeysSharingHashTagRouteToSameSlot(t *testing.T) {
	a := SlotFor([]byte("{user1000}.following"))
	b := SlotFor([]byte("{user1000}.followers"))
	assert.Equal(t, a, b)
}

func TestHashTagWithoutClosingBraceIsIgnored(t *testing.T) {
	a := SlotFor([]byte("foo{bar"))
	b := int(crc16XModem([]byte("foo{bar")) % SlotCount)
	assert.Equal(t, b, a) // the whole key is hashed, as for a key with no tag
}

func TestMigrationScenarioF(t *testing.T) {
	m := NewManager(4)
	m.AssignAll(4)
	vBefore := m.Version()

	require.NoError(t, m.StartMigration(100, 1))
	shard, err := m.Route(100)
	require.NoError(t, err)
	assert.Equal(t, 0, shard) // still routes to "from" (slot 100 % 4 == 0)

	vMid := m.Version()
	assert.Greater(t, vMid, vBefore)

	require.NoError(t, m.CompleteMigration(100))
	shard, err = m.Route(100)
	require.NoError(t, err)
	assert.Equal(t, 1, shard)

	vAfter := m.Version()
	assert.Greater(t, vAfter, vMid)
}

func TestOnlyOneMigrationTaskPerSlot(t *testing.T) {
	m := NewManager(4)
	m.AssignAll(4)
	require.NoError(t, m.StartMigration(5, 2))
	assert.Error(t, m.StartMigration(5, 3))
}

func TestRollbackRestoresOriginalOwner(t *testing.T) {
	m := NewManager(4)
	m.AssignAll(4)
	owner, _ := m.Route(7)

	require.NoError(t, m.StartMigration(7, (owner+1)%4))
	require.NoError(t, m.RollbackMigration(7))

	after, err := m.Route(7)
	require.NoError(t, err)
	assert.Equal(t, owner, after)
}

func TestConsistentHashRingRoutesDeterministically(t *testing.T) {
	ring := NewConsistentHashRing(64)
	for i := 0; i < 4; i++ {
		ring.AddShard(i)
	}
	s1, ok := ring.Route([]byte("some-key"))
	require.True(t, ok)
	s2, ok := ring.Route([]byte("some-key"))
	require.True(t, ok)
	assert.Equal(t, s1, s2)
}

func TestConsistentHashRingDistributesAcrossShards(t *testing.T) {
	ring := NewConsistentHashRing(128)
	for i := 0; i < 4; i++ {
		ring.AddShard(i)
	}
	counts := map[int]int{}
	for i := 0; i < 2000; i++ {
		shard, ok := ring.Route([]byte{byte(i), byte(i >> 8)})
		require.True(t, ok)
		counts[shard]++
	}
	assert.Len(t, counts, 4)
}

func TestPlanRebalancePrefersHotSlotsFromOverloadedShards(t *testing.T) {
	loads := []ShardLoad{
		{Shard: 0, Ops: 1000},
		{Shard: 1, Ops: 10},
		{Shard: 2, Ops: 10},
		{Shard: 3, Ops: 10},
	}
	slotOwners := map[int]int{1: 0, 2: 0, 3: 1}
	hotSlots := map[int]uint64{2: 500}

	plan := PlanRebalance(loads, slotOwners, hotSlots)
	require.NotEmpty(t, plan)
	assert.Equal(t, 2, plan[0].Slot) // hot slot sorts first
	assert.True(t, plan[0].Hot)
	assert.Equal(t, 0, plan[0].From)
	assert.NotEqual(t, 0, plan[0].To)
}

func TestPlanRebalanceEmptyWhenBalanced(t *testing.T) {
	loads := []ShardLoad{{Shard: 0, Ops: 100}, {Shard: 1, Ops: 100}}
	plan := PlanRebalance(loads, map[int]int{}, nil)
	assert.Empty(t, plan)
}

// RecordOperation feeds the hot-path atomics that ShardLoads/StableSlotOwners/
// HotSlots aggregate into Manager.PlanRebalance's input, closing the loop
// between real traffic and rebalance planning.
func TestRecordOperationFeedsPlanRebalance(t *testing.T) {
	m := NewManager(4)
	m.AssignAll(4)

	shard0Slot := -1
	for slot := 0; slot < SlotCount; slot++ {
		if slot%4 == 0 {
			shard0Slot = slot
			break
		}
	}
	require.GreaterOrEqual(t, shard0Slot, 0)

	for i := 0; i < HotKeyThreshold+50; i++ {
		m.RecordOperation(0)
		if _, err := m.Route(shard0Slot); err != nil {
			t.Fatalf("route: %v", err)
		}
	}
	// Light, non-hot traffic on the other shards.
	m.RecordOperation(1)
	m.RecordOperation(2)
	m.RecordOperation(3)

	loads := m.ShardLoads()
	require.Len(t, loads, 4)
	assert.Equal(t, uint64(HotKeyThreshold+50), loads[0].Ops)

	owners := m.StableSlotOwners()
	assert.Equal(t, 0, owners[shard0Slot])

	hot := m.HotSlots()
	assert.Contains(t, hot, shard0Slot)

	plan := m.PlanRebalance()
	require.NotEmpty(t, plan)
	assert.Equal(t, shard0Slot, plan[0].Slot)
	assert.True(t, plan[0].Hot)
}
