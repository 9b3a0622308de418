package slotmanager

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// SlotState is the migration state machine for a single slot:
//
//	Stable(s) --start_slot_migration(s->t)--> Migrating{from:s,to:t}
//	Migrating --complete--> Stable(t)
//	Migrating --rollback--> Stable(s)
type SlotState uint8

const (
	StateStable SlotState = iota
	StateMigrating
	StateImporting
)

func (s SlotState) String() string {
	switch s {
	case StateStable:
		return "Stable"
	case StateMigrating:
		return "Migrating"
	case StateImporting:
		return "Importing"
	default:
		return "Unknown"
	}
}

// MigrationTask describes the single migration allowed to be in flight for
// a slot at any time.
type MigrationTask struct {
	Slot     int
	From     int
	To       int
	Progress float64 // 0..1
}

// slotEntry is the per-slot state kept under the manager's lock.
type slotEntry struct {
	state SlotState
	owner int // shard id owning the slot in Stable state
	task  *MigrationTask
}

// Manager owns the slot state vector, the monotone slot_map_version
// counter, and per-shard/per-slot hot-path atomics.
type Manager struct {
	mu      sync.RWMutex
	slots   [SlotCount]slotEntry
	version atomic.Uint64

	shardOps    []atomic.Uint64
	slotAccess  [SlotCount]atomic.Uint64

	ring *ConsistentHashRing
}

// NewManager constructs a Manager with every slot initially Stable and
// owned by shard 0; callers typically call AssignAll immediately after to
// distribute slots across the real shard count.
func NewManager(shardCount int) *Manager {
	m := &Manager{
		shardOps: make([]atomic.Uint64, shardCount),
		ring:     NewConsistentHashRing(defaultVirtualNodes),
	}
	for i := 0; i < shardCount; i++ {
		m.ring.AddShard(i)
	}
	return m
}

// AssignAll evenly distributes the 16384 slots across shardCount shards,
// slot i owned by shard i % shardCount.
func (m *Manager) AssignAll(shardCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < SlotCount; i++ {
		m.slots[i] = slotEntry{state: StateStable, owner: i % shardCount}
	}
	m.version.Add(1)
}

// Route resolves the shard id a query for slot should hit right now,
// applying the redirect rule: Stable(s) -> s; Migrating{from} -> from;
// Importing{to} -> to.
func (m *Manager) Route(slot int) (int, error) {
	if slot < 0 || slot >= SlotCount {
		return 0, fmt.Errorf("slotmanager: slot %d out of range", slot)
	}
	m.slotAccess[slot].Add(1)

	m.mu.RLock()
	defer m.mu.RUnlock()
	e := m.slots[slot]
	switch e.state {
	case StateStable:
		return e.owner, nil
	case StateMigrating:
		return e.task.From, nil
	case StateImporting:
		return e.task.To, nil
	default:
		return 0, fmt.Errorf("slotmanager: slot %d in unknown state", slot)
	}
}

// StartMigration begins moving slot from its current owner to shard to.
// Fails if a migration is already active for the slot.
func (m *Manager) StartMigration(slot, to int) error {
	if slot < 0 || slot >= SlotCount {
		return fmt.Errorf("slotmanager: slot %d out of range", slot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &m.slots[slot]
	if e.state != StateStable {
		return fmt.Errorf("slotmanager: slot %d already migrating", slot)
	}
	e.state = StateMigrating
	e.task = &MigrationTask{Slot: slot, From: e.owner, To: to}
	m.version.Add(1)
	return nil
}

// CompleteMigration finalizes an in-flight migration, moving ownership to
// the destination shard.
func (m *Manager) CompleteMigration(slot int) error {
	if slot < 0 || slot >= SlotCount {
		return fmt.Errorf("slotmanager: slot %d out of range", slot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &m.slots[slot]
	if e.state != StateMigrating || e.task == nil {
		return fmt.Errorf("slotmanager: no active migration for slot %d", slot)
	}
	e.owner = e.task.To
	e.state = StateStable
	e.task = nil
	m.version.Add(1)
	return nil
}

// RollbackMigration aborts an in-flight migration, restoring the slot to
// Stable at its original owner.
func (m *Manager) RollbackMigration(slot int) error {
	if slot < 0 || slot >= SlotCount {
		return fmt.Errorf("slotmanager: slot %d out of range", slot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &m.slots[slot]
	if e.state != StateMigrating || e.task == nil {
		return fmt.Errorf("slotmanager: no active migration for slot %d", slot)
	}
	e.state = StateStable
	e.task = nil
	m.version.Add(1)
	return nil
}

// Version returns the current slot_map_version.
func (m *Manager) Version() uint64 {
	return m.version.Load()
}

// RecordOperation bumps the hot-path atomic op counter for shard; ShardLoads
// reads these counters on demand, so this hot path updates only atomics,
// never the slot map lock.
func (m *Manager) RecordOperation(shard int) {
	if shard < 0 || shard >= len(m.shardOps) {
		return
	}
	m.shardOps[shard].Add(1)
}

// SlotAccessCount returns the hot-key access counter for slot.
func (m *Manager) SlotAccessCount(slot int) uint64 {
	if slot < 0 || slot >= SlotCount {
		return 0
	}
	return m.slotAccess[slot].Load()
}

// ShardLoads reads the hot-path op counters into the []ShardLoad shape
// PlanRebalance expects, the aggregation step that turns RecordOperation's
// atomics into rebalance-planning input.
func (m *Manager) ShardLoads() []ShardLoad {
	loads := make([]ShardLoad, len(m.shardOps))
	for i := range m.shardOps {
		loads[i] = ShardLoad{Shard: i, Ops: m.shardOps[i].Load()}
	}
	return loads
}

// StableSlotOwners returns the owning shard for every slot currently in
// State Stable, the slotOwners input PlanRebalance needs (in-flight
// migrations are excluded, matching PlanRebalance's contract).
func (m *Manager) StableSlotOwners() map[int]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owners := make(map[int]int, SlotCount)
	for i, e := range m.slots {
		if e.state == StateStable {
			owners[i] = e.owner
		}
	}
	return owners
}

// HotSlots returns the access count of every slot whose count exceeds
// HotKeyThreshold, the hotSlots input PlanRebalance uses to prioritize
// relieving the busiest keys first.
func (m *Manager) HotSlots() map[int]uint64 {
	hot := make(map[int]uint64)
	for slot := range m.slotAccess {
		if n := m.slotAccess[slot].Load(); n > HotKeyThreshold {
			hot[slot] = n
		}
	}
	return hot
}

// PlanRebalance aggregates the manager's own hot-path counters and proposes
// a rebalance plan from them, so callers need not assemble ShardLoads/
// StableSlotOwners/HotSlots by hand for the common case.
func (m *Manager) PlanRebalance() []PlannedMigration {
	return PlanRebalance(m.ShardLoads(), m.StableSlotOwners(), m.HotSlots())
}
