package slotmanager

import "sort"

// RebalanceThreshold and friends bound how aggressively rebalancing reacts
// to load skew across shards.
const (
	RebalanceThreshold = 1.5
	MigrationBatchSize = 64
	HotKeyThreshold    = 100
)

// ShardLoad is one shard's aggregated operation count, as produced either by
// a periodic aggregator or read directly from the hot-path atomics.
type ShardLoad struct {
	Shard int
	Ops   uint64
}

// PlannedMigration is one proposed slot move produced by PlanRebalance.
type PlannedMigration struct {
	Slot int
	From int
	To   int
	Hot  bool
}

// PlanRebalance classifies shards as overloaded/underloaded relative to the
// average load and proposes up to MigrationBatchSize slot migrations from
// overloaded to underloaded shards, preferring hot slots.
//
// loads gives per-shard aggregated ops; slotOwners maps slot id to its
// current owning shard (Stable slots only — in-flight migrations are
// skipped); hotSlots lists slots whose access count exceeds
// HotKeyThreshold.
func PlanRebalance(loads []ShardLoad, slotOwners map[int]int, hotSlots map[int]uint64) []PlannedMigration {
	if len(loads) == 0 {
		return nil
	}

	var total uint64
	for _, l := range loads {
		total += l.Ops
	}
	avg := float64(total) / float64(len(loads))
	if avg == 0 {
		return nil
	}

	overloaded := map[int]bool{}
	underloaded := []int{}
	for _, l := range loads {
		switch {
		case float64(l.Ops) > avg*RebalanceThreshold:
			overloaded[l.Shard] = true
		case float64(l.Ops) < avg/RebalanceThreshold:
			underloaded = append(underloaded, l.Shard)
		}
	}
	if len(overloaded) == 0 || len(underloaded) == 0 {
		return nil
	}
	sort.Ints(underloaded)

	// Candidate slots: those owned by an overloaded shard. Hot slots sort
	// first so the plan prioritizes relieving the busiest keys.
	type candidate struct {
		slot int
		from int
		hot  bool
	}
	var candidates []candidate
	for slot, owner := range slotOwners {
		if overloaded[owner] {
			_, hot := hotSlots[slot]
			candidates = append(candidates, candidate{slot: slot, from: owner, hot: hot})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hot != candidates[j].hot {
			return candidates[i].hot // hot first
		}
		return candidates[i].slot < candidates[j].slot
	})

	var plan []PlannedMigration
	u := 0
	for _, c := range candidates {
		if len(plan) >= MigrationBatchSize {
			break
		}
		to := underloaded[u%len(underloaded)]
		u++
		plan = append(plan, PlannedMigration{Slot: c.slot, From: c.from, To: to, Hot: c.hot})
	}
	return plan
}
