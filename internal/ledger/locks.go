package ledger

import "sync"

const lockShards = 64

// slotLocks serializes ledger operations at slot granularity.
// Operations on different slots proceed independently (modulo shard
// collisions); two operations touching the same slot never interleave
// their read-modify-write of occupancy and availability.
type slotLocks struct {
	shards [lockShards]sync.Mutex
}

func (l *slotLocks) lock(slotID int64) func() {
	m := &l.shards[uint64(slotID)%lockShards]
	m.Lock()
	return m.Unlock
}
