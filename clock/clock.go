// Package clock implements a Lamport logical clock, used by a branch
// overlay to tie-break writes that land within the same millisecond of
// wall-clock time.
package clock

import "sync"

// LogicalClock is a monotonically increasing counter, safe for concurrent
// use.
type LogicalClock struct {
	time uint64
	mu   sync.Mutex
}

// NewLogicalClock starts a clock at zero.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{
		time: 0,
	}
}

// Tick advances the clock by one and returns the new value.
func (lc *LogicalClock) Tick() uint64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.time++
	return lc.time
}

// Time returns the clock's current value without advancing it, used to
// snapshot a clock so another clock can be seeded past it.
func (lc *LogicalClock) Time() uint64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.time
}

// Update merges in a tick observed elsewhere (the standard Lamport-clock
// receive rule): the clock jumps to one past remoteTime when remoteTime has
// caught up or passed it, otherwise it just ticks normally. Used when a
// branch overlay forks from a parent that has already ticked past the
// child's starting value, so Seq stays causally ordered across branches.
func (lc *LogicalClock) Update(remoteTime uint64) uint64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if remoteTime >= lc.time {
		lc.time = remoteTime + 1
	} else {
		lc.time++
	}
	return lc.time
}

// CompareClocks orders two Seq values taken from LogicalClock.Tick, used to
// sort blocks by write order when wall-clock milliseconds tie.
func CompareClocks(a, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
