package machine

import "math"

// Counter tracks retired instructions against a budget. Instruction counts
// accumulate locally in the dispatch loop and are flushed into the
// persisted total only at suspension points (syscall, segment change,
// fault, or Simulate's return), so a straight-line block costs one counter
// update instead of one per instruction.
type Counter struct {
	executed uint64 // persisted total across all calls
	limit    uint64 // absolute cap for the current window
	local    uint64 // accumulated since the last flush
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// beginWindow computes this call's absolute instruction limit from the
// persisted total plus the requested budget, saturating instead of
// wrapping.
func (c *Counter) beginWindow(maxInstructions uint64) {
	c.limit = saturatingAdd(c.executed, maxInstructions)
	c.local = 0
}

// Add bumps the local accumulator by k, saturating.
func (c *Counter) Add(k uint64) {
	c.local = saturatingAdd(c.local, k)
}

// Overflowed reports whether the accumulated count (persisted + local) has
// reached the current window's limit.
func (c *Counter) Overflowed() bool {
	return saturatingAdd(c.executed, c.local) >= c.limit
}

// Remaining reports how many more instructions may run before Overflowed
// would become true, saturating at 0.
func (c *Counter) Remaining() uint64 {
	exec := saturatingAdd(c.executed, c.local)
	if exec >= c.limit {
		return 0
	}
	return c.limit - exec
}

// Flush folds the local accumulator into the persisted total.
func (c *Counter) Flush() {
	c.executed = saturatingAdd(c.executed, c.local)
	c.local = 0
}

// Executed returns the total instructions retired so far, including any
// not-yet-flushed local accumulation.
func (c *Counter) Executed() uint64 {
	return saturatingAdd(c.executed, c.local)
}

// SetMaxInstructions overrides the absolute limit for the remainder of the
// current call. A syscall handler calls this with the current Executed()
// value to force the dispatch loop to exit at its next suspension point.
func (c *Counter) SetMaxInstructions(n uint64) {
	c.limit = n
}
