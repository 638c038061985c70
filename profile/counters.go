package profile

// EventCounters is a fixed-width vector of monotonically increasing
// per-PC event counters.
type EventCounters [MaxEvents]uint64

// Add accumulates count into slot i. i is assumed to be in [0, MaxEvents);
// callers outside the package go through FlowTracker.Record, which clamps.
func (c *EventCounters) Add(i int, count uint64) {
	c[i] += count
}

// Sum returns the total across all tracked PCs for event index i, computed
// by walking the PCTable — a small helper for tests that want to recompute
// the global accumulator independently, as a cross-check that every
// counter increment on a PC was mirrored into it.
func Sum(table *PCTable, i int) uint64 {
	var total uint64
	table.Range(func(rec *PCRecord) {
		total += rec.Events[i]
	})
	return total
}
