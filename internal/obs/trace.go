package obs

import (
	"cmp"
	"strconv"
	"sync/atomic"

	"tradecore/internal/clock"
)

// TraceGenerator stamps WAL records with ids that strictly increase within a
// process. Seeding from the clock keeps ids from repeating across restarts.
type TraceGenerator struct {
	last atomic.Uint64
}

// NewTraceGenerator starts after seed, or after the current clock reading when
// seed is zero.
func NewTraceGenerator(seed uint64) *TraceGenerator {
	g := &TraceGenerator{}
	g.last.Store(cmp.Or(seed, uint64(clock.Now())))
	return g
}

// Next returns 0 on a nil generator so recording works without tracing.
func (g *TraceGenerator) Next() uint64 {
	if g == nil {
		return 0
	}
	return g.last.Add(1)
}

// FormatTrace renders an id as sixteen hex digits.
func FormatTrace(id uint64) string {
	const digits = "0000000000000000"
	s := strconv.FormatUint(id, 16)
	return digits[:len(digits)-len(s)] + s
}
