package observe

// maxStableID is the largest ID the generator hands out before wrapping.
// Stable IDs travel through the JSON API, so they stay within the range
// that survives a float64 round-trip exactly.
const maxStableID = int64(1)<<53 - 1

// idGenerator produces monotonically increasing stable IDs for one page and
// one collector kind. Wrapping back to 1 after maxStableID is an accepted
// collision risk under extreme session longevity, not something callers
// need to defend against.
type idGenerator struct {
	last int64
}

func (g *idGenerator) next() int64 {
	if g.last >= maxStableID {
		g.last = 0
	}
	g.last++
	return g.last
}
