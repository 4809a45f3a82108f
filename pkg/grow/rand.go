package grow

import "cogentcore.org/core/base/randx"

// Source is the seeded random stream threaded through every growth
// call. Growth never consults the global generator, so the same seed
// and the same sequence of calls reproduce the same tree.
type Source = randx.Rand

// NewSource returns a Source seeded with seed.
func NewSource(seed int64) Source {
	return randx.NewSysRand(seed)
}

// uniform returns a value in [lo, hi).
func uniform(r Source, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}

// between returns an integer in [lo, hi].
func between(r Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo+1)
}
