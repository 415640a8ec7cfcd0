package domain

import "math/rand/v2"

// IntN returns a uniform random int in [0, n). math/rand/v2's IntN and
// (*rand.Rand).IntN both satisfy it.
type IntN func(n int) int

// Shuffle returns a uniformly random permutation of in. The input slice is
// left untouched. A nil intn uses the global math/rand/v2 source.
func Shuffle[T any](in []T, intn IntN) []T {
	if intn == nil {
		intn = rand.IntN
	}
	out := make([]T, len(in))
	copy(out, in)
	for i := len(out) - 1; i > 0; i-- {
		j := intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
