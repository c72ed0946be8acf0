// Package shuffle produces uniformly random orderings.
package shuffle

import (
	"math/rand/v2"
)

// Source is the random source used by Shuffle. *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Shuffle returns a new slice holding the elements of in, in a uniformly
// random order. in is not modified.
func Shuffle[T any](in []T) []T {
	return ShuffleWith(globalSource{}, in)
}

// ShuffleWith is Shuffle with an explicit random source.
func ShuffleWith[T any](src Source, in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	// Fisher-Yates
	for i := len(out) - 1; i > 0; i-- {
		j := src.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
