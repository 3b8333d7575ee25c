// Package picker provides the selection policies used to choose the next
// video of a brew cycle.
package picker

import (
	"math/rand/v2"
	"slices"
	"sync"

	"hipsterbar/internal/bar"
)

// Random picks uniformly among the candidates.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a picker seeded from the runtime's entropy source.
func NewRandom() *Random {
	return &Random{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeeded returns a reproducible picker.
func NewSeeded(seed1, seed2 uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

func (r *Random) PickNext(candidates []bar.Ingredient) (bar.Ingredient, bool) {
	if len(candidates) == 0 {
		return bar.Ingredient{}, false
	}
	r.mu.Lock()
	i := r.rng.IntN(len(candidates))
	r.mu.Unlock()
	return candidates[i], true
}

// Oldest picks the earliest submitted candidate. Handy for demos and
// deterministic tests.
type Oldest struct{}

func (Oldest) PickNext(candidates []bar.Ingredient) (bar.Ingredient, bool) {
	if len(candidates) == 0 {
		return bar.Ingredient{}, false
	}
	return slices.MinFunc(candidates, func(a, b bar.Ingredient) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	}), true
}

// ByName returns the picker registered under name, or false.
func ByName(name string) (bar.CandidatePicker, bool) {
	switch name {
	case "", "random":
		return NewRandom(), true
	case "oldest":
		return Oldest{}, true
	}
	return nil, false
}
