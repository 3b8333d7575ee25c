package picker

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hipsterbar/internal/bar"
)

func candidates(n int) []bar.Ingredient {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]bar.Ingredient, n)
	for i := range out {
		out[i] = bar.Ingredient{ID: uuid.New(), VideoRef: uuid.NewString(), CreatedAt: base.Add(time.Duration(n-i) * time.Minute)}
	}
	return out
}

func TestRandomPicksFromCandidates(t *testing.T) {
	p := NewSeeded(1, 2)
	c := candidates(5)
	seen := map[uuid.UUID]bool{}
	for i := 0; i < 200; i++ {
		got, ok := p.PickNext(c)
		require.True(t, ok)
		assert.Contains(t, c, got)
		seen[got.ID] = true
	}
	assert.Len(t, seen, 5)

	_, ok := p.PickNext(nil)
	assert.False(t, ok)
}

func TestSeededIsReproducible(t *testing.T) {
	c := candidates(10)
	a, b := NewSeeded(7, 9), NewSeeded(7, 9)
	for i := 0; i < 20; i++ {
		x, _ := a.PickNext(c)
		y, _ := b.PickNext(c)
		assert.Equal(t, x.ID, y.ID)
	}
}

func TestOldest(t *testing.T) {
	c := candidates(4)
	got, ok := Oldest{}.PickNext(c)
	require.True(t, ok)
	assert.Equal(t, c[3].ID, got.ID)

	_, ok = Oldest{}.PickNext(nil)
	assert.False(t, ok)
}

func TestByName(t *testing.T) {
	for _, name := range []string{"", "random", "oldest"} {
		p, ok := ByName(name)
		assert.True(t, ok, name)
		assert.NotNil(t, p)
	}
	_, ok := ByName("psychic")
	assert.False(t, ok)
}
