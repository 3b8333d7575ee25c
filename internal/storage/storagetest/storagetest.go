// Package storagetest holds the behaviour every storage.Repository must
// share, run against each backend from its own tests.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hipsterbar/internal/bar"
	"hipsterbar/internal/storage"
)

var t0 = time.Date(2025, 3, 14, 20, 0, 0, 0, time.UTC)

// NewBar returns a fresh bar with a random valid code.
func NewBar(t testing.TB) *bar.Bar {
	t.Helper()
	const alphabet = "BCDFGHJKLMNPQRSTVWXZ0123456789"
	id := uuid.New()
	code := make([]byte, bar.CodeLength)
	for i := range code {
		code[i] = alphabet[int(id[i])%len(alphabet)]
	}
	b, err := bar.New(id, string(code), "Obscure B-sides", 3, bar.LockOnFirstBrew, t0)
	require.NoError(t, err)
	return b
}

func event(t testing.TB, typ string) storage.Event {
	t.Helper()
	ev, err := storage.NewEvent(typ, map[string]string{"kind": typ}, t0)
	require.NoError(t, err)
	return ev
}

// Run exercises a repository built by open. Each subtest gets its own
// repository.
func Run(t *testing.T, open func(t *testing.T) storage.Repository) {
	t.Run("CreateAndLoad", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		b := NewBar(t)
		require.NoError(t, repo.Create(ctx, b, event(t, "bar_created")))

		got, version, err := repo.Load(ctx, b.Code())
		require.NoError(t, err)
		assert.Equal(t, 1, version)
		assert.Equal(t, b.Snapshot(), got.Snapshot())
	})

	t.Run("CreateDuplicateCode", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		b := NewBar(t)
		require.NoError(t, repo.Create(ctx, b, event(t, "bar_created")))

		dup, err := bar.New(uuid.New(), b.Code().String(), "Another theme", 2, bar.AlwaysOpen, t0)
		require.NoError(t, err)
		assert.ErrorIs(t, repo.Create(ctx, dup, event(t, "bar_created")), storage.ErrBarExists)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		repo := open(t)
		_, _, err := repo.Load(context.Background(), bar.Code("ZZZ999"))
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = repo.History(context.Background(), bar.Code("ZZZ999"))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("SaveBumpsVersion", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		b := NewBar(t)
		require.NoError(t, repo.Create(ctx, b, event(t, "bar_created")))

		_, err := b.Join(uuid.New(), "Ziggy")
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, b, 1, event(t, "member_joined")))

		got, version, err := repo.Load(ctx, b.Code())
		require.NoError(t, err)
		assert.Equal(t, 2, version)
		assert.Len(t, got.Members(), 1)

		history, err := repo.History(ctx, b.Code())
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "bar_created", history[0].Type)
		assert.Equal(t, "member_joined", history[1].Type)
		assert.Equal(t, 2, history[1].Version)
		assert.JSONEq(t, `{"kind":"member_joined"}`, string(history[1].Data))
	})

	t.Run("HistoryKeepsOccurredAt", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		b := NewBar(t)
		require.NoError(t, repo.Create(ctx, b, event(t, "bar_created")))

		later := t0.Add(90 * time.Minute)
		ev, err := storage.NewEvent("touched", map[string]string{"kind": "touched"}, later)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, b, 1, ev))

		history, err := repo.History(ctx, b.Code())
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.WithinDuration(t, t0, history[0].OccurredAt, time.Microsecond)
		assert.WithinDuration(t, later, history[1].OccurredAt, time.Microsecond)
	})

	t.Run("SaveStaleVersion", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		b := NewBar(t)
		require.NoError(t, repo.Create(ctx, b, event(t, "bar_created")))
		require.NoError(t, repo.Save(ctx, b, 1, event(t, "touched")))

		err := repo.Save(ctx, b, 1, event(t, "touched"))
		assert.ErrorIs(t, err, storage.ErrConcurrencyConflict)

		_, version, err := repo.Load(ctx, b.Code())
		require.NoError(t, err)
		assert.Equal(t, 2, version)
	})

	t.Run("ConcurrentSavesOneWins", func(t *testing.T) {
		repo := open(t)
		ctx := context.Background()
		b := NewBar(t)
		require.NoError(t, repo.Create(ctx, b, event(t, "bar_created")))

		const writers = 5
		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = repo.Save(ctx, b, 1, event(t, "raced"))
			}()
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, storage.ErrConcurrencyConflict)
		}
		assert.Equal(t, 1, wins)
	})
}
