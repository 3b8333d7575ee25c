package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hipsterbar/internal/storage"
	"hipsterbar/internal/storage/storagetest"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return openTestStore(t, "")
	})
}

func TestInMemoryStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	a := openTestStore(t, "")
	b := openTestStore(t, "")

	br := storagetest.NewBar(t)
	ev, err := storage.NewEvent("bar_created", nil, br.CreatedAt())
	require.NoError(t, err)
	require.NoError(t, a.Create(ctx, br, ev))

	_, _, err = b.Load(ctx, br.Code())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bars.sqlite")

	first, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Migrate(ctx))

	br := storagetest.NewBar(t)
	_, err = br.Join(uuid.New(), "Moondog")
	require.NoError(t, err)
	ev, err := storage.NewEvent("bar_created", nil, br.CreatedAt())
	require.NoError(t, err)
	require.NoError(t, first.Create(ctx, br, ev))
	require.NoError(t, first.Close())

	second := openTestStore(t, path)
	got, version, err := second.Load(ctx, br.Code())
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	require.Len(t, got.Members(), 1)
	assert.Equal(t, "Moondog", got.Members()[0].DisplayName)
}
