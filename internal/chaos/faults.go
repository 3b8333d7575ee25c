package chaos

import (
	"context"
	"sync"
	"time"

	"hipsterbar/internal/bar"
	"hipsterbar/internal/storage"
)

// FaultyRepository wraps a repository and injects latency and spurious
// version conflicts into it.
type FaultyRepository struct {
	storage.Repository

	mu            sync.Mutex
	latency       time.Duration
	conflictEvery int
	saves         int
	injected      int
}

func NewFaultyRepository(repo storage.Repository) *FaultyRepository {
	return &FaultyRepository{Repository: repo}
}

// SetLatency delays every Load and Save by d. Zero disables it.
func (f *FaultyRepository) SetLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

// SetConflictEvery makes every nth Save fail with a concurrency conflict
// without touching storage. Zero disables it.
func (f *FaultyRepository) SetConflictEvery(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflictEvery = n
	f.saves = 0
}

// InjectedConflicts returns how many conflicts have been injected so far.
func (f *FaultyRepository) InjectedConflicts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injected
}

func (f *FaultyRepository) Load(ctx context.Context, code bar.Code) (*bar.Bar, int, error) {
	if err := f.delay(ctx); err != nil {
		return nil, 0, err
	}
	return f.Repository.Load(ctx, code)
}

func (f *FaultyRepository) Save(ctx context.Context, b *bar.Bar, expectedVersion int, ev storage.Event) error {
	f.mu.Lock()
	inject := false
	if f.conflictEvery > 0 {
		f.saves++
		if f.saves%f.conflictEvery == 0 {
			inject = true
			f.injected++
		}
	}
	f.mu.Unlock()

	if err := f.delay(ctx); err != nil {
		return err
	}
	if inject {
		return storage.ErrConcurrencyConflict
	}
	return f.Repository.Save(ctx, b, expectedVersion, ev)
}

func (f *FaultyRepository) delay(ctx context.Context) error {
	f.mu.Lock()
	d := f.latency
	f.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
