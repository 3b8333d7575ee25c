package game

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarLocksSerialiseAndRelease(t *testing.T) {
	locks := newBarLocks()
	counter := 0

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("BCDFGH")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, counter)
	assert.Empty(t, locks.locks)
}
