package game

import "sync"

// barLocks serialises mutations per bar code. Entries are dropped once no
// goroutine holds or waits for them.
type barLocks struct {
	mu    sync.Mutex
	locks map[string]*barLock
}

type barLock struct {
	sync.Mutex
	refs int
}

func newBarLocks() *barLocks {
	return &barLocks{locks: make(map[string]*barLock)}
}

func (l *barLocks) lock(code string) (unlock func()) {
	l.mu.Lock()
	bl, ok := l.locks[code]
	if !ok {
		bl = &barLock{}
		l.locks[code] = bl
	}
	bl.refs++
	l.mu.Unlock()

	bl.Lock()
	return func() {
		bl.Unlock()
		l.mu.Lock()
		bl.refs--
		if bl.refs == 0 {
			delete(l.locks, code)
		}
		l.mu.Unlock()
	}
}
