package workflow

import (
	"sync"

	"github.com/steveyegge/novelflow/internal/types"
)

// entityLocks serializes transitions per entity within one process. Entries
// are reference counted and dropped when the last holder unlocks.
type entityLocks struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*refMutex)}
}

// lock blocks until the entity is free and returns its unlock func.
func (l *entityLocks) lock(entityType types.EntityType, id string) func() {
	key := string(entityType) + ":" + id

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &refMutex{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *entityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
