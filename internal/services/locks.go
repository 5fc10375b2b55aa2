package services

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes work per commitment. Entries are dropped once nobody holds or waits
// for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uuid.UUID]*refMutex)}
}

// Lock acquires the locks of ids in ascending order and returns the function releasing
// them. Duplicate ids are locked once.
func (k *keyedMutex) Lock(ids ...uuid.UUID) func() {
	sorted := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	held := make([]*refMutex, 0, len(sorted))
	for _, id := range sorted {
		k.mu.Lock()
		m, ok := k.locks[id]
		if !ok {
			m = &refMutex{}
			k.locks[id] = m
		}
		m.refs++
		k.mu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, sorted[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
