package settle

import (
	"context"
	"sync"
)

// guardKey carries the set of entity keys held by the current call chain.
type guardKey struct{}

type guardSet map[string]struct{}

// keyedLocks serializes engine operations per entity. Distinct callers
// touching the same record queue on the entity's mutex; a call chain that
// re-enters the engine for a key it already holds (a hook or treasury
// calling back in) fails with ErrReentrantCall instead of deadlocking.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*entityLock)}
}

// acquire takes the critical section for key. The returned context marks
// the key as held; release must be called exactly once.
func (k *keyedLocks) acquire(ctx context.Context, key string) (context.Context, func(), error) {
	held, _ := ctx.Value(guardKey{}).(guardSet)
	if _, ok := held[key]; ok {
		return ctx, nil, ErrReentrantCall
	}

	k.mu.Lock()
	el, ok := k.locks[key]
	if !ok {
		el = &entityLock{}
		k.locks[key] = el
	}
	el.refs++
	k.mu.Unlock()

	el.mu.Lock()

	next := make(guardSet, len(held)+1)
	for h := range held {
		next[h] = struct{}{}
	}
	next[key] = struct{}{}

	release := func() {
		el.mu.Unlock()

		k.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}

	return context.WithValue(ctx, guardKey{}, next), release, nil
}
