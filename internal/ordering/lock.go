package ordering

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// lockKey names an item or a whole class. Item ids may be negative for
// placeholders, so classes live in their own keyspace.
type lockKey struct {
	class bool
	id    int64
}

func itemKey(id int64) lockKey  { return lockKey{id: id} }
func classKey(id int64) lockKey { return lockKey{class: true, id: id} }

func itemKeys(ids ...int64) []lockKey {
	keys := make([]lockKey, len(ids))
	for i, id := range ids {
		keys[i] = itemKey(id)
	}
	return keys
}

func compareKeys(a, b lockKey) int {
	if a.class != b.class {
		if a.class {
			return 1
		}
		return -1
	}
	return cmp.Compare(a.id, b.id)
}

// keyedLock serializes work per key. Waiters on one key are served in
// arrival order; different keys do not contend.
type keyedLock struct {
	mu    sync.Mutex
	slots map[lockKey]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[lockKey]*slot)}
}

// Lock acquires the item keys of ids.
func (k *keyedLock) Lock(ctx context.Context, ids ...int64) (func(), error) {
	return k.LockKeys(ctx, itemKeys(ids...)...)
}

// LockKeys acquires every key in a fixed total order so overlapping sets
// cannot deadlock. The returned func releases them.
func (k *keyedLock) LockKeys(ctx context.Context, keys ...lockKey) (func(), error) {
	keys = slices.Clone(keys)
	slices.SortFunc(keys, compareKeys)
	keys = slices.Compact(keys)

	held := make([]lockKey, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			k.unlock(held[i])
		}
	}
	for _, id := range keys {
		if err := k.lock(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}
	return release, nil
}

func (k *keyedLock) lock(ctx context.Context, id lockKey) error {
	k.mu.Lock()
	s, ok := k.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[id] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		k.drop(id, s)
		return ctx.Err()
	}
}

func (k *keyedLock) unlock(id lockKey) {
	k.mu.Lock()
	s := k.slots[id]
	k.mu.Unlock()
	<-s.ch
	k.drop(id, s)
}

func (k *keyedLock) drop(id lockKey, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, id)
	}
}

// pending returns the number of keys with holders or waiters.
func (k *keyedLock) pending() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
