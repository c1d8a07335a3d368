// Package lock serializes work per key within one process.
package lock

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Keyed hands out one exclusive slot per key. Waiting honours the
// context, so a pass that cannot get the controller in time gives up.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  *semaphore.Weighted
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{slots: map[string]*slot{}}
}

// Acquire blocks until key is free or ctx is done. The returned func
// releases the key and must be called exactly once.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{sem: semaphore.NewWeighted(1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		k.unref(key, s)
		return nil, errors.Wrapf(err, "failed to acquire lock for %s", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.sem.Release(1)
			k.unref(key, s)
		})
	}, nil
}

// unref drops the slot once nobody holds or waits for it.
func (k *Keyed) unref(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// Len is the number of keys currently held or waited on.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
