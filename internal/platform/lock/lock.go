// Package lock serializes state transitions per resource key ("bed:<id>",
// "patient:<id>"). Waits are bounded; a lock that cannot be obtained in time
// surfaces as a conflict so callers can retry.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

// Unlock releases a held lock. Calling it more than once is harmless.
type Unlock func()

// Locker acquires exclusive locks keyed by resource identity.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// BedKey and PatientKey build the lock keys used by the bed state machine.
func BedKey(id string) string     { return "bed:" + id }
func PatientKey(id string) string { return "patient:" + id }

// Acquire takes the given keys in order and returns one Unlock releasing all
// of them in reverse. Callers must pass keys in a stable order (bed before
// patient) to avoid lock-order inversions.
func Acquire(ctx context.Context, l Locker, keys ...string) (Unlock, error) {
	held := make([]Unlock, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, key := range keys {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// MemoryLocker is an in-process keyed mutex. It is correct for a single
// server instance; use RedisLocker when running several.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot), wait: wait}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.release(key, s)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, s)
		return nil, apperr.Conflict("%s is busy, retry later", key)
	}
}

func (l *MemoryLocker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
