package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockHeld is returned when another holder owns the key.
var ErrLockHeld = errors.New("lock held")

// Locker hands out per-key exclusive leases with a TTL. The returned unlock
// function is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// MarketKey is the lock key for one market's settlement cycle.
func MarketKey(marketID uint64) string {
	return fmt.Sprintf("settlement:market:%d", marketID)
}

// LocalLocker is an in-process Locker for single-replica deployments.
type LocalLocker struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]lease
	nextID uint64
}

type lease struct {
	id      uint64
	expires time.Time
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		now:    time.Now,
		leases: make(map[string]lease),
	}
}

// Acquire implements Locker. An expired lease is taken over.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return nil, ErrLockHeld
	}

	l.nextID++
	id := l.nextID
	l.leases[key] = lease{id: id, expires: now.Add(ttl)}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// Only release our own lease, not a successor's.
			if cur, ok := l.leases[key]; ok && cur.id == id {
				delete(l.leases, key)
			}
		})
	}
	return unlock, nil
}
