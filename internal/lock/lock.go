// Package lock provides the Queue Processor's exclusivity guard.
//
// Acquisition never blocks: a busy lock reports false immediately so a
// scheduler tick that finds a run in progress is simply dropped.
package lock

import "context"

// Locker is a non-blocking mutual exclusion guard.
type Locker interface {
	// TryLock acquires the lock if it is free. The returned release func is
	// non-nil only when acquired is true.
	TryLock(ctx context.Context) (release func(), acquired bool, err error)
}

// Chain acquires each locker in order and releases them in reverse. If any
// locker is busy or fails, the ones already held are released.
type Chain []Locker

func (c Chain) TryLock(ctx context.Context) (func(), bool, error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		release, ok, err := l.TryLock(ctx)
		if err != nil || !ok {
			releaseAll()
			return nil, false, err
		}
		releases = append(releases, release)
	}
	return releaseAll, true, nil
}
