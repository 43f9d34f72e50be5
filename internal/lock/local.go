package lock

import (
	"context"
	"sync/atomic"
)

// Local is an in-process running flag owned by one processor instance.
type Local struct {
	running atomic.Bool
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) TryLock(context.Context) (func(), bool, error) {
	if !l.running.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			l.running.Store(false)
		}
	}, true, nil
}

// Held reports whether a run currently owns the flag.
func (l *Local) Held() bool {
	return l.running.Load()
}
