// Package lock provides per key mutual exclusion that fails fast when the key is taken.
package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrHeld = errors.New("lock held")

// Release gives the key back. Calling it more than once is a no-op.
type Release func()

// Local is an in-process try-lock keyed by string.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) Acquire(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
