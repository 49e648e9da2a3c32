package otc

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Local keeps codes in process memory. Codes do not survive a restart and are
// not shared between instances.
type Local struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	codes map[string]localEntry
}

type localEntry struct {
	entry   Entry
	expires time.Time
}

func NewLocal(ttl time.Duration) *Local {
	return &Local{
		ttl:   ttl,
		now:   time.Now,
		codes: make(map[string]localEntry),
	}
}

func (l *Local) CreateCode(_ context.Context, e Entry) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for code, le := range l.codes {
		if !now.Before(le.expires) {
			delete(l.codes, code)
		}
	}

	for range 3 {
		code := generateCode()
		if _, taken := l.codes[code]; taken {
			continue
		}

		l.codes[code] = localEntry{entry: e, expires: now.Add(l.ttl)}
		return code, nil
	}

	return "", errors.New("failed to generate unique code")
}

func (l *Local) RedeemCode(_ context.Context, code string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	le, ok := l.codes[code]
	if !ok {
		return Entry{}, ErrCodeNotFound
	}
	delete(l.codes, code)

	if !l.now().Before(le.expires) {
		return Entry{}, ErrCodeNotFound
	}

	return le.entry, nil
}
