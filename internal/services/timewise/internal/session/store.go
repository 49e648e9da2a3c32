// Package session keeps per-login state in a string keyed store.
package session

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Store is a string keyed value store. Get reports ErrNotFound for missing
// or expired keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, val string) error
	Delete(ctx context.Context, keys ...string) error
}
