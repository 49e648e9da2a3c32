package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Memory is an in-process Store with per entry TTL.
type Memory struct {
	cache *ristretto.Cache[string, string]
	ttl   time.Duration
}

func NewMemory(maxKeys int64, ttl time.Duration) *Memory {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxKeys * 10,
		MaxCost:     maxKeys,
		BufferItems: 64,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to create session cache: %v", err))
	}

	return &Memory{cache: c, ttl: ttl}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	val, ok := m.cache.Get(key)
	if !ok {
		return "", ErrNotFound
	}

	return val, nil
}

func (m *Memory) Set(_ context.Context, key, val string) error {
	if !m.cache.SetWithTTL(key, val, 1, m.ttl) {
		return errors.New("session cache rejected entry")
	}

	// make the value visible to the next Get
	m.cache.Wait()
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.cache.Del(k)
	}

	return nil
}

func (m *Memory) Close() {
	m.cache.Close()
}
