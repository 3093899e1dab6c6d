// Package cache defines the key-value cache collaborator used by the
// eligibility service. The interface reports misses and connection failures
// as distinct errors so callers can fall through to the data store on either
// while counting them separately.
package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrMiss is returned when the key is absent or its TTL has elapsed.
var ErrMiss = errors.New("cache: miss")

// ErrUnavailable is returned when the cache backend cannot be reached.
// Callers must treat it as a degraded cache, never as a verdict.
var ErrUnavailable = errors.New("cache: unavailable")

// Store is a shared, last-writer-wins key-value cache with per-key TTLs.
// DeletePrefix exists so that writers can invalidate every dated variant of
// a key family in one call.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Flush(ctx context.Context) error
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a thread-safe in-process Store with lazy expiration.
type MemoryStore struct {
	entries map[string]*entry
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

// Get retrieves a value. Expired entries are deleted on read and reported
// as ErrMiss.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, ErrMiss
	}
	return e.data, nil
}

// Set stores a value with the given TTL, overwriting any existing entry.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{data: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a single entry.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
		}
	}
	return nil
}

// Flush removes all entries.
func (s *MemoryStore) Flush(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
	return nil
}

// StartCleanup runs a background goroutine that periodically removes expired
// entries. It stops when the context is cancelled.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				now := time.Now()
				for k, e := range s.entries {
					if now.After(e.expiresAt) {
						delete(s.entries, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}
