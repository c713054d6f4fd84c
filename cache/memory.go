package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memoryLock is a one-slot semaphore. refs counts the holder and waiters;
// the slot leaves the map when it drops to zero.
type memoryLock struct {
	slot chan struct{}
	refs int
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process KeyValueCache and Locker. Expired entries are
// dropped lazily on access. It does not survive restarts.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	locks   map[string]*memoryLock
	now     func() time.Time
}

// NewMemory returns an empty cache. now overrides the clock; nil means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		locks:   make(map[string]*memoryLock),
		now:     now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, 0, ErrMiss
	}
	remaining := entry.expiresAt.Sub(m.now())
	if remaining <= 0 {
		delete(m.entries, key)
		return nil, 0, ErrMiss
	}

	return append([]byte(nil), entry.value...), remaining, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache ttl must be positive")
	}

	m.mu.Lock()
	m.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(ttl),
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Lock blocks until the key's slot is free or ctx is done. ttl is ignored:
// an in-process holder cannot crash without taking the cache with it.
func (m *Memory) Lock(ctx context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &memoryLock{slot: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.slot
				m.unref(key, l)
			})
		}, nil
	case <-ctx.Done():
		m.unref(key, l)
		return nil, ErrLockTimeout
	}
}

func (m *Memory) unref(key string, l *memoryLock) {
	m.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
	m.mu.Unlock()
}
