package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/syssam/relq"
)

var _ relq.Cache = (*Memory)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is an in-process cache. Expired entries are never returned and
// are removed by a background sweep until Close is called.
type Memory struct {
	mu    sync.RWMutex
	store map[string]entry
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	interval time.Duration
	now      func() time.Time
}

// WithSweepInterval sets how often expired entries are removed. Default
// is one minute. A non-positive interval disables the sweep.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(o *memoryOptions) { o.interval = d }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) { o.now = now }
}

// NewMemory returns an empty in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	o := memoryOptions{interval: time.Minute, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	m := &Memory{store: make(map[string]entry), now: o.now, stop: make(chan struct{})}
	if o.interval > 0 {
		go m.sweep(o.interval)
	}
	return m
}

// Get implements relq.Cache.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.store[key]
	if !ok || e.expired(m.now()) {
		return nil, nil
	}
	return e.value, nil
}

// Set implements relq.Cache. The value is copied.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = e
	return nil
}

// Delete implements relq.Cache.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, key)
	return nil
}

// DeletePrefix implements relq.Cache.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.store {
		if strings.HasPrefix(k, prefix) {
			delete(m.store, k)
		}
	}
	return nil
}

// Clear implements relq.Cache.
func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.store)
	return nil
}

// Len returns the number of stored entries, expired ones included until
// they are swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// Close stops the background sweep.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *Memory) removeExpired() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.store {
		if e.expired(now) {
			delete(m.store, k)
		}
	}
}
