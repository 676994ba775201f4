package kpicache

import (
	"context"
	"sync"
	"time"

	"github.com/smukkama/energy-kpi/internal/kpi"
)

// DefaultTTL is how long a computed KPI stays valid
const DefaultTTL = 5 * time.Minute

// Cache stores summary KPIs by full query signature. Writes are upserts;
// invalidation is by age only.
type Cache interface {
	Get(ctx context.Context, key string) (kpi.EntityKPI, bool)
	Put(ctx context.Context, key string, value kpi.EntityKPI)
	// CleanExpired drops stale entries and returns how many were removed
	CleanExpired(ctx context.Context) int
}

type entry struct {
	kpis      kpi.EntityKPI
	timestamp time.Time
}

// Memory is a process-local Cache
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory creates an in-process cache; ttl <= 0 uses DefaultTTL
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

func (m *Memory) Get(_ context.Context, key string) (kpi.EntityKPI, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || m.now().Sub(e.timestamp) >= m.ttl {
		return kpi.EntityKPI{}, false
	}
	return e.kpis, true
}

func (m *Memory) Put(_ context.Context, key string, value kpi.EntityKPI) {
	m.mu.Lock()
	m.entries[key] = entry{kpis: value, timestamp: m.now()}
	m.mu.Unlock()
}

func (m *Memory) CleanExpired(_ context.Context) int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, e := range m.entries {
		if now.Sub(e.timestamp) >= m.ttl {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired or not
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
