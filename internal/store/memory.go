package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/climate-indicator-service/internal/domain"
	"github.com/couchcryptid/climate-indicator-service/internal/observability"
)

type memoryEntry struct {
	result   domain.Result
	storedAt time.Time
}

// Memory is a concurrency-safe in-memory Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[domain.JobKey]memoryEntry
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewMemory creates an empty in-memory store. A nil clock uses the real clock.
func NewMemory(ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		entries: make(map[domain.JobKey]memoryEntry),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

func (m *Memory) Get(_ context.Context, key domain.JobKey) (domain.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		m.metrics.StoreLookups.WithLabelValues("miss").Inc()
		return domain.Result{}, ErrNotFound
	}
	m.metrics.StoreLookups.WithLabelValues("hit").Inc()
	return e.result.Clone(), nil
}

func (m *Memory) Put(_ context.Context, res domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[res.Key()] = memoryEntry{result: res.Clone(), storedAt: m.clock.Now()}
	return nil
}

func (m *Memory) Delete(_ context.Context, key domain.JobKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) List(_ context.Context) ([]domain.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Result, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.result.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[domain.JobKey]memoryEntry)
	return nil
}

func (m *Memory) Prune(_ context.Context) (int, error) {
	if m.ttl <= 0 {
		return 0, nil
	}
	cutoff := m.clock.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if e.storedAt.Before(cutoff) {
			delete(m.entries, k)
			removed++
		}
	}
	m.metrics.StorePruned.Add(float64(removed))
	return removed, nil
}

func (m *Memory) Close() error { return nil }
