package repository

import (
	"context"
	"sync"
)

// QuotaRepository persists upload counts per identity and calendar day.
// day is formatted YYYY-MM-DD.
type QuotaRepository interface {
	Count(ctx context.Context, identity, day string) (int, error)
	Increment(ctx context.Context, identity, day string) (int, error)
}

type memoryQuota struct {
	mu     sync.Mutex
	counts map[quotaKey]int
}

type quotaKey struct {
	identity string
	day      string
}

// NewMemoryQuotaRepository keeps counts in process memory. Counts are lost on
// restart and are not shared between replicas.
func NewMemoryQuotaRepository() QuotaRepository {
	return &memoryQuota{counts: make(map[quotaKey]int)}
}

func (m *memoryQuota) Count(ctx context.Context, identity, day string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[quotaKey{identity, day}], nil
}

func (m *memoryQuota) Increment(ctx context.Context, identity, day string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := quotaKey{identity, day}
	m.counts[k]++
	return m.counts[k], nil
}
