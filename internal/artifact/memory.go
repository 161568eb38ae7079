package artifact

import (
	"context"
	"sync"
	"time"

	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
)

// MemoryRepo is an in-process artifacts table for local runs without a
// database-backed store.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[string]postgres.Artifact
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]postgres.Artifact)}
}

func (m *MemoryRepo) Put(_ context.Context, a *postgres.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.UpdatedAt = time.Now()
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	m.items[a.Name] = cp
	return nil
}

func (m *MemoryRepo) Get(_ context.Context, name string) (*postgres.Artifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.items[name]
	if !ok {
		return nil, nil
	}
	return &a, nil
}
