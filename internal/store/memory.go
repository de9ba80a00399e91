package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kubesentry/kubesentry/internal/types"
)

// MemoryStore keeps alerts in process memory. Records are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]*types.Alert
	seq    map[string]int
	next   int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]*types.Alert),
		seq:    make(map[string]int),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (m *MemoryStore) FindActive(_ context.Context, key string) (*types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.alerts {
		if a.AlertKey == key && !a.IsResolved {
			out := *a
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) FindActiveByResource(_ context.Context, resourceType, name, namespace string) ([]types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.Alert
	for _, a := range m.alerts {
		if a.IsResolved || a.ResourceType != resourceType || a.ResourceName != name || a.ResourceNamespace != namespace {
			continue
		}
		out = append(out, *a)
	}
	m.sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Create(_ context.Context, alert *types.Alert) error {
	if alert.AlertKey == "" {
		return fmt.Errorf("create alert: empty alert key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if _, exists := m.alerts[alert.ID]; exists {
		return fmt.Errorf("create alert: id %s already exists", alert.ID)
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	stored := *alert
	m.alerts[alert.ID] = &stored
	m.seq[alert.ID] = m.next
	m.next++
	return nil
}

func (m *MemoryStore) Resolve(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return fmt.Errorf("resolve %s: %w", id, ErrNotFound)
	}
	if a.IsResolved {
		return nil
	}
	resolvedAt := at.UTC()
	a.IsResolved = true
	a.ResolvedAt = &resolvedAt
	return nil
}

func (m *MemoryStore) List(_ context.Context, filter types.AlertFilter) ([]types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]types.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if filter.Matches(*a) {
			out = append(out, *a)
		}
	}
	m.sortNewestFirst(out)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.alerts[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(m.alerts, id)
	delete(m.seq, id)
	return nil
}

// sortNewestFirst orders by CreatedAt descending, breaking ties by insertion order.
// Caller holds m.mu.
func (m *MemoryStore) sortNewestFirst(alerts []types.Alert) {
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return m.seq[alerts[i].ID] > m.seq[alerts[j].ID]
	})
}
