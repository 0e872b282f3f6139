package session

import (
	"context"
	"sync"
)

// Persister is a durable slot holding at most one token pair.
type Persister interface {
	// Load returns the stored pair, or an empty Pair when the slot is empty.
	Load(ctx context.Context) (Pair, error)
	// Save overwrites the slot with p.
	Save(ctx context.Context, p Pair) error
	// Clear empties the slot. Clearing an empty slot is not an error.
	Clear(ctx context.Context) error
}

// Slot names the two keys a portal persists its tokens under.
type Slot struct {
	AccessKey  string
	RefreshKey string
}

// MemoryPersister keeps the pair in process memory.
type MemoryPersister struct {
	mu   sync.Mutex
	pair Pair
}

// NewMemoryPersister returns an empty in-memory slot.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Load(context.Context) (Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pair, nil
}

func (m *MemoryPersister) Save(_ context.Context, p Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = p
	return nil
}

func (m *MemoryPersister) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = Pair{}
	return nil
}
