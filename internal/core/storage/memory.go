package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore keeps snapshots for the lifetime of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	snaps  map[string]Snapshot
	closed bool
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]Snapshot)}
}

func (m *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.snaps[snap.Group] = cloneSnapshot(snap)
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, group string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Snapshot{}, ErrClosed
	}
	snap, ok := m.snaps[group]
	if !ok {
		return Snapshot{}, fmt.Errorf("group %q: %w", group, ErrNotFound)
	}
	return cloneSnapshot(snap), nil
}

func (m *MemoryStore) Groups(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]string, 0, len(m.snaps))
	for g := range m.snaps {
		out = append(out, g)
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
