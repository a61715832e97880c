package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/skaldworks/skald/doctree"
)

// Memory is an in-memory Store + SnapshotStore.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string]*doctree.Document
	snaps map[string]Snapshot
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]*doctree.Document),
		snaps: make(map[string]Snapshot),
	}
}

func (m *Memory) Get(_ context.Context, id string) (*doctree.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (m *Memory) Save(_ context.Context, doc *doctree.Document) error {
	m.mu.Lock()
	m.docs[doc.ID] = doc.Clone()
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.docs, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListByOwner(_ context.Context, ownerID string) ([]*doctree.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*doctree.Document
	for _, doc := range m.docs {
		if doc.OwnerID == ownerID {
			out = append(out, doc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

func (m *Memory) SaveSnapshot(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	m.snaps[snap.Key] = snap
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListSnapshotKeys(_ context.Context, ownerID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k, s := range m.snaps {
		if s.OwnerID == ownerID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return m.snaps[keys[i]].CreatedAt.Before(m.snaps[keys[j]].CreatedAt)
	})
	return keys, nil
}

func (m *Memory) GetSnapshot(_ context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snaps[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) DeleteSnapshot(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.snaps, key)
	m.mu.Unlock()
	return nil
}
