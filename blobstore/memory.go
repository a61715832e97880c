package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/skaldworks/skald/idgen"
)

type memEntry struct {
	asset Asset
	data  []byte
}

// Memory is an in-memory Store for tests and ephemeral sessions. Display
// refs get synthetic mem:// URLs; the embedded ledger tracks release
// parity.
type Memory struct {
	refLedger
	mu      sync.RWMutex
	entries map[string]*memEntry
	newID   idgen.Generator
}

// NewMemory creates an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*memEntry),
		newID:   idgen.Prefixed("ast_", idgen.Default),
	}
}

func (m *Memory) Save(_ context.Context, data []byte, name, mimeType string) (Asset, error) {
	sum := sha256.Sum256(data)
	now := time.Now().UTC()
	asset := Asset{
		ID:        m.newID(),
		Name:      name,
		Type:      mimeType,
		Size:      int64(len(data)),
		SHA256:    hex.EncodeToString(sum[:]),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mimeType == "application/pdf" {
		asset.PageCount = pdfPageCount(data)
	}

	m.mu.Lock()
	m.entries[asset.ID] = &memEntry{asset: asset, data: append([]byte(nil), data...)}
	m.mu.Unlock()
	return asset, nil
}

// Put inserts an asset under a caller-chosen id, used by backup restore to
// preserve ids referenced by restored documents.
func (m *Memory) Put(_ context.Context, asset Asset, data []byte) error {
	if asset.ID == "" {
		return fmt.Errorf("blobstore: put without id")
	}
	m.mu.Lock()
	m.entries[asset.ID] = &memEntry{asset: asset, data: append([]byte(nil), data...)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Asset, []byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return Asset{}, nil, ErrNotFound
	}
	return e.asset, append([]byte(nil), e.data...), nil
}

func (m *Memory) Resolve(_ context.Context, id string) (*DisplayRef, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &DisplayRef{
		URL:     fmt.Sprintf("mem://%s/%s", id, idgen.New()),
		Name:    e.asset.Name,
		Type:    e.asset.Type,
		release: m.acquire(),
	}, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored assets.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
