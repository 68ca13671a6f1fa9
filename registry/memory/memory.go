// Package memory is an in-process registry backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pilacorp/go-trackback-agent/registry"
)

type entry struct {
	owner  string
	record *registry.ResolutionRecord
}

// Backend keeps records in a map. Records are copied on the way in and out, so
// callers never share state with the store.
type Backend struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{entries: make(map[string]entry)}
}

// Put implements registry.Backend.
func (b *Backend) Put(ctx context.Context, owner string, rec *registry.ResolutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.DIDDocument == nil || rec.DIDDocument.ID == "" {
		return fmt.Errorf("record has no DID")
	}

	id := rec.DIDDocument.ID
	cp := rec.Clone()

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.entries[id]; ok && existing.owner != owner {
		return fmt.Errorf("%w: %s is owned by another account", registry.ErrUnauthorized, id)
	}
	b.entries[id] = entry{owner: owner, record: cp}

	return nil
}

// Get implements registry.Backend.
func (b *Backend) Get(ctx context.Context, id string) (*registry.ResolutionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	e, ok := b.entries[id]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, id)
	}

	return e.record.Clone(), nil
}

// Len returns the number of stored DIDs.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.entries)
}
