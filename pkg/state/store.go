package state

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNoState indicates no cursor has been saved for the key
	ErrNoState = errors.New("no saved state")

	// ErrInvalidEntry indicates a stored entry could not be decoded
	ErrInvalidEntry = errors.New("invalid state entry")
)

// Store persists resource cursors across runs.
type Store interface {
	// Get returns the entry for key or ErrNoState.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Set stores entry under key, replacing any previous entry.
	Set(ctx context.Context, key Key, entry *Entry) error

	// Delete removes the entry for key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List returns the entries of a shop ordered by resource name.
	List(ctx context.Context, shop string) ([]Keyed, error)

	// Close releases the backend.
	Close() error
}

// MemoryStore keeps state in process memory. It is meant for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key Key) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	Operations.WithLabelValues("memory", "get").Inc()
	e, ok := m.entries[key.String()]
	if !ok {
		Misses.WithLabelValues("memory").Inc()
		return nil, fmt.Errorf("%s: %w", key, ErrNoState)
	}
	e.BoundaryKeys = slices.Clone(e.BoundaryKeys)
	return &e, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key Key, entry *Entry) error {
	if err := validate(key, entry); err != nil {
		return observe("memory", "set", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := *entry
	e.BoundaryKeys = slices.Clone(entry.BoundaryKeys)
	m.entries[key.String()] = e
	return observe("memory", "set", nil)
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key.String())
	return observe("memory", "delete", nil)
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, shop string) ([]Keyed, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := ShopPrefix(shop)
	var out []Keyed
	for k, e := range m.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		entry := e
		entry.BoundaryKeys = slices.Clone(e.BoundaryKeys)
		out = append(out, Keyed{Key: Key{Shop: shop, Resource: strings.TrimPrefix(k, prefix)}, Entry: &entry})
	}
	sortKeyed(out)
	return out, observe("memory", "list", nil)
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}

func validate(key Key, entry *Entry) error {
	if err := key.validate(); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("state entry cannot be nil")
	}
	if entry.Kind == "" || entry.Value == "" {
		return fmt.Errorf("%w: empty cursor for %s", ErrInvalidEntry, key)
	}
	return nil
}

func sortKeyed(entries []Keyed) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.Resource < entries[j].Key.Resource
	})
}
