package identity

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store implementation. It backs tests and
// single-process deployments; production deployments plug in a real
// directory-backed Store.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*record
	saves   int
	failure error
}

type record struct {
	identity   Identity
	attributes map[string][]string
	dirty      map[string][]string
}

// NewMemoryStore creates an empty in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*record)}
}

// AddIdentity registers an identity with its attributes.
func (s *MemoryStore) AddIdentity(id Identity, attributes map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs := make(map[string][]string, len(attributes))
	for k, v := range attributes {
		attrs[k] = append([]string(nil), v...)
	}
	s.users[id.Name] = &record{
		identity:   id,
		attributes: attrs,
		dirty:      make(map[string][]string),
	}
}

// FailWith makes every subsequent operation return err. Passing nil clears
// the failure. Used to exercise transient-failure paths in tests.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// SaveCount reports how many times Save has been called.
func (s *MemoryStore) SaveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// LookupByName finds an identity by username or by any of the given search
// attributes.
func (s *MemoryStore) LookupByName(ctx context.Context, name string, searchAttributes []string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failure != nil {
		return nil, s.failure
	}

	if rec, ok := s.users[name]; ok {
		id := rec.identity
		return &id, nil
	}

	// Fall back to attribute search (alias lists, mail addresses)
	for _, rec := range s.users {
		for _, attr := range searchAttributes {
			for _, v := range rec.attributes[attr] {
				if v == name {
					id := rec.identity
					return &id, nil
				}
			}
		}
	}

	return nil, ErrNotFound
}

// GetAttribute returns the values of one attribute.
func (s *MemoryStore) GetAttribute(ctx context.Context, id *Identity, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failure != nil {
		return nil, s.failure
	}

	rec, ok := s.users[id.Name]
	if !ok {
		return nil, ErrNotFound
	}
	if v, ok := rec.dirty[name]; ok {
		return append([]string(nil), v...), nil
	}
	return append([]string(nil), rec.attributes[name]...), nil
}

// SetAttribute stages a replacement value set for one attribute.
func (s *MemoryStore) SetAttribute(ctx context.Context, id *Identity, name string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return s.failure
	}

	rec, ok := s.users[id.Name]
	if !ok {
		return ErrNotFound
	}
	rec.dirty[name] = append([]string(nil), values...)
	return nil
}

// Save commits all staged attribute changes atomically.
func (s *MemoryStore) Save(ctx context.Context, id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failure != nil {
		return s.failure
	}

	rec, ok := s.users[id.Name]
	if !ok {
		return fmt.Errorf("save: %w", ErrNotFound)
	}
	for k, v := range rec.dirty {
		rec.attributes[k] = v
	}
	rec.dirty = make(map[string][]string)
	s.saves++
	return nil
}

var _ Store = (*MemoryStore)(nil)
