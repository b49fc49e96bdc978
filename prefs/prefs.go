// Package prefs defines the config-store collaborator contract: per-user
// preferences keyed by principal, such as the notes storage location. The
// core consumes the Store interface only; the in-memory implementation here
// is suitable for tests and single-process deployments.
package prefs

import (
	"fmt"
	"sync"
)

// Canonical preference keys used by the built-in tools.
const (
	// KeyNotesPath is the storage location for the note-taking capability.
	KeyNotesPath = "notes_path"
)

// Store resolves and updates per-user preferences. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the stored value and whether it exists.
	Get(principal, key string) (string, bool, error)
	// Set writes a preference through to durable storage.
	Set(principal, key, value string) error
}

// InMemoryStore is a process-local Store protected by an RWMutex.
type InMemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]map[string]string // principal -> key -> value
}

// NewInMemoryStore constructs an empty in-memory preference store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{prefs: make(map[string]map[string]string)}
}

// Get implements Store.
func (s *InMemoryStore) Get(principal, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userPrefs, ok := s.prefs[principal]
	if !ok {
		return "", false, nil
	}
	v, ok := userPrefs[key]
	return v, ok, nil
}

// Set implements Store.
func (s *InMemoryStore) Set(principal, key, value string) error {
	if principal == "" {
		return fmt.Errorf("prefs: empty principal")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prefs[principal]; !ok {
		s.prefs[principal] = make(map[string]string)
	}
	s.prefs[principal][key] = value
	return nil
}
