// Package credstore provides process-local CredentialStore implementations:
// an in-memory store for tests and a file store for the command-line client.
package credstore

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore keeps the credential in memory. Failures can be injected per operation.
type MemoryStore struct {
	mu    sync.Mutex
	value string
	set   bool

	// SaveErr, when non-nil, is returned by Save and nothing is written.
	SaveErr error
	// RemoveErr, when non-nil, is returned by Remove and nothing is removed.
	RemoveErr error

	saves   int
	removes int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *MemoryStore) Save(_ context.Context, credential string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if credential == "" {
		return errors.New("credential cannot be empty")
	}
	m.value = credential
	m.set = true
	return nil
}

func (m *MemoryStore) Remove(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removes++
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.value = ""
	m.set = false
	return nil
}

// Present reports whether the key currently exists.
func (m *MemoryStore) Present() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set
}

// Counts returns how many Save and Remove calls were made.
func (m *MemoryStore) Counts() (saves, removes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves, m.removes
}
