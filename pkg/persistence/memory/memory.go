package memory

import (
	"fmt"
	"sync"

	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of IKeyPersistence.
// This implementation is intended for TESTING ONLY.
//
// All data is lost when the process exits. Stored keys are deep copied on
// the way in and out so callers cannot mutate the store.
type MemoryPersistence struct {
	mu sync.RWMutex

	// id -> StoredKey
	keys map[string]*persistence.StoredKey

	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since this should only be used for testing.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Println("⚠️  WARNING: Using in-memory keystore - ALL KEYS WILL BE LOST ON RESTART")
	fmt.Println("⚠️  This should ONLY be used for testing. Set AGENT_KEYSTORE_TYPE=badger for production")

	return &MemoryPersistence{
		keys: make(map[string]*persistence.StoredKey),
	}
}

// SaveKey persists a stored key.
func (m *MemoryPersistence) SaveKey(key *persistence.StoredKey) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("cannot save StoredKey: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.keys[key.ID] = key.Clone()
	return nil
}

// LoadKey retrieves a stored key by ID.
func (m *MemoryPersistence) LoadKey(id string) (*persistence.StoredKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	key, exists := m.keys[id]
	if !exists {
		return nil, nil // Not found is not an error
	}
	return key.Clone(), nil
}

// ListKeys returns all stored keys sorted by creation time.
func (m *MemoryPersistence) ListKeys() ([]*persistence.StoredKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	result := make([]*persistence.StoredKey, 0, len(m.keys))
	for _, key := range m.keys {
		result = append(result, key.Clone())
	}
	persistence.SortStoredKeys(result)

	return result, nil
}

// DeleteKey removes a stored key.
func (m *MemoryPersistence) DeleteKey(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	delete(m.keys, id)
	return nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return nil
}
