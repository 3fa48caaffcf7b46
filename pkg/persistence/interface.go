package persistence

// IKeyPersistence stores encrypted agent keys.
// All implementations must be safe for concurrent use.
//
// The interface supports:
// - Stored key management (save, load, list, delete)
// - Lifecycle management (close, health check)
type IKeyPersistence interface {
	// SaveKey persists a stored key indexed by its ID.
	// Overwrites any existing key with the same ID.
	SaveKey(key *StoredKey) error

	// LoadKey retrieves a stored key by ID.
	// Returns nil if the key doesn't exist, error only on storage failure.
	LoadKey(id string) (*StoredKey, error)

	// ListKeys returns all stored keys sorted by creation time, then ID.
	// Returns empty slice if no keys exist, error only on storage failure.
	ListKeys() ([]*StoredKey, error)

	// DeleteKey removes a stored key by ID.
	// Idempotent - returns nil if the key doesn't exist.
	DeleteKey(id string) error

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return errors.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}
