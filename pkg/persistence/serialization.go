package persistence

import (
	"encoding/json"
	"fmt"
)

// MarshalStoredKey serializes a StoredKey to JSON bytes.
func MarshalStoredKey(sk *StoredKey) ([]byte, error) {
	if sk == nil {
		return nil, fmt.Errorf("cannot marshal nil StoredKey")
	}

	data, err := json.Marshal(sk)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal StoredKey to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalStoredKey deserializes a StoredKey from JSON bytes.
func UnmarshalStoredKey(data []byte) (*StoredKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var sk StoredKey
	if err := json.Unmarshal(data, &sk); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to StoredKey: %w", err)
	}

	return &sk, nil
}
