package persistence

import (
	"fmt"
	"sort"
	"strings"
)

// KDF_Argon2id names the passphrase KDF used by envelopes.
const KDF_Argon2id = "argon2id"

// Envelope is a passphrase-encrypted WIF. The ciphertext carries the
// XChaCha20-Poly1305 tag; the KDF parameters travel with it so they can
// be raised later without breaking old records.
type Envelope struct {
	KDF        string `json:"kdf"`
	Time       uint32 `json:"time"`
	MemoryKiB  uint32 `json:"memoryKiB"`
	Threads    uint8  `json:"threads"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// StoredKey is the persisted form of an agent key. Only the envelope holds
// secret material.
type StoredKey struct {
	// ID is the primary key, "agent-key-<uuid>".
	ID string `json:"id"`

	// Label is a caller-chosen name, not required to be unique.
	Label string `json:"label"`

	// Network is the chain the key's address and WIF belong to.
	Network string `json:"network"`

	Address string `json:"address"`

	// PublicKey is the compressed public key, hex encoded.
	PublicKey string `json:"publicKey"`

	// CreatedAt is a Unix timestamp in seconds.
	CreatedAt int64 `json:"createdAt"`

	Envelope *Envelope `json:"envelope"`
}

// Validate checks the fields every backend relies on.
func (sk *StoredKey) Validate() error {
	if sk == nil {
		return fmt.Errorf("stored key is nil")
	}
	if strings.TrimSpace(sk.ID) == "" {
		return fmt.Errorf("stored key id cannot be empty")
	}
	if sk.Envelope == nil {
		return fmt.Errorf("stored key %s has no envelope", sk.ID)
	}
	return nil
}

// Clone returns a deep copy of sk.
func (sk *StoredKey) Clone() *StoredKey {
	if sk == nil {
		return nil
	}
	out := *sk
	if sk.Envelope != nil {
		env := *sk.Envelope
		env.Salt = append([]byte(nil), sk.Envelope.Salt...)
		env.Nonce = append([]byte(nil), sk.Envelope.Nonce...)
		env.Ciphertext = append([]byte(nil), sk.Envelope.Ciphertext...)
		out.Envelope = &env
	}
	return &out
}

// SortStoredKeys orders keys by creation time, breaking ties by ID.
func SortStoredKeys(keys []*StoredKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CreatedAt != keys[j].CreatedAt {
			return keys[i].CreatedAt < keys[j].CreatedAt
		}
		return keys[i].ID < keys[j].ID
	})
}
