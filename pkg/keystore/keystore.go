package keystore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrAuthFailed      = errors.New("passphrase does not unlock key")
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")
)

const keyIdPrefix = "agent-key-"

// KeyStore encrypts agent keys under a passphrase and keeps them in a
// persistence backend. Decrypted key material is never cached.
type KeyStore struct {
	store  persistence.IKeyPersistence
	params *config.NetworkParameters
	logger *zap.Logger

	mu  sync.RWMutex
	kdf KDFParams
	now func() time.Time
}

func NewKeyStore(store persistence.IKeyPersistence, params *config.NetworkParameters, logger *zap.Logger) (*KeyStore, error) {
	if store == nil {
		return nil, fmt.Errorf("persistence cannot be nil")
	}
	if params == nil {
		return nil, fmt.Errorf("network parameters cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &KeyStore{
		store:  store,
		params: params,
		logger: logger,
		kdf:    DefaultKDFParams,
		now:    time.Now,
	}, nil
}

// SetKDFParams changes the argon2id cost used for keys stored from now on.
// Existing envelopes keep the parameters they were sealed with.
func (ks *KeyStore) SetKDFParams(p KDFParams) error {
	if err := p.validate(); err != nil {
		return err
	}
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.kdf = p
	return nil
}

// Create generates a fresh key and stores it encrypted under passphrase.
func (ks *KeyStore) Create(label, passphrase string) (*persistence.StoredKey, error) {
	km, err := keys.Generate(ks.params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return ks.Save(km, label, passphrase)
}

// Import decodes wif with this store's network parameters and stores it.
// Main and test share WIF and address versions, so a WIF cannot name its
// network and is accepted by stores for either.
func (ks *KeyStore) Import(wif, label, passphrase string) (*persistence.StoredKey, error) {
	km, err := keys.FromWIF(wif, ks.params)
	if err != nil {
		return nil, fmt.Errorf("failed to import wif: %w", err)
	}
	return ks.Save(km, label, passphrase)
}

// Save encrypts km under passphrase as a new record.
func (ks *KeyStore) Save(km *keys.KeyMaterial, label, passphrase string) (*persistence.StoredKey, error) {
	if km == nil {
		return nil, fmt.Errorf("key material cannot be nil")
	}
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if km.NetworkParameters().Network != ks.params.Network {
		return nil, fmt.Errorf("key belongs to network %s, keystore serves %s", km.NetworkParameters().Network, ks.params.Network)
	}

	ks.mu.RLock()
	kdf := ks.kdf
	createdAt := ks.now().Unix()
	ks.mu.RUnlock()

	pub := km.PublicKey()
	sk := &persistence.StoredKey{
		ID:        keyIdPrefix + uuid.New().String(),
		Label:     label,
		Network:   string(ks.params.Network),
		Address:   km.Address(),
		PublicKey: fmt.Sprintf("%x", pub[:]),
		CreatedAt: createdAt,
	}

	wif := []byte(km.WIF())
	defer zero(wif)

	env, err := seal(wif, []byte(passphrase), additionalData(sk), kdf)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key: %w", err)
	}
	sk.Envelope = env

	if err := ks.store.SaveKey(sk); err != nil {
		return nil, fmt.Errorf("failed to persist key %s: %w", sk.ID, err)
	}

	ks.logger.Sugar().Infow("Stored agent key",
		"id", sk.ID,
		"label", label,
		"address", sk.Address,
		"network", sk.Network,
	)
	return sk, nil
}

// Unlock decrypts the key stored under id.
func (ks *KeyStore) Unlock(id, passphrase string) (*keys.KeyMaterial, error) {
	sk, err := ks.Get(id)
	if err != nil {
		return nil, err
	}
	if sk.Network != string(ks.params.Network) {
		return nil, fmt.Errorf("key %s belongs to network %s, keystore serves %s", id, sk.Network, ks.params.Network)
	}

	wif, err := open(sk.Envelope, []byte(passphrase), additionalData(sk))
	if err != nil {
		if errors.Is(err, ErrAuthFailed) {
			ks.logger.Sugar().Warnw("Failed to unlock agent key", "id", id)
		}
		return nil, err
	}
	defer zero(wif)

	km, err := keys.FromWIF(string(wif), ks.params)
	if err != nil {
		return nil, fmt.Errorf("stored key %s is corrupt: %w", id, err)
	}
	if km.Address() != sk.Address {
		return nil, fmt.Errorf("stored key %s decrypts to address %s, record says %s", id, km.Address(), sk.Address)
	}
	return km, nil
}

// Get returns the public record for id.
func (ks *KeyStore) Get(id string) (*persistence.StoredKey, error) {
	sk, err := ks.store.LoadKey(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", id, err)
	}
	if sk == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return sk, nil
}

// List returns all stored keys, oldest first.
func (ks *KeyStore) List() ([]*persistence.StoredKey, error) {
	return ks.store.ListKeys()
}

// Delete removes id. Unknown ids return ErrKeyNotFound.
func (ks *KeyStore) Delete(id string) error {
	if _, err := ks.Get(id); err != nil {
		return err
	}
	if err := ks.store.DeleteKey(id); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", id, err)
	}
	ks.logger.Sugar().Infow("Deleted agent key", "id", id)
	return nil
}

// additionalData binds the envelope to the record's identity.
func additionalData(sk *persistence.StoredKey) []byte {
	return []byte(sk.ID + "|" + sk.Network + "|" + sk.Address)
}
