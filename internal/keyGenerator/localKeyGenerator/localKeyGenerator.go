package localKeyGenerator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vrsc-agents/agent-sdk-go/internal/keyGenerator"
	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keys"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signature"
)

// keyEntry stores the key material and metadata for a key
type keyEntry struct {
	key       *keys.KeyMaterial
	keyName   string
	aliasName string
}

type LocalKeyGenerator struct {
	logger   *zap.Logger
	params   *config.NetworkParameters
	keyStore map[string]*keyEntry // keyId -> keyEntry
	mu       sync.RWMutex
}

func NewLocalKeyGenerator(params *config.NetworkParameters, logger *zap.Logger) *LocalKeyGenerator {
	return &LocalKeyGenerator{
		logger:   logger,
		params:   params,
		keyStore: make(map[string]*keyEntry),
	}
}

func (l *LocalKeyGenerator) GenerateKey(ctx context.Context, keyName string, aliasName string) (*keyGenerator.GeneratedKey, error) {
	km, err := keys.Generate(l.params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	keyId := fmt.Sprintf("local-key-%s", uuid.New().String())
	if err := l.LoadKey(keyId, km, keyName, aliasName); err != nil {
		return nil, err
	}
	return toGeneratedKey(keyId, km), nil
}

func (l *LocalKeyGenerator) GetKeyById(ctx context.Context, keyId string) (*keyGenerator.GeneratedKey, error) {
	entry, err := l.get(keyId)
	if err != nil {
		return nil, err
	}

	l.logger.Debug("Retrieved key by ID",
		zap.String("keyId", keyId),
		zap.String("address", entry.key.Address()),
	)
	return toGeneratedKey(keyId, entry.key), nil
}

func (l *LocalKeyGenerator) SignDigest(ctx context.Context, keyId string, digest [32]byte) (*signature.RecoverableSignature, error) {
	entry, err := l.get(keyId)
	if err != nil {
		return nil, err
	}

	priv := entry.key.PrivateKey()
	defer priv.Zero()

	sig, err := signature.Sign(digest, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest with key %s: %w", keyId, err)
	}

	l.logger.Debug("Signed digest",
		zap.String("keyId", keyId),
		zap.Uint8("recoveryId", sig.RecoveryID),
	)
	return sig, nil
}

// LoadKey adds existing key material to the store.
func (l *LocalKeyGenerator) LoadKey(keyId string, km *keys.KeyMaterial, keyName string, aliasName string) error {
	if km == nil {
		return fmt.Errorf("key material cannot be nil")
	}
	if km.NetworkParameters().Network != l.params.Network {
		return fmt.Errorf("key %s belongs to network %s, generator serves %s", keyId, km.NetworkParameters().Network, l.params.Network)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.keyStore[keyId]; exists {
		return fmt.Errorf("key with ID %s already exists", keyId)
	}
	l.keyStore[keyId] = &keyEntry{
		key:       km,
		keyName:   keyName,
		aliasName: aliasName,
	}

	l.logger.Info("Loaded key into store",
		zap.String("keyId", keyId),
		zap.String("keyName", keyName),
		zap.String("aliasName", aliasName),
		zap.String("address", km.Address()),
	)
	return nil
}

// LoadWIF decodes wif and adds it to the store under a fresh key ID.
func (l *LocalKeyGenerator) LoadWIF(wif string, keyName string, aliasName string) (*keyGenerator.GeneratedKey, error) {
	km, err := keys.FromWIF(wif, l.params)
	if err != nil {
		return nil, fmt.Errorf("failed to decode wif: %w", err)
	}
	keyId := fmt.Sprintf("local-key-%s", uuid.New().String())
	if err := l.LoadKey(keyId, km, keyName, aliasName); err != nil {
		return nil, err
	}
	return toGeneratedKey(keyId, km), nil
}

func (l *LocalKeyGenerator) GetKeyCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keyStore)
}

func (l *LocalKeyGenerator) KeyExists(keyId string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, exists := l.keyStore[keyId]
	return exists
}

// GetKeyIdByAlias returns the ID of a key with the given alias.
func (l *LocalKeyGenerator) GetKeyIdByAlias(alias string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for keyId, entry := range l.keyStore {
		if entry.aliasName == alias {
			return keyId, true
		}
	}
	return "", false
}

func (l *LocalKeyGenerator) get(keyId string) (*keyEntry, error) {
	l.mu.RLock()
	entry, exists := l.keyStore[keyId]
	l.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("key with ID %s not found", keyId)
	}
	return entry, nil
}

func toGeneratedKey(keyId string, km *keys.KeyMaterial) *keyGenerator.GeneratedKey {
	return &keyGenerator.GeneratedKey{
		KeyId:     keyId,
		PublicKey: km.PublicKey(),
		Address:   km.Address(),
	}
}
