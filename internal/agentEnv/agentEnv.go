// Package agentEnv wires configuration, key storage and signing backends
// together for the agent binaries.
package agentEnv

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	internalAws "github.com/vrsc-agents/agent-sdk-go/internal/aws"
	"github.com/vrsc-agents/agent-sdk-go/internal/keyGenerator"
	"github.com/vrsc-agents/agent-sdk-go/internal/keyGenerator/awsKms"
	"github.com/vrsc-agents/agent-sdk-go/internal/keyGenerator/localKeyGenerator"
	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keystore"
	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence"
	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence/badger"
	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence/memory"
	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence/redis"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

// LoadConfig loads the agent config from path (optional) and the environment.
// A non-empty network overrides the configured one.
func LoadConfig(path, network string) (*config.AgentConfig, *config.NetworkParameters, error) {
	cfg, err := config.LoadAgentConfig(path)
	if err != nil {
		return nil, nil, err
	}
	if network != "" {
		cfg.Network = config.Network(network)
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	params, err := cfg.NetworkParameters()
	if err != nil {
		return nil, nil, err
	}
	return cfg, params, nil
}

// OpenPersistence opens the key persistence backend selected by cfg.
func OpenPersistence(cfg *config.KeystoreConfig, logger *zap.Logger) (persistence.IKeyPersistence, error) {
	switch cfg.Type {
	case config.KeystoreType_Memory, "":
		return memory.NewMemoryPersistence(), nil
	case config.KeystoreType_Badger:
		return badger.NewBadgerPersistence(cfg.Path, logger)
	case config.KeystoreType_Redis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported keystore type %q", cfg.Type)
	}
}

// OpenKeyStore opens the configured backend and wraps it in a KeyStore. The
// returned close func releases the backend.
func OpenKeyStore(cfg *config.AgentConfig, params *config.NetworkParameters, logger *zap.Logger) (*keystore.KeyStore, func() error, error) {
	store, err := OpenPersistence(&cfg.Keystore, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s keystore: %w", cfg.Keystore.Type, err)
	}
	ks, err := keystore.NewKeyStore(store, params, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return ks, store.Close, nil
}

// NewKMSKeyGenerator loads AWS credentials and returns a KMS-backed generator.
func NewKMSKeyGenerator(ctx context.Context, cfg *config.KMSConfig, params *config.NetworkParameters, logger *zap.Logger) (*awsKms.AWSKMSKeyGenerator, error) {
	awsCfg, err := internalAws.LoadAWSConfig(ctx, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	identity, err := internalAws.GetCallerIdentity(ctx, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve AWS caller identity: %w", err)
	}
	logger.Sugar().Debugw("Using AWS credentials",
		"account", derefString(identity.Account),
		"arn", derefString(identity.Arn),
		"region", awsCfg.Region,
	)

	return awsKms.NewAWSKMSKeyGenerator(awsCfg, awsCfg.Region, params, logger), nil
}

// SignerOptions selects where the signing key comes from. Exactly one of
// WIF, KeyID or UseKMS should be set.
type SignerOptions struct {
	WIF string

	// KeyID and Passphrase unlock a key from the configured keystore.
	KeyID      string
	Passphrase string

	// UseKMS signs with the AWS KMS key named in the config.
	UseKMS bool
}

// ResolveSigner builds a signer for the key described by opts.
func ResolveSigner(ctx context.Context, cfg *config.AgentConfig, params *config.NetworkParameters, opts SignerOptions, logger *zap.Logger) (*signer.Signer, error) {
	generator, keyId, err := resolveKeyGenerator(ctx, cfg, params, opts, logger)
	if err != nil {
		return nil, err
	}
	ds, err := keyGenerator.NewDigestSigner(ctx, generator, keyId)
	if err != nil {
		return nil, err
	}
	return signer.NewSigner(ds, params, logger)
}

func resolveKeyGenerator(ctx context.Context, cfg *config.AgentConfig, params *config.NetworkParameters, opts SignerOptions, logger *zap.Logger) (keyGenerator.IKeyGenerator, string, error) {
	sources := 0
	for _, set := range []bool{opts.WIF != "", opts.KeyID != "", opts.UseKMS} {
		if set {
			sources++
		}
	}
	if sources == 0 {
		return nil, "", fmt.Errorf("no signing key: provide a WIF, a keystore key id or enable KMS")
	}
	if sources > 1 {
		return nil, "", fmt.Errorf("multiple signing keys given: provide only one of WIF, keystore key id or KMS")
	}

	if opts.UseKMS {
		if cfg.KMS.KeyID == "" {
			return nil, "", fmt.Errorf("KMS key id is not configured (set %s)", config.EnvAgentKMSKeyID)
		}
		generator, err := NewKMSKeyGenerator(ctx, &cfg.KMS, params, logger)
		if err != nil {
			return nil, "", err
		}
		return generator, cfg.KMS.KeyID, nil
	}

	local := localKeyGenerator.NewLocalKeyGenerator(params, logger)
	if opts.WIF != "" {
		key, err := local.LoadWIF(opts.WIF, "agent", "")
		if err != nil {
			return nil, "", err
		}
		return local, key.KeyId, nil
	}

	ks, closeStore, err := OpenKeyStore(cfg, params, logger)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = closeStore() }()

	stored, err := ks.Get(opts.KeyID)
	if err != nil {
		return nil, "", err
	}
	km, err := ks.Unlock(opts.KeyID, opts.Passphrase)
	if err != nil {
		return nil, "", err
	}
	if err := local.LoadKey(stored.ID, km, stored.Label, ""); err != nil {
		return nil, "", err
	}
	return local, stored.ID, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
