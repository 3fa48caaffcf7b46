package agentEnv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vrsc-agents/agent-sdk-go/pkg/config"
	"github.com/vrsc-agents/agent-sdk-go/pkg/keystore"
	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence/persistencetest"
	"github.com/vrsc-agents/agent-sdk-go/pkg/signer"
)

const (
	fixtureWIF     = "Up3VgAKQio8guDjySfZTAnh8RbBZmdLt42AbuvVMB7SRabip7y9r"
	fixtureAddress = "RLNcgZpJgK6Uh3zXgkm2z7As5nJJVt6HXr"
)

func testConfig(t *testing.T, ksType config.KeystoreType) (*config.AgentConfig, *config.NetworkParameters) {
	cfg := config.DefaultAgentConfig()
	cfg.Keystore.Type = ksType
	if ksType == config.KeystoreType_Badger {
		cfg.Keystore.Path = t.TempDir()
	}
	params, err := cfg.NetworkParameters()
	require.NoError(t, err)
	return cfg, params
}

func Test_LoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: test\nidentity: iEZx38LQVtZH3FrAiNkRMNbuWy7vKrGX8x\n"), 0600))

	cfg, params, err := LoadConfig(path, "")
	require.NoError(t, err)
	assert.Equal(t, config.Network_Test, cfg.Network)
	assert.Equal(t, config.ChainName_Test, params.ChainName)

	cfg, params, err = LoadConfig(path, "VRSC")
	require.NoError(t, err)
	assert.Equal(t, config.Network_Main, cfg.Network)
	assert.Equal(t, config.Network_Main, params.Network)

	_, _, err = LoadConfig(path, "regtest")
	assert.Error(t, err)

	_, _, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)
}

func Test_OpenPersistence(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("memory", func(t *testing.T) {
		store, err := OpenPersistence(&config.KeystoreConfig{Type: config.KeystoreType_Memory}, logger)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		require.NoError(t, store.SaveKey(persistencetest.SampleKey("k1", 1)))
	})

	t.Run("badger", func(t *testing.T) {
		store, err := OpenPersistence(&config.KeystoreConfig{Type: config.KeystoreType_Badger, Path: t.TempDir()}, logger)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		assert.NoError(t, store.HealthCheck())
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, err := OpenPersistence(&config.KeystoreConfig{
			Type:  config.KeystoreType_Redis,
			Redis: config.RedisConfig{Address: mr.Addr(), KeyPrefix: "agents:"},
		}, logger)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.SaveKey(persistencetest.SampleKey("k1", 1)))
		assert.True(t, mr.Exists("agents:agent:key:k1"))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := OpenPersistence(&config.KeystoreConfig{Type: "s3"}, logger)
		assert.Error(t, err)
	})
}

func Test_ResolveSigner(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("Should sign with a WIF", func(t *testing.T) {
		cfg, params := testConfig(t, config.KeystoreType_Memory)

		s, err := ResolveSigner(ctx, cfg, params, SignerOptions{WIF: fixtureWIF}, logger)
		require.NoError(t, err)
		assert.Equal(t, fixtureAddress, s.Address())

		sig, err := s.SignMessage(ctx, "hello world")
		require.NoError(t, err)
		valid, err := signer.VerifyMessage(fixtureAddress, "hello world", sig, config.Network_Test)
		require.NoError(t, err)
		assert.True(t, valid)
	})

	t.Run("Should unlock a keystore key", func(t *testing.T) {
		cfg, params := testConfig(t, config.KeystoreType_Badger)

		ks, closeStore, err := OpenKeyStore(cfg, params, logger)
		require.NoError(t, err)
		require.NoError(t, ks.SetKDFParams(keystore.KDFParams{Time: 1, MemoryKiB: 1024, Threads: 1}))
		stored, err := ks.Import(fixtureWIF, "primary", "hunter2")
		require.NoError(t, err)
		require.NoError(t, closeStore())

		s, err := ResolveSigner(ctx, cfg, params, SignerOptions{KeyID: stored.ID, Passphrase: "hunter2"}, logger)
		require.NoError(t, err)
		assert.Equal(t, fixtureAddress, s.Address())

		_, err = ResolveSigner(ctx, cfg, params, SignerOptions{KeyID: stored.ID, Passphrase: "wrong"}, logger)
		assert.ErrorIs(t, err, keystore.ErrAuthFailed)

		_, err = ResolveSigner(ctx, cfg, params, SignerOptions{KeyID: "agent-key-missing", Passphrase: "hunter2"}, logger)
		assert.ErrorIs(t, err, keystore.ErrKeyNotFound)
	})

	t.Run("Should reject ambiguous sources", func(t *testing.T) {
		cfg, params := testConfig(t, config.KeystoreType_Memory)

		_, err := ResolveSigner(ctx, cfg, params, SignerOptions{}, logger)
		assert.ErrorContains(t, err, "no signing key")

		_, err = ResolveSigner(ctx, cfg, params, SignerOptions{WIF: fixtureWIF, UseKMS: true}, logger)
		assert.ErrorContains(t, err, "multiple signing keys")
	})

	t.Run("Should require a KMS key id", func(t *testing.T) {
		cfg, params := testConfig(t, config.KeystoreType_Memory)

		_, err := ResolveSigner(ctx, cfg, params, SignerOptions{UseKMS: true}, logger)
		assert.ErrorContains(t, err, config.EnvAgentKMSKeyID)
	})
}
