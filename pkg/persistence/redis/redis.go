package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence"
)

// Key layout in Redis
const (
	keyPrefixStoredKey   = "agent:key:"
	keySchemaVersion     = "agent:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Redis has no prefix iteration without SCAN, so IDs are indexed in a set.
	keySetStoredKeys = "agent:keys:index"

	operationTimeout = 5 * time.Second
)

// RedisPersistence stores agent keys in Redis so several agent processes
// can share one keystore.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key for multi-tenant setups, e.g.
	// "team-a:" gives "team-a:agent:key:<id>".
	KeyPrefix string
}

// NewRedisPersistence connects to Redis and validates the schema marker.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis keystore initialized",
		"address", cfg.Address,
		"db", cfg.DB,
		"keyPrefix", cfg.KeyPrefix,
	)

	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	return r.keyPrefix + key
}

func (r *RedisPersistence) storedKeyKey(id string) string {
	return r.prefixKey(keyPrefixStoredKey + id)
}

func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}

	return nil
}

// SaveKey persists a stored key and indexes its ID in one transaction.
func (r *RedisPersistence) SaveKey(key *persistence.StoredKey) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("cannot save StoredKey: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalStoredKey(key)
	if err != nil {
		return fmt.Errorf("failed to marshal StoredKey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.storedKeyKey(key.ID), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetStoredKeys), key.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save StoredKey: %w", err)
	}
	return nil
}

// LoadKey retrieves a stored key
func (r *RedisPersistence) LoadKey(id string) (*persistence.StoredKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.storedKeyKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load StoredKey: %w", err)
	}

	key, err := persistence.UnmarshalStoredKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal StoredKey: %w", err)
	}
	return key, nil
}

// ListKeys returns all stored keys sorted by creation time. Index entries
// whose value has disappeared are pruned.
func (r *RedisPersistence) ListKeys() ([]*persistence.StoredKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	indexKey := r.prefixKey(keySetStoredKeys)

	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list StoredKey ids: %w", err)
	}

	if len(ids) == 0 {
		return []*persistence.StoredKey{}, nil
	}

	redisKeys := make([]string, len(ids))
	for i, id := range ids {
		redisKeys[i] = r.storedKeyKey(id)
	}

	values, err := r.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch StoredKeys: %w", err)
	}

	keys := make([]*persistence.StoredKey, 0, len(values))
	for i, val := range values {
		if val == nil {
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for StoredKey", "key", redisKeys[i])
			continue
		}

		key, err := persistence.UnmarshalStoredKey([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal StoredKey, skipping",
				"key", redisKeys[i], "error", err)
			continue
		}

		keys = append(keys, key)
	}

	persistence.SortStoredKeys(keys)
	return keys, nil
}

// DeleteKey removes a stored key and its index entry
func (r *RedisPersistence) DeleteKey(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.storedKeyKey(id))
	pipe.SRem(ctx, r.prefixKey(keySetStoredKeys), id)

	_, err := pipe.Exec(ctx)
	return err
}

// Close shuts down the Redis client.
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis keystore closed")
	return nil
}

// HealthCheck pings Redis and checks the schema marker is present.
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
