// Package persistencetest holds the behaviour every IKeyPersistence backend
// must share, run by each backend's own tests.
package persistencetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence"
)

// SampleKey returns a populated StoredKey with a dummy envelope.
func SampleKey(id string, createdAt int64) *persistence.StoredKey {
	return &persistence.StoredKey{
		ID:        id,
		Label:     "label-" + id,
		Network:   "test",
		Address:   "RLNcgZpJgK6Uh3zXgkm2z7As5nJJVt6HXr",
		PublicKey: "031b84c5567b126440995d3ed5aaba0565d71e1834604819ff9c17f5e9d5dd078f",
		CreatedAt: createdAt,
		Envelope: &persistence.Envelope{
			KDF:        persistence.KDF_Argon2id,
			Time:       1,
			MemoryKiB:  64 * 1024,
			Threads:    4,
			Salt:       []byte{1, 2, 3, 4},
			Nonce:      []byte{5, 6, 7, 8},
			Ciphertext: []byte{9, 10, 11, 12},
		},
	}
}

// Run exercises a backend. open must return a fresh, empty store; Run closes it.
func Run(t *testing.T, open func(t *testing.T) persistence.IKeyPersistence) {
	t.Run("SaveAndLoad", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		key := SampleKey("agent-key-1", 100)
		require.NoError(t, p.SaveKey(key))

		loaded, err := p.LoadKey(key.ID)
		require.NoError(t, err)
		assert.Equal(t, key, loaded)
	})

	t.Run("Load_NotFound", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		loaded, err := p.LoadKey("agent-key-missing")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Save_Invalid", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		require.Error(t, p.SaveKey(nil))

		noEnvelope := SampleKey("agent-key-2", 100)
		noEnvelope.Envelope = nil
		require.Error(t, p.SaveKey(noEnvelope))
	})

	t.Run("Save_Overwrites", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		key := SampleKey("agent-key-3", 100)
		require.NoError(t, p.SaveKey(key))
		key.Label = "renamed"
		require.NoError(t, p.SaveKey(key))

		loaded, err := p.LoadKey(key.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", loaded.Label)

		listed, err := p.ListKeys()
		require.NoError(t, err)
		assert.Len(t, listed, 1)
	})

	t.Run("Delete", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		key := SampleKey("agent-key-4", 100)
		require.NoError(t, p.SaveKey(key))
		require.NoError(t, p.DeleteKey(key.ID))

		loaded, err := p.LoadKey(key.ID)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		// idempotent
		require.NoError(t, p.DeleteKey(key.ID))
	})

	t.Run("List_Sorted", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		listed, err := p.ListKeys()
		require.NoError(t, err)
		assert.Empty(t, listed)

		require.NoError(t, p.SaveKey(SampleKey("agent-key-c", 300)))
		require.NoError(t, p.SaveKey(SampleKey("agent-key-a", 100)))
		require.NoError(t, p.SaveKey(SampleKey("agent-key-b", 100)))

		listed, err = p.ListKeys()
		require.NoError(t, err)
		require.Len(t, listed, 3)
		assert.Equal(t, "agent-key-a", listed[0].ID)
		assert.Equal(t, "agent-key-b", listed[1].ID)
		assert.Equal(t, "agent-key-c", listed[2].ID)
	})

	t.Run("Mutation_Isolated", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		key := SampleKey("agent-key-5", 100)
		require.NoError(t, p.SaveKey(key))
		key.Envelope.Ciphertext[0] = 0xff

		loaded, err := p.LoadKey(key.ID)
		require.NoError(t, err)
		assert.Equal(t, byte(9), loaded.Envelope.Ciphertext[0])
		loaded.Envelope.Salt[0] = 0xff

		again, err := p.LoadKey(key.ID)
		require.NoError(t, err)
		assert.Equal(t, byte(1), again.Envelope.Salt[0])
	})

	t.Run("HealthCheck_And_Close", func(t *testing.T) {
		p := open(t)
		require.NoError(t, p.HealthCheck())

		require.NoError(t, p.Close())
		require.NoError(t, p.Close())

		err := p.HealthCheck()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")

		err = p.SaveKey(SampleKey("agent-key-6", 100))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "closed")

		_, err = p.LoadKey("agent-key-6")
		require.Error(t, err)
		_, err = p.ListKeys()
		require.Error(t, err)
		require.Error(t, p.DeleteKey("agent-key-6"))
	})

	t.Run("ThreadSafety", func(t *testing.T) {
		p := open(t)
		defer func() { _ = p.Close() }()

		var wg sync.WaitGroup
		numGoroutines := 8
		numOperations := 25

		for i := 0; i < numGoroutines; i++ {
			wg.Add(2)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < numOperations; j++ {
					key := SampleKey(fmt.Sprintf("agent-key-%d-%d", id, j), int64(j))
					assert.NoError(t, p.SaveKey(key))
				}
			}(i)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < numOperations; j++ {
					_, err := p.LoadKey(fmt.Sprintf("agent-key-%d-%d", id, j))
					assert.NoError(t, err)
					_, err = p.ListKeys()
					assert.NoError(t, err)
				}
			}(i)
		}
		wg.Wait()

		listed, err := p.ListKeys()
		require.NoError(t, err)
		assert.Len(t, listed, numGoroutines*numOperations)
	})
}
