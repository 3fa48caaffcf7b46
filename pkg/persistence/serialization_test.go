package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStoredKey() *StoredKey {
	return &StoredKey{
		ID:        "agent-key-7d0b6bb4-1f0e-4d55-8d7c-0a3b44c7b0a1",
		Label:     "trading-agent",
		Network:   "test",
		Address:   "RLNcgZpJgK6Uh3zXgkm2z7As5nJJVt6HXr",
		PublicKey: "031b84c5567b126440995d3ed5aaba0565d71e1834604819ff9c17f5e9d5dd078f",
		CreatedAt: 1760000000,
		Envelope: &Envelope{
			KDF:        KDF_Argon2id,
			Time:       1,
			MemoryKiB:  64 * 1024,
			Threads:    4,
			Salt:       []byte{1, 2, 3},
			Nonce:      []byte{4, 5, 6},
			Ciphertext: []byte{7, 8, 9},
		},
	}
}

func TestMarshalUnmarshalStoredKey_RoundTrip(t *testing.T) {
	original := sampleStoredKey()

	data, err := MarshalStoredKey(original)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	restored, err := UnmarshalStoredKey(data)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestMarshalStoredKey_NilInput(t *testing.T) {
	_, err := MarshalStoredKey(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil StoredKey")
}

func TestUnmarshalStoredKey_InvalidInput(t *testing.T) {
	_, err := UnmarshalStoredKey([]byte(`{"createdAt": "yesterday"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")

	_, err = UnmarshalStoredKey(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestStoredKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(sk *StoredKey) *StoredKey
		wantErr string
	}{
		{name: "valid", mutate: func(sk *StoredKey) *StoredKey { return sk }},
		{name: "nil", mutate: func(*StoredKey) *StoredKey { return nil }, wantErr: "nil"},
		{name: "blank id", mutate: func(sk *StoredKey) *StoredKey { sk.ID = "  "; return sk }, wantErr: "id cannot be empty"},
		{name: "no envelope", mutate: func(sk *StoredKey) *StoredKey { sk.Envelope = nil; return sk }, wantErr: "no envelope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mutate(sampleStoredKey()).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStoredKey_CloneIsDeep(t *testing.T) {
	original := sampleStoredKey()
	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Label = "changed"
	clone.Envelope.Ciphertext[0] = 0xff
	clone.Envelope.Salt[0] = 0xff

	assert.Equal(t, "trading-agent", original.Label)
	assert.Equal(t, byte(7), original.Envelope.Ciphertext[0])
	assert.Equal(t, byte(1), original.Envelope.Salt[0])
	assert.Nil(t, (*StoredKey)(nil).Clone())
}

func TestSortStoredKeys(t *testing.T) {
	keys := []*StoredKey{
		{ID: "c", CreatedAt: 2},
		{ID: "b", CreatedAt: 1},
		{ID: "a", CreatedAt: 2},
	}
	SortStoredKeys(keys)
	assert.Equal(t, "b", keys[0].ID)
	assert.Equal(t, "a", keys[1].ID)
	assert.Equal(t, "c", keys[2].ID)
}
