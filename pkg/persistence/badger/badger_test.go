package badger

import (
	"os"
	"path/filepath"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence"
	"github.com/vrsc-agents/agent-sdk-go/pkg/persistence/persistencetest"
)

func TestBadgerPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.IKeyPersistence {
		bp, err := NewBadgerPersistence(t.TempDir(), zaptest.NewLogger(t))
		require.NoError(t, err)
		return bp
	})
}

func TestBadgerPersistence_Persistence_AcrossRestarts(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger := zaptest.NewLogger(t)

	bp1, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	key := persistencetest.SampleKey("agent-key-restart", 42)
	require.NoError(t, bp1.SaveKey(key))
	require.NoError(t, bp1.Close())

	bp2, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = bp2.Close() }()

	loaded, err := bp2.LoadKey(key.ID)
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
}

func TestBadgerPersistence_RejectsUnknownSchema(t *testing.T) {
	tmpDir := t.TempDir()

	db, err := badgerdb.Open(badgerdb.DefaultOptions(tmpDir).WithLogger(nil))
	require.NoError(t, err)
	require.NoError(t, db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keySchemaVersion), []byte("v0"))
	}))
	require.NoError(t, db.Close())

	_, err = NewBadgerPersistence(tmpDir, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestBadgerPersistence_ListSkipsCorruptEntries(t *testing.T) {
	bp, err := NewBadgerPersistence(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	require.NoError(t, bp.SaveKey(persistencetest.SampleKey("agent-key-good", 1)))
	require.NoError(t, bp.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(storedKeyKey("agent-key-bad"), []byte("{not json"))
	}))

	listed, err := bp.ListKeys()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "agent-key-good", listed[0].ID)
}

func TestBadgerPersistence_RelativePath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	tmpDir := t.TempDir()
	require.NoError(t, os.Chdir(tmpDir))
	defer func() { _ = os.Chdir(wd) }()

	bp, err := NewBadgerPersistence("keys", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, bp.Close())

	_, err = os.Stat(filepath.Join(tmpDir, "keys"))
	assert.NoError(t, err)
}
