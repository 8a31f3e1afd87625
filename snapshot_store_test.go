package spotcore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *EngineSnapshot {
	book := NewOrderBook("BTC_USDT", "BTC", "USDT")
	book.AddOrder(newTestOrder("b1", Buy, "99", "1", 0))
	book.AddOrder(newTestOrder("a1", Sell, "101", "2", 0))

	ledger := NewLedger()
	_ = ledger.Deposit("alice", "BTC", d("10"))
	_ = ledger.Deposit("bob", "USDT", d("100000"))

	return &EngineSnapshot{
		Orderbooks: []*OrderBookSnapshot{book.Snapshot()},
		Balances:   ledger.Snapshot(),
	}
}

func TestFileSnapshotStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	store := NewFileSnapshotStore(dir)

	snap := testSnapshot()
	require.NoError(t, store.Save(snap))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	// Compare through JSON so decimal representation differences don't
	// matter.
	want, err := json.Marshal(snap)
	require.NoError(t, err)
	got, err := json.Marshal(loaded)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestFileSnapshotStoreSaveReplacesPrevious(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	store := NewFileSnapshotStore(dir)

	require.NoError(t, store.Save(testSnapshot()))

	second := testSnapshot()
	second.Balances = nil
	require.NoError(t, store.Save(second))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded.Balances)

	// No leftover temp directory after the rename.
	_, err = os.Stat(dir + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileSnapshotStoreLoadMissingIsColdStart(t *testing.T) {
	store := NewFileSnapshotStore(filepath.Join(t.TempDir(), "never-written"))

	snap, err := store.Load()
	assert.NoError(t, err)
	assert.Nil(t, snap)
}

func TestFileSnapshotStoreDetectsCorruptPayload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	store := NewFileSnapshotStore(dir)
	require.NoError(t, store.Save(testSnapshot()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot.json"), []byte(`{"flipped":true}`), 0o600))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrSnapshotCorrupt)
}

func TestFileSnapshotStoreDetectsSchemaMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	store := NewFileSnapshotStore(dir)
	require.NoError(t, store.Save(testSnapshot()))

	metaPath := filepath.Join(dir, "metadata.json")
	metaBytes, err := os.ReadFile(metaPath)
	require.NoError(t, err)

	var meta SnapshotMetadata
	require.NoError(t, json.Unmarshal(metaBytes, &meta))
	meta.SchemaVersion = SnapshotSchemaVersion + 1
	metaBytes, err = json.Marshal(&meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(metaPath, metaBytes, 0o600))

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrSnapshotCorrupt)
}

func TestFileSnapshotStoreDetectsBadMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	store := NewFileSnapshotStore(dir)
	require.NoError(t, store.Save(testSnapshot()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte("not json"), 0o600))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrSnapshotCorrupt)
}
