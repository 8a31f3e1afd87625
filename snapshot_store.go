package spotcore

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

// SnapshotStore persists engine state for restart recovery.
type SnapshotStore interface {
	// Save durably replaces the prior snapshot with the given state.
	Save(snap *EngineSnapshot) error

	// Load reads the latest snapshot. (nil, nil) means no snapshot exists
	// and the engine should cold start. A snapshot that exists but fails
	// version, checksum, or parse validation returns ErrSnapshotCorrupt;
	// falling back to an empty ledger would destroy fund records, so the
	// caller must treat that as fatal.
	Load() (*EngineSnapshot, error)
}

const (
	snapshotFileName = "snapshot.json"
	metadataFileName = "metadata.json"
)

// FileSnapshotStore writes snapshots to a directory as snapshot.json plus
// metadata.json (schema version and CRC32). Writes go to a temp directory
// first and are renamed over the previous snapshot, so a crash mid-write
// leaves the old snapshot intact.
type FileSnapshotStore struct {
	dir string
}

// NewFileSnapshotStore creates a store rooted at the given directory.
func NewFileSnapshotStore(dir string) *FileSnapshotStore {
	return &FileSnapshotStore{dir: dir}
}

// Save serializes the snapshot and atomically replaces the prior one.
func (s *FileSnapshotStore) Save(snap *EngineSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpDir := s.dir + ".tmp"
	if err := os.RemoveAll(tmpDir); err != nil {
		return err
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(tmpDir, snapshotFileName), data, 0o600); err != nil {
		return err
	}

	meta := &SnapshotMetadata{
		SchemaVersion: SnapshotSchemaVersion,
		Timestamp:     time.Now().UnixNano(),
		EngineVersion: EngineVersion,
		Checksum:      crc32.ChecksumIEEE(data),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(tmpDir, metadataFileName), metaBytes, 0o600); err != nil {
		return err
	}

	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}
	return os.Rename(tmpDir, s.dir)
}

// Load reads and validates the latest snapshot.
func (s *FileSnapshotStore) Load() (*EngineSnapshot, error) {
	metaBytes, err := os.ReadFile(filepath.Join(s.dir, metadataFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("%w: invalid metadata: %v", ErrSnapshotCorrupt, err)
	}
	if meta.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d, want %d", ErrSnapshotCorrupt, meta.SchemaVersion, SnapshotSchemaVersion)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, snapshotFileName))
	if err != nil {
		return nil, fmt.Errorf("%w: missing payload: %v", ErrSnapshotCorrupt, err)
	}
	if crc32.ChecksumIEEE(data) != meta.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSnapshotCorrupt)
	}

	var snap EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: invalid payload: %v", ErrSnapshotCorrupt, err)
	}

	return &snap, nil
}
