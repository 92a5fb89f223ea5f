package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cheet0dust/The-Nothing-Club/internal/models"
)

// snapshotVersion guards against loading snapshots written by an
// incompatible layout.
const snapshotVersion = 1

// Snapshot is the complete persisted state of the session store. It is an
// opaque blob from the caller's perspective, stored under a single logical
// key (the configured path).
type Snapshot struct {
	Version int                            `json:"version"`
	Days    map[string]*models.DailyBucket `json:"days"`
	Global  models.GlobalAggregate         `json:"global"`
}

// writeSnapshot persists the snapshot with an atomic replace: the blob is
// written to a temporary file in the same directory, synced, then renamed
// over the target so readers never observe a partial write.
func writeSnapshot(path string, snap *Snapshot) error {
	snap.Version = snapshotVersion

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary snapshot file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// readSnapshot loads the last persisted snapshot. A missing file returns
// (nil, nil): starting empty is not an error.
func readSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from service configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Days == nil {
		snap.Days = make(map[string]*models.DailyBucket)
	}

	return &snap, nil
}
