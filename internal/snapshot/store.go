// Package snapshot persists pool state between keeper runs.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"optionPool/internal/model"
)

// Snapshot is a pool state plus the time of the run that produced it.
type Snapshot struct {
	LastRun   uint64           `json:"last_run"`
	UpdatedAt string           `json:"updated_at"`
	Pool      *model.PoolState `json:"pool"`
}

// Store persists snapshots to disk.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path.
func (s *Store) Path() string { return s.path }

// Load returns the stored snapshot; ok is false when none exists yet.
func (s *Store) Load() (Snapshot, bool, error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return Snapshot{}, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Pool == nil {
		return Snapshot{}, false, fmt.Errorf("snapshot has no pool state")
	}
	return snap, true, nil
}

// Save writes the snapshot atomically through a temp file.
func (s *Store) Save(st *model.PoolState, lastRun uint64) error {
	if st == nil {
		return fmt.Errorf("save snapshot: pool state is nil")
	}
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	snap := Snapshot{
		LastRun:   lastRun,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Pool:      st,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
