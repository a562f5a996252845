// Package file keeps the fleet in a JSON state file with a .bak sibling.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"crawlfleet/internal/model"
)

// FleetStore stores the fleet at path and its backup at BackupPath(path)
type FleetStore struct {
	path string
}

// NewFleetStore creates a file store for the given state path
func NewFleetStore(path string) *FleetStore {
	return &FleetStore{path: path}
}

// BackupPath returns the backup location for a state path:
// state.json -> state.bak.json, anything else gets a .bak suffix.
func BackupPath(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return path + ".bak"
	}
	return strings.TrimSuffix(path, ext) + ".bak" + ext
}

// Location returns the state file path
func (s *FleetStore) Location() string {
	return s.path
}

// Load reads the state file; a missing file is an empty fleet
func (s *FleetStore) Load(ctx context.Context) (*model.Fleet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.NewFleet(), nil
		}
		return nil, fmt.Errorf("failed to read state %s: %w", s.path, err)
	}

	fleet, err := model.Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt state %s: %w", s.path, err)
	}
	return fleet, nil
}

// Save rewrites the state file
func (s *FleetStore) Save(ctx context.Context, fleet *model.Fleet) error {
	return writeFleet(s.path, fleet)
}

// Backup rewrites the backup file
func (s *FleetStore) Backup(ctx context.Context, fleet *model.Fleet) error {
	return writeFleet(BackupPath(s.path), fleet)
}

// Clear removes the state file
func (s *FleetStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove state %s: %w", s.path, err)
	}
	return nil
}

func (s *FleetStore) Close() error {
	return nil
}

// writeFleet writes to a temp file in the same directory and renames it over
// path, so readers never observe a partially written state.
func writeFleet(path string, fleet *model.Fleet) error {
	data, err := model.Serialize(fleet)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace state %s: %w", path, err)
	}
	return nil
}
