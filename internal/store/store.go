package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/smartcrop/sensor-node/internal/model"
)

// Store keeps the latest snapshot on disk so the node can show its last reading
// after a restart, before the first cycle completes.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Load() (*model.Snapshot, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var snap model.Snapshot
	if err := json.NewDecoder(file).Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *Store) Save(snap *model.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmpPath := s.path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		file.Close()
		return err
	}
	file.Sync()
	file.Close()

	return os.Rename(tmpPath, s.path)
}

func (s *Store) Name() string { return "latest-file" }

func (s *Store) Consume(_ context.Context, snap *model.Snapshot) error {
	return s.Save(snap)
}
