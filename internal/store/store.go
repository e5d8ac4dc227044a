// Package store persists Entity and File records as JSON documents inside a
// collection repository.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/ddrcsv/internal/models"
)

// ErrNotFound is returned when a record file does not exist.
var ErrNotFound = errors.New("record not found")

// Store reads and writes record JSON files.
type Store struct{}

// New returns a Store.
func New() *Store { return &Store{} }

// LoadEntity reads an entity.json file.
func (s *Store) LoadEntity(path string) (*models.Entity, error) {
	var e models.Entity
	if err := load(path, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// SaveEntity writes e to path.
func (s *Store) SaveEntity(path string, e *models.Entity) error {
	return save(path, e)
}

// LoadFile reads a file metadata document.
func (s *Store) LoadFile(path string) (*models.File, error) {
	var f models.File
	if err := load(path, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SaveFile writes f to path.
func (s *Store) SaveFile(path string, f *models.File) error {
	return save(path, f)
}

// Exists reports whether a record file is present.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func load(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// save writes through a temp file so readers never see a partial document.
func save(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
