package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// DefaultLockFile is created in a collection while a batch runs.
const DefaultLockFile = ".ddrcsv.lock"

// LockCollection creates the lock file name inside collectionPath. It fails
// with ErrCollectionLocked when the file already exists. The returned
// function removes the lock.
func LockCollection(collectionPath, name string) (func() error, error) {
	if name == "" {
		name = DefaultLockFile
	}
	path := filepath.Join(collectionPath, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		owner, _ := os.ReadFile(path)
		return nil, fmt.Errorf("%s (%s): %w", filepath.Base(collectionPath), owner, ErrCollectionLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", collectionPath, err)
	}

	host, _ := os.Hostname()
	fmt.Fprintf(f, "pid %d on %s since %s", os.Getpid(), host, time.Now().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("lock %s: %w", collectionPath, err)
	}

	return func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("unlock %s: %w", collectionPath, err)
		}
		return nil
	}, nil
}
