package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore maps blob keys to files under a root directory. Keys map
// to relative paths verbatim, so the on-disk layout mirrors the bucket
// layout an S3 deployment would have.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Put writes data to the file backing key, creating parent directories
// as needed.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte) error {
	path, err := s.blobPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create blob directory for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	return nil
}

// Get reads the blob under key. Returns ErrNotFound when no file
// exists.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.blobPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.blobPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// Bucket returns the root directory standing in for a bucket name in
// output rows.
func (s *LocalStore) Bucket() string {
	return s.root
}

func (s *LocalStore) blobPath(key string) (string, error) {
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob keys cannot begin with /")
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}
