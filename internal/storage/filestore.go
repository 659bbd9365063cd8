// Package storage keeps uploaded file bytes on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge is returned by Put when the body exceeds the size limit.
var ErrTooLarge = errors.New("blob exceeds size limit")

// FileStore writes blobs under Root, sharded by the first two characters of the ID.
type FileStore struct {
	Root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("blob dir is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir %q: %w", root, err)
	}
	return &FileStore{Root: root}, nil
}

// Put streams r into a new blob and returns its ID and size. At most limit
// bytes are accepted; a longer body leaves nothing behind and yields ErrTooLarge.
func (s *FileStore) Put(r io.Reader, limit int64) (string, int64, error) {
	id := uuid.NewString()
	path := s.path(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, fmt.Errorf("create blob shard: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, limit+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", 0, fmt.Errorf("write blob: %w", err)
	}
	if n > limit {
		return "", 0, ErrTooLarge
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("commit blob: %w", err)
	}
	return id, n, nil
}

// Open returns a reader for the blob. Missing blobs yield an error matching os.ErrNotExist.
func (s *FileStore) Open(id string) (*os.File, error) {
	if !validID(id) {
		return nil, os.ErrNotExist
	}
	return os.Open(s.path(id))
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (s *FileStore) Delete(id string) error {
	if !validID(id) {
		return nil
	}
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.Root, id[:2], id)
}

// validID keeps caller-supplied IDs from escaping Root.
func validID(id string) bool {
	if len(id) < 3 || strings.ContainsAny(id, `/\.`) {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
