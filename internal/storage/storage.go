package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// ErrObjectNotFound is returned when a path has no stored object.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidPath is returned for empty or escaping object paths.
var ErrInvalidPath = errors.New("invalid object path")

// ObjectStore is the bucket surface used for ticket attachments.
type ObjectStore interface {
	Upload(ctx context.Context, objectPath string, r io.Reader) error
	Open(ctx context.Context, objectPath string) (io.ReadCloser, error)
	Remove(ctx context.Context, objectPath string) error
}

// FileStore keeps objects under <root>/<bucket>/<objectPath>.
type FileStore struct {
	dir string
}

// NewFileStore creates the bucket directory if needed.
func NewFileStore(root, bucket string) (*FileStore, error) {
	dir := filepath.Join(root, bucket)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Upload writes the object atomically; readers never observe a partial file.
func (s *FileStore) Upload(ctx context.Context, objectPath string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	if err := atomic.WriteFile(full, r); err != nil {
		return fmt.Errorf("write object %s: %w", objectPath, err)
	}
	return nil
}

func (s *FileStore) Open(ctx context.Context, objectPath string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	return f, err
}

// Remove deletes the object. Removing a missing object is not an error.
func (s *FileStore) Remove(ctx context.Context, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove object %s: %w", objectPath, err)
	}
	return nil
}

// resolve rejects parent segments; dots inside a file name are fine.
func (s *FileStore) resolve(objectPath string) (string, error) {
	objectPath = strings.TrimSpace(objectPath)
	for _, segment := range strings.Split(objectPath, "/") {
		if segment == ".." {
			return "", ErrInvalidPath
		}
	}
	cleaned := path.Clean("/" + objectPath)
	if cleaned == "/" {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))), nil
}
