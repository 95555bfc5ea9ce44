package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("attachment not found")

// Storage holds proof-of-payment attachments referenced by top-up
// requests. Keys are opaque; callers persist them on the request row.
type Storage interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
}

// DiskStorage keeps attachments in a flat local directory.
type DiskStorage struct {
	dir string
}

func NewDiskStorage(dir string) (*DiskStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &DiskStorage{dir: dir}, nil
}

func (s *DiskStorage) Save(_ context.Context, r io.Reader) (string, error) {
	key := uuid.NewString()
	f, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return key, nil
}

func (s *DiskStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (s *DiskStorage) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		// A key that cannot name a file does not exist; errors from
		// Exists are reserved for the backing store failing.
		return false, nil
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *DiskStorage) Remove(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// path rejects keys that escape the storage directory.
func (s *DiskStorage) path(key string) (string, error) {
	if key == "" || filepath.Base(key) != key {
		return "", fmt.Errorf("invalid attachment key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}
