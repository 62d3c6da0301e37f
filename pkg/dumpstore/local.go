package dumpstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ajitpratap0/planport/pkg/errors"
)

// LocalStore writes objects below a directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid dump directory").WithDetail("dir", dir)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create dump directory").WithDetail("dir", abs)
	}
	return &LocalStore{dir: abs}, nil
}

// Put writes data to dir/key.
func (s *LocalStore) Put(_ context.Context, key string, data []byte) (string, error) {
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create dump directory")
	}
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write failure dump").WithDetail("path", target)
	}
	return "file://" + filepath.ToSlash(target), nil
}

// Name returns "local".
func (s *LocalStore) Name() string { return "local" }

// Close is a no-op.
func (s *LocalStore) Close() error { return nil }
