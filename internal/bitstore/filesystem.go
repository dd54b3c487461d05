package bitstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FilesystemBackend stores assets under a base directory on local disk.
type FilesystemBackend struct {
	baseDir string
}

// NewFilesystemBackend creates the backend, ensuring the base directory exists.
func NewFilesystemBackend(baseDir string) (*FilesystemBackend, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving assetstore dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating assetstore dir: %w", err)
	}
	return &FilesystemBackend{baseDir: abs}, nil
}

func (b *FilesystemBackend) Name() string { return "filesystem" }

func (b *FilesystemBackend) Put(_ context.Context, key string) (io.WriteCloser, error) {
	p := filepath.Join(b.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	return os.Create(p)
}

func (b *FilesystemBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(b.baseDir, filepath.FromSlash(key)))
}

func (b *FilesystemBackend) Remove(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(b.baseDir, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *FilesystemBackend) URL(key string) string {
	return "file://" + filepath.ToSlash(filepath.Join(b.baseDir, filepath.FromSlash(key)))
}
