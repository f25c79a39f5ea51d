package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilesystemStore keeps one file per key under root, fanned out by the
// first two hex digits of the key digest.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FilesystemStore{root: root}, nil
}

var _ Store = (*FilesystemStore)(nil)

func (c *FilesystemStore) Get(_ context.Context, k Key) (Value, bool, error) {
	content, err := os.ReadFile(c.pathFor(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return content, true, nil
}

// Set writes through a temporary file so readers never see a partial value.
func (c *FilesystemStore) Set(_ context.Context, k Key, v Value) error {
	path := c.pathFor(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(v); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (c *FilesystemStore) Close() error {
	return nil
}

func (c *FilesystemStore) pathFor(k Key) string {
	d := k.digest()
	return filepath.Join(c.root, d[:2], d[2:])
}
