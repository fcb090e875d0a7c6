package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// FilesystemCache stores payloads as files under dir/source/z/x/y.
type FilesystemCache struct {
	dir string
}

func NewFilesystemCache(dir string) (*FilesystemCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &FilesystemCache{dir: dir}, nil
}

var _ TileCache = (*FilesystemCache)(nil)

func (c *FilesystemCache) Get(_ context.Context, k TileCacheKey) (TileCacheValue, bool, error) {
	content, err := os.ReadFile(c.pathFor(k))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return content, true, nil
}

func (c *FilesystemCache) Set(_ context.Context, k TileCacheKey, v TileCacheValue) error {
	path := c.pathFor(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// write then rename so readers never see a partial file
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

func (c *FilesystemCache) pathFor(k TileCacheKey) string {
	return filepath.Join(c.dir, k.Source, strconv.Itoa(k.Z), strconv.Itoa(k.X), strconv.Itoa(k.Y))
}
