package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minhdwien/Manhuamaker/pkg/utils"
)

// FileKV keeps one <key>.json file per key under a directory.
type FileKV struct {
	dir string
}

func NewFileKV(dir string) (*FileKV, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage path is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileKV{dir: filepath.Clean(dir)}, nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, utils.SanitizeFilename(key)+".json")
}

func (f *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := f.path(key)
	if !utils.Exists(p) {
		return nil, ErrNotFound
	}
	return os.ReadFile(p)
}

func (f *FileKV) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return utils.WriteAtomic(f.path(key), value)
}

func (f *FileKV) Close() error { return nil }
