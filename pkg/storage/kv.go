// Package storage mirrors the store into a durable key-value medium.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/minhdwien/Manhuamaker/pkg/config"
)

// ErrNotFound is returned by KV.Get for keys that were never written.
var ErrNotFound = errors.New("key not found")

// KV is a durable string-keyed medium holding opaque values.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Open builds the medium selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (KV, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileKV(cfg.Path)
	case "sqlite":
		path := cfg.Path
		// a bare directory such as the default "data" holds the database file
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "manhua.db")
		}
		return OpenSQLite(path)
	case "redis":
		return DialRedis(ctx, cfg.Redis)
	case "memory":
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Close() error { return nil }
