// Package storage provides the durable backends behind workspace.Store.
package storage

import (
	"fmt"
	"io"

	"aira/internal/config"
	"aira/internal/workspace"
)

// Backend is a persister that may hold resources.
type Backend interface {
	workspace.Persister
	workspace.PathProvider
}

// Open returns the backend named by kind, rooted at dir.
func Open(kind, dir string) (Backend, error) {
	switch kind {
	case "", config.StorageJSON:
		return NewJSONStore(dir)
	case config.StorageSQLite:
		return NewSQLiteStore(dir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

// Close releases b if it holds resources.
func Close(b Backend) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
