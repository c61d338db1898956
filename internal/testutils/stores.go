package testutils

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/phrazzld/artcache/internal/imagecache"
	"github.com/phrazzld/artcache/internal/platform/sqlite"
	"github.com/phrazzld/artcache/internal/registry"
	"github.com/stretchr/testify/require"
)

// NewSQLiteStore opens a migrated SQLite image store in a temporary
// directory. The store is closed when the test ends.
func NewSQLiteStore(t *testing.T) *sqlite.ImageStore {
	t.Helper()

	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "artcache.db"), nil)
	require.NoError(t, err, "opening sqlite store")

	s := sqlite.NewImageStore(db, nil)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewCache builds an image cache over a temporary SQLite store and a fresh
// registry configured by cfg.
func NewCache(t *testing.T, cfg registry.Config, opts ...registry.Option) (*imagecache.Cache, *registry.Registry) {
	t.Helper()

	reg := registry.New(cfg, nil, opts...)
	return imagecache.New(NewSQLiteStore(t), reg, nil), reg
}
