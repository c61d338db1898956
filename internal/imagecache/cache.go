package imagecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/artcache/internal/domain"
	"github.com/phrazzld/artcache/internal/platform/logger"
	"github.com/phrazzld/artcache/internal/registry"
	"github.com/phrazzld/artcache/internal/store"
)

// Stats combines durable and in-memory statistics.
type Stats struct {
	Store    store.Stats
	Registry registry.Stats
}

// Cache is the persistent image store with handle issuance.
type Cache struct {
	store    store.ImageStore
	registry *registry.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow replaces the clock used to stamp records.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache over an opened store and a registry.
// It panics if s or reg is nil. If logger is nil, a default logger will be
// used.
func New(s store.ImageStore, reg *registry.Registry, logger *slog.Logger, opts ...Option) *Cache {
	if s == nil {
		panic("store cannot be nil")
	}
	if reg == nil {
		panic("registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store:    s,
		registry: reg,
		logger:   logger.With(slog.String("component", "image_cache")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegistryKey is the registry entry holding variant v of image id. The
// variant name never contains a colon, so distinct (id, variant) pairs never
// share an entry whatever characters the id uses.
func RegistryKey(id string, v domain.Variant) string {
	return v.String() + ":" + id
}

// Put writes the record for id, replacing any previous one. Outstanding
// handles for id keep referring to the bytes they were issued for.
func (c *Cache) Put(ctx context.Context, id string, original, derived Payload) error {
	log := logger.FromContextOrDefault(ctx, c.logger)

	if err := domain.ValidateID(id); err != nil {
		return err
	}
	orig, mime, err := original.decode()
	if err != nil {
		return fmt.Errorf("original payload: %w", err)
	}
	var der []byte
	if !derived.IsZero() {
		if der, _, err = derived.decode(); err != nil {
			return fmt.Errorf("derived payload: %w", err)
		}
	}
	if mime == "" && len(orig) > 0 {
		mime = http.DetectContentType(orig)
	}

	img, err := domain.NewStoredImage(id, orig, der, mime, c.now())
	if err != nil {
		return err
	}
	if err := c.store.Upsert(ctx, img); err != nil {
		return err
	}

	log.Debug("image stored",
		slog.String("image_id", id),
		slog.Int("original_bytes", len(orig)),
		slog.Int("derived_bytes", len(der)))
	return nil
}

// GetHandle returns a live handle for the variant of id, taking one
// reference that must be returned with ReleaseHandle. A missing record
// yields ok == false. A missing derived payload falls back to the original.
func (c *Cache) GetHandle(ctx context.Context, id string, v domain.Variant) (registry.Handle, bool, error) {
	img, ok, err := c.GetRecord(ctx, id)
	if err != nil || !ok {
		return "", false, err
	}
	return c.registry.AcquireOrCreate(RegistryKey(id, v), img.Payload(v)), true, nil
}

// Acquire is GetHandle returning a lease that releases the reference.
func (c *Cache) Acquire(ctx context.Context, id string, v domain.Variant) (*registry.Lease, bool, error) {
	img, ok, err := c.GetRecord(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	return c.registry.Acquire(RegistryKey(id, v), img.Payload(v)), true, nil
}

// ReleaseHandle returns a reference taken by GetHandle.
func (c *Cache) ReleaseHandle(id string, v domain.Variant) {
	c.registry.Release(RegistryKey(id, v))
}

// Resolve returns a copy of the bytes behind a live handle.
func (c *Cache) Resolve(h registry.Handle) ([]byte, bool) {
	return c.registry.Resolve(h)
}

// GetRecord returns the full stored record for id.
func (c *Cache) GetRecord(ctx context.Context, id string) (*domain.StoredImage, bool, error) {
	img, err := c.store.Get(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, false, nil
		}
		logger.FromContextOrDefault(ctx, c.logger).Error("failed to read image",
			slog.String("image_id", id),
			slog.String("error", err.Error()))
		return nil, false, err
	}
	return img, true, nil
}

// Delete removes id from the store, then drops one registry reference per
// variant. A store failure leaves the registry untouched.
func (c *Cache) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.registry.Release(RegistryKey(id, domain.VariantDerived))
	c.registry.Release(RegistryKey(id, domain.VariantOriginal))
	logger.FromContextOrDefault(ctx, c.logger).Debug("image deleted", slog.String("image_id", id))
	return nil
}

// Clear removes every record, then revokes every registry handle.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.registry.ReleaseAll()
	logger.FromContextOrDefault(ctx, c.logger).Info("image cache cleared")
	return nil
}

// Exists reports whether id has a durable record.
func (c *Cache) Exists(ctx context.Context, id string) (bool, error) {
	return c.store.Exists(ctx, id)
}

// IDs lists every stored id, oldest first.
func (c *Cache) IDs(ctx context.Context) ([]string, error) {
	return c.store.ListIDs(ctx)
}

// Stats returns durable and in-memory statistics.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	st, err := c.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Store: st, Registry: c.registry.Stats()}, nil
}

// RegistryStats returns the in-memory registry statistics.
func (c *Cache) RegistryStats() registry.Stats {
	return c.registry.Stats()
}

// UpdateDerived replaces the derived payload of an existing record.
// The returned ok is false when id has no record.
func (c *Cache) UpdateDerived(ctx context.Context, id string, p Payload) (bool, error) {
	b, _, err := p.decode()
	if err != nil {
		return false, fmt.Errorf("derived payload: %w", err)
	}
	return notFoundAsFalse(c.store.UpdateDerived(ctx, id, b))
}

// UpdateOriginal replaces the original payload of an existing record.
// The returned ok is false when id has no record.
func (c *Cache) UpdateOriginal(ctx context.Context, id string, p Payload) (bool, error) {
	b, _, err := p.decode()
	if err != nil {
		return false, fmt.Errorf("original payload: %w", err)
	}
	if len(b) == 0 {
		return false, domain.ErrEmptyPayload
	}
	return notFoundAsFalse(c.store.UpdateOriginal(ctx, id, b))
}

// PutBatch writes every image in one transaction.
func (c *Cache) PutBatch(ctx context.Context, imgs []*domain.StoredImage) error {
	return c.store.UpsertBatch(ctx, imgs)
}

// Sweep drops unreferenced registry entries idle for longer than maxIdle.
func (c *Cache) Sweep(maxIdle time.Duration) int {
	return c.registry.Sweep(maxIdle)
}

// Close releases every handle and closes the store.
func (c *Cache) Close() error {
	c.registry.Close()
	return c.store.Close()
}

func notFoundAsFalse(err error) (bool, error) {
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
