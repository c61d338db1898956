// Package loader implements the cache-first image pipeline: requests are
// scheduled through the coordinator, fetched or generated, reduced to a
// thumbnail and written to the image cache.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/artcache/internal/domain"
	"github.com/phrazzld/artcache/internal/generation"
	"github.com/phrazzld/artcache/internal/imagecache"
	"github.com/phrazzld/artcache/internal/platform/logger"
	"github.com/phrazzld/artcache/internal/redact"
	"github.com/phrazzld/artcache/internal/registry"
	"github.com/phrazzld/artcache/internal/store"
	"github.com/phrazzld/artcache/internal/task"
)

// Coordinator request IDs.
const (
	loadRequest     = "load"
	generateRequest = "generate"
)

// GeneratedPrefix prefixes the IDs of generated images.
const GeneratedPrefix = "gen/"

// Fetcher downloads the original bytes of a locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Deriver produces the derived payload for an original. It never fails.
type Deriver interface {
	Process(original []byte, name string) []byte
}

// Loader wires the cache, the coordinator and the image sources together.
type Loader struct {
	cache     *imagecache.Cache
	coord     *task.Coordinator
	fetcher   Fetcher
	deriver   Deriver
	generator generation.Generator
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Loader. generator may be nil, which disables Generate.
// If logger is nil, a default logger will be used.
func New(
	cache *imagecache.Cache,
	coord *task.Coordinator,
	fetcher Fetcher,
	deriver Deriver,
	generator generation.Generator,
	logger *slog.Logger,
) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		cache:     cache,
		coord:     coord,
		fetcher:   fetcher,
		deriver:   deriver,
		generator: generator,
		logger:    logger.With(slog.String("component", "loader")),
		now:       time.Now,
	}
}

// Load makes sure locator is in the cache, fetching and deriving it when
// absent. Concurrent loads of the same locator share one fetch.
func (l *Loader) Load(ctx context.Context, locator string, opts ...task.SubmitOption) error {
	if err := domain.ValidateID(locator); err != nil {
		return err
	}
	_, err := l.coord.Submit(ctx, loadRequest, locator, func(ctx context.Context) (any, error) {
		return nil, l.load(ctx, locator)
	}, opts...)
	return err
}

func (l *Loader) load(ctx context.Context, locator string) error {
	log := logger.FromContextOrDefault(ctx, l.logger).With(slog.String("locator", redact.URL(locator)))

	cached, err := l.cache.Exists(ctx, locator)
	if err != nil {
		return err
	}
	if cached {
		log.Debug("image already cached")
		return nil
	}

	original, err := l.fetcher.Fetch(ctx, locator)
	if err != nil {
		return err
	}
	derived := l.deriver.Process(original, locator)

	if err := l.cache.Put(ctx, locator, imagecache.Bytes(original), imagecache.Bytes(derived)); err != nil {
		return err
	}
	log.Info("image cached",
		slog.Int("original_bytes", len(original)),
		slog.Int("derived_bytes", len(derived)))
	return nil
}

// Open loads locator and returns a lease on the requested variant.
func (l *Loader) Open(ctx context.Context, locator string, v domain.Variant, opts ...task.SubmitOption) (*registry.Lease, error) {
	if err := l.Load(ctx, locator, opts...); err != nil {
		return nil, err
	}
	lease, ok, err := l.cache.Acquire(ctx, locator, v)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Deleted between load and acquire.
		return nil, store.ErrImageNotFound
	}
	return lease, nil
}

// Prefetch loads every locator at the given priority and returns the first
// error. Duplicate locators are loaded once.
func (l *Loader) Prefetch(ctx context.Context, locators []string, priority int) error {
	seen := make(map[string]bool, len(locators))
	g, gctx := errgroup.WithContext(ctx)
	for _, loc := range locators {
		if seen[loc] {
			continue
		}
		seen[loc] = true
		g.Go(func() error {
			if err := l.Load(gctx, loc, task.WithPriority(priority)); err != nil {
				return fmt.Errorf("prefetch %s: %w", redact.URL(loc), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Generate produces images for prompt, stores each one with a derived
// thumbnail and returns their IDs. Identical concurrent prompts share one
// generation.
func (l *Loader) Generate(ctx context.Context, prompt string, opts ...task.SubmitOption) ([]string, error) {
	if l.generator == nil {
		return nil, generation.ErrDisabled
	}
	return task.Submit(ctx, l.coord, generateRequest, prompt, func(ctx context.Context) ([]string, error) {
		return l.generate(ctx, prompt)
	}, opts...)
}

func (l *Loader) generate(ctx context.Context, prompt string) ([]string, error) {
	log := logger.FromContextOrDefault(ctx, l.logger)

	images, err := l.generator.GenerateImages(ctx, prompt)
	if err != nil {
		return nil, err
	}

	now := l.now()
	records := make([]*domain.StoredImage, 0, len(images))
	ids := make([]string, 0, len(images))
	for _, img := range images {
		id := GeneratedPrefix + uuid.NewString() + "." + img.Ext()
		rec, err := domain.NewStoredImage(id, img.Data, l.deriver.Process(img.Data, id), img.MIMEType, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", generation.ErrGenerationFailed, err)
		}
		records = append(records, rec)
		ids = append(ids, id)
	}

	if err := l.cache.PutBatch(ctx, records); err != nil {
		return nil, err
	}
	log.Info("generated images cached",
		slog.Int("count", len(ids)),
		slog.Int("prompt_length", len(prompt)))
	return ids, nil
}
