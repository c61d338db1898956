package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/artcache/internal/config"
	"github.com/phrazzld/artcache/internal/fetch"
	"github.com/phrazzld/artcache/internal/generation"
	"github.com/phrazzld/artcache/internal/imagecache"
	"github.com/phrazzld/artcache/internal/loader"
	"github.com/phrazzld/artcache/internal/platform/gemini"
	"github.com/phrazzld/artcache/internal/platform/postgres"
	"github.com/phrazzld/artcache/internal/platform/sqlite"
	"github.com/phrazzld/artcache/internal/registry"
	"github.com/phrazzld/artcache/internal/store"
	"github.com/phrazzld/artcache/internal/task"
	"github.com/phrazzld/artcache/internal/thumbnail"
)

// application holds the shared dependencies of every command and owns their
// shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	store    store.ImageStore
	registry *registry.Registry
	cache    *imagecache.Cache
	coord    *task.Coordinator
	loader   *loader.Loader
}

// newApplication wires the image cache, request coordinator and loader from
// cfg. The caller must call close.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, client *http.Client) (*application, error) {
	app := &application{config: cfg, logger: logger}

	imgStore, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	app.store = imgStore

	app.registry = registry.New(registry.Config{
		MaxEntries: cfg.Registry.MaxEntries,
		LazyRevoke: cfg.Registry.LazyRevoke,
	}, logger)
	app.cache = imagecache.New(imgStore, app.registry, logger)
	app.coord = task.NewCoordinator(task.Config{Limit: cfg.Queue.Concurrency}, logger)

	fetcher, err := fetch.New(cfg.Fetch, client, logger)
	if err != nil {
		_ = app.cache.Close()
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	var gen generation.Generator
	if cfg.LLM.GeminiAPIKey != "" {
		g, err := gemini.NewGeminiGenerator(ctx, logger, cfg.LLM)
		if err != nil {
			_ = app.cache.Close()
			return nil, fmt.Errorf("failed to create image generator: %w", err)
		}
		gen = g
	} else {
		logger.Debug("image generation disabled, no API key configured")
	}

	app.loader = loader.New(app.cache, app.coord, fetcher, thumbnail.New(cfg.Thumbnail, logger), gen, logger)

	logger.Info("application initialized",
		slog.String("store_driver", cfg.Store.Driver),
		slog.Int("concurrency", cfg.Queue.Concurrency),
		slog.Bool("generation_enabled", gen != nil))
	return app, nil
}

// openStore opens the configured engine and returns its image store.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.ImageStore, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return sqlite.NewImageStore(db, logger), nil
	case "postgres":
		db, err := postgres.Open(ctx, cfg.URL, logger)
		if err != nil {
			return nil, err
		}
		return postgres.NewPostgresImageStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// close clears queued requests and releases the registry and the database.
func (app *application) close() error {
	if n := app.coord.ClearQueue(); n > 0 {
		app.logger.Warn("dropped queued requests on shutdown", slog.Int("count", n))
	}
	if err := app.cache.Close(); err != nil {
		return fmt.Errorf("failed to close image cache: %w", err)
	}
	app.logger.Info("application shut down")
	return nil
}
