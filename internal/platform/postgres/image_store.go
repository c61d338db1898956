package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/artcache/internal/domain"
	"github.com/phrazzld/artcache/internal/platform/logger"
	"github.com/phrazzld/artcache/internal/store"
)

const upsertImageQuery = `
	INSERT INTO images (id, original, derived, mime_type, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE SET
		original = EXCLUDED.original,
		derived = EXCLUDED.derived,
		mime_type = EXCLUDED.mime_type,
		updated_at = EXCLUDED.updated_at
`

// PostgresImageStore implements the store.ImageStore interface
// using a PostgreSQL database as the storage backend.
type PostgresImageStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure PostgresImageStore implements store.ImageStore interface
var _ store.ImageStore = (*PostgresImageStore)(nil)

// NewPostgresImageStore creates a new PostgreSQL implementation of the ImageStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresImageStore(db *sql.DB, logger *slog.Logger) *PostgresImageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresImageStore{
		db:     db,
		logger: logger.With(slog.String("component", "image_store")),
	}
}

func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func upsertImage(ctx context.Context, db store.DBTX, img *domain.StoredImage) error {
	_, err := db.ExecContext(ctx, upsertImageQuery,
		img.ID,
		img.Original,
		nullableBlob(img.Derived),
		img.MIMEType,
		img.CreatedAt,
		img.UpdatedAt,
	)
	return err
}

func validateImage(op string, img *domain.StoredImage) error {
	if img == nil {
		return store.NewStoreError("image", op, "nil image", store.ErrInvalidEntity)
	}
	if err := img.Validate(); err != nil {
		return store.NewStoreError("image", op, err.Error(), errors.Join(store.ErrInvalidEntity, err))
	}
	return nil
}

// storeErr converts an engine error into the error returned to callers,
// preserving invalid-entity mapping and wrapping the rest as storage failures.
func storeErr(op string, err error) error {
	mapped := MapError(err)
	if errors.Is(mapped, store.ErrStorage) {
		return store.StorageFailure(op, err)
	}
	return store.NewStoreError("image", op, "rejected by database", mapped)
}

// Upsert implements store.ImageStore.Upsert.
func (s *PostgresImageStore) Upsert(ctx context.Context, img *domain.StoredImage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := validateImage("upsert", img); err != nil {
		log.Warn("image validation failed during upsert", slog.String("error", err.Error()))
		return err
	}

	if err := upsertImage(ctx, s.db, img); err != nil {
		log.Error("failed to upsert image",
			slog.String("error", err.Error()),
			slog.String("image_id", img.ID))
		return storeErr("upsert", err)
	}

	log.Debug("image upserted",
		slog.String("image_id", img.ID),
		slog.Int64("bytes", img.Size()))
	return nil
}

// UpsertBatch implements store.ImageStore.UpsertBatch.
func (s *PostgresImageStore) UpsertBatch(ctx context.Context, imgs []*domain.StoredImage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, img := range imgs {
		if err := validateImage("upsert_batch", img); err != nil {
			return err
		}
	}

	err := store.RunInTransaction(logger.WithLogger(ctx, log), s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, img := range imgs {
			if err := upsertImage(ctx, tx, img); err != nil {
				return fmt.Errorf("image %q: %w", img.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to upsert image batch",
			slog.String("error", err.Error()),
			slog.Int("count", len(imgs)))
		return storeErr("upsert_batch", err)
	}
	return nil
}

// Get implements store.ImageStore.Get.
func (s *PostgresImageStore) Get(ctx context.Context, id string) (*domain.StoredImage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		img     domain.StoredImage
		derived []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, original, derived, mime_type, created_at, updated_at
		FROM images
		WHERE id = $1
	`, id).Scan(&img.ID, &img.Original, &derived, &img.MIMEType, &img.CreatedAt, &img.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("image not found", slog.String("image_id", id))
			return nil, store.ErrImageNotFound
		}
		log.Error("failed to get image",
			slog.String("error", err.Error()),
			slog.String("image_id", id))
		return nil, storeErr("get", err)
	}

	if len(derived) > 0 {
		img.Derived = derived
	}
	img.CreatedAt = img.CreatedAt.UTC()
	img.UpdatedAt = img.UpdatedAt.UTC()
	return &img, nil
}

// Delete implements store.ImageStore.Delete.
func (s *PostgresImageStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1`, id); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to delete image",
			slog.String("error", err.Error()),
			slog.String("image_id", id))
		return storeErr("delete", err)
	}
	return nil
}

// Clear implements store.ImageStore.Clear.
func (s *PostgresImageStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images`); err != nil {
		return storeErr("clear", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("image store cleared")
	return nil
}

// Exists implements store.ImageStore.Exists.
func (s *PostgresImageStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM images WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, storeErr("exists", err)
	}
	return exists, nil
}

// ListIDs implements store.ImageStore.ListIDs.
func (s *PostgresImageStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM images ORDER BY created_at, id`)
	if err != nil {
		return nil, storeErr("list", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("list", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", err)
	}
	return ids, nil
}

// Stats implements store.ImageStore.Stats.
func (s *PostgresImageStore) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(octet_length(original) + COALESCE(octet_length(derived), 0)), 0)
		FROM images
	`).Scan(&st.Count, &st.TotalBytes)
	if err != nil {
		return store.Stats{}, storeErr("stats", err)
	}
	return st, nil
}

// UpdateOriginal implements store.ImageStore.UpdateOriginal.
func (s *PostgresImageStore) UpdateOriginal(ctx context.Context, id string, original []byte) error {
	if len(original) == 0 {
		return store.NewStoreError("image", "update_original", "empty payload", errors.Join(store.ErrInvalidEntity, domain.ErrEmptyPayload))
	}
	return s.update(ctx, "update_original", `UPDATE images SET original = $1, updated_at = $2 WHERE id = $3`, id, original)
}

// UpdateDerived implements store.ImageStore.UpdateDerived.
func (s *PostgresImageStore) UpdateDerived(ctx context.Context, id string, derived []byte) error {
	return s.update(ctx, "update_derived", `UPDATE images SET derived = $1, updated_at = $2 WHERE id = $3`, id, nullableBlob(derived))
}

func (s *PostgresImageStore) update(ctx context.Context, op, query, id string, value any) error {
	res, err := s.db.ExecContext(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update image",
			slog.String("error", err.Error()),
			slog.String("operation", op),
			slog.String("image_id", id))
		return storeErr(op, err)
	}
	return CheckRowsAffected(res)
}

// Close implements store.ImageStore.Close.
func (s *PostgresImageStore) Close() error {
	return s.db.Close()
}
