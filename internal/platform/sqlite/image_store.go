package sqlite

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
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		original = excluded.original,
		derived = excluded.derived,
		mime_type = excluded.mime_type,
		updated_at = excluded.updated_at
`

// ImageStore implements store.ImageStore on SQLite.
type ImageStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure ImageStore implements store.ImageStore interface
var _ store.ImageStore = (*ImageStore)(nil)

// NewImageStore wraps an opened and migrated database.
// If logger is nil, a default logger will be used.
func NewImageStore(db *sql.DB, logger *slog.Logger) *ImageStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageStore{
		db:     db,
		logger: logger.With(slog.String("component", "sqlite_image_store")),
	}
}

func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func upsert(ctx context.Context, db store.DBTX, img *domain.StoredImage) error {
	_, err := db.ExecContext(ctx, upsertImageQuery,
		img.ID,
		img.Original,
		nullableBlob(img.Derived),
		img.MIMEType,
		img.CreatedAt.UnixNano(),
		img.UpdatedAt.UnixNano(),
	)
	return err
}

func validate(img *domain.StoredImage) error {
	if img == nil {
		return store.NewStoreError("image", "upsert", "nil image", store.ErrInvalidEntity)
	}
	if err := img.Validate(); err != nil {
		return store.NewStoreError("image", "upsert", err.Error(), errors.Join(store.ErrInvalidEntity, err))
	}
	return nil
}

// Upsert implements store.ImageStore.Upsert.
func (s *ImageStore) Upsert(ctx context.Context, img *domain.StoredImage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := validate(img); err != nil {
		log.Warn("image validation failed during upsert", slog.String("error", err.Error()))
		return err
	}

	if err := upsert(ctx, s.db, img); err != nil {
		log.Error("failed to upsert image",
			slog.String("error", err.Error()),
			slog.String("image_id", img.ID))
		return store.StorageFailure("upsert", err)
	}

	log.Debug("image upserted",
		slog.String("image_id", img.ID),
		slog.Int64("bytes", img.Size()))
	return nil
}

// UpsertBatch implements store.ImageStore.UpsertBatch.
func (s *ImageStore) UpsertBatch(ctx context.Context, imgs []*domain.StoredImage) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, img := range imgs {
		if err := validate(img); err != nil {
			return err
		}
	}

	err := store.RunInTransaction(logger.WithLogger(ctx, log), s.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, img := range imgs {
			if err := upsert(ctx, tx, img); err != nil {
				return fmt.Errorf("image %q: %w", img.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Error("failed to upsert image batch",
			slog.String("error", err.Error()),
			slog.Int("count", len(imgs)))
		return store.StorageFailure("upsert_batch", err)
	}
	return nil
}

// Get implements store.ImageStore.Get.
func (s *ImageStore) Get(ctx context.Context, id string) (*domain.StoredImage, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		img       domain.StoredImage
		derived   []byte
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, original, derived, mime_type, created_at, updated_at
		FROM images
		WHERE id = ?
	`, id).Scan(&img.ID, &img.Original, &derived, &img.MIMEType, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("image not found", slog.String("image_id", id))
			return nil, store.ErrImageNotFound
		}
		log.Error("failed to get image",
			slog.String("error", err.Error()),
			slog.String("image_id", id))
		return nil, store.StorageFailure("get", err)
	}

	if len(derived) > 0 {
		img.Derived = derived
	}
	img.CreatedAt = time.Unix(0, createdAt).UTC()
	img.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &img, nil
}

// Delete implements store.ImageStore.Delete.
func (s *ImageStore) Delete(ctx context.Context, id string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		log.Error("failed to delete image",
			slog.String("error", err.Error()),
			slog.String("image_id", id))
		return store.StorageFailure("delete", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		log.Debug("image deleted", slog.String("image_id", id), slog.Int64("rows", n))
	}
	return nil
}

// Clear implements store.ImageStore.Clear.
func (s *ImageStore) Clear(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	res, err := s.db.ExecContext(ctx, `DELETE FROM images`)
	if err != nil {
		log.Error("failed to clear images", slog.String("error", err.Error()))
		return store.StorageFailure("clear", err)
	}
	n, _ := res.RowsAffected()
	log.Info("image store cleared", slog.Int64("rows", n))
	return nil
}

// Exists implements store.ImageStore.Exists.
func (s *ImageStore) Exists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM images WHERE id = ? LIMIT 1`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, store.StorageFailure("exists", err)
	}
	return true, nil
}

// ListIDs implements store.ImageStore.ListIDs.
func (s *ImageStore) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM images ORDER BY created_at, id`)
	if err != nil {
		return nil, store.StorageFailure("list", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, store.StorageFailure("list", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, store.StorageFailure("list", err)
	}
	return ids, nil
}

// Stats implements store.ImageStore.Stats.
func (s *ImageStore) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(LENGTH(original) + COALESCE(LENGTH(derived), 0)), 0)
		FROM images
	`).Scan(&st.Count, &st.TotalBytes)
	if err != nil {
		return store.Stats{}, store.StorageFailure("stats", err)
	}
	return st, nil
}

// UpdateOriginal implements store.ImageStore.UpdateOriginal.
func (s *ImageStore) UpdateOriginal(ctx context.Context, id string, original []byte) error {
	if len(original) == 0 {
		return store.NewStoreError("image", "update_original", "empty payload", errors.Join(store.ErrInvalidEntity, domain.ErrEmptyPayload))
	}
	return s.updateColumn(ctx, "update_original", `UPDATE images SET original = ?, updated_at = ? WHERE id = ?`, id, original)
}

// UpdateDerived implements store.ImageStore.UpdateDerived.
func (s *ImageStore) UpdateDerived(ctx context.Context, id string, derived []byte) error {
	return s.updateColumn(ctx, "update_derived", `UPDATE images SET derived = ?, updated_at = ? WHERE id = ?`, id, nullableBlob(derived))
}

func (s *ImageStore) updateColumn(ctx context.Context, op, query, id string, value any) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	res, err := s.db.ExecContext(ctx, query, value, time.Now().UTC().UnixNano(), id)
	if err != nil {
		log.Error("failed to update image",
			slog.String("error", err.Error()),
			slog.String("operation", op),
			slog.String("image_id", id))
		return store.StorageFailure(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.StorageFailure(op, err)
	}
	if n == 0 {
		return store.ErrImageNotFound
	}
	return nil
}

// Close implements store.ImageStore.Close.
func (s *ImageStore) Close() error {
	return s.db.Close()
}
