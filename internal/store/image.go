package store

import (
	"context"

	"github.com/phrazzld/artcache/internal/domain"
)

// Stats summarizes the durable contents of an ImageStore.
type Stats struct {
	Count      int
	TotalBytes int64
}

// ImageStore defines the interface for durable, id-keyed image storage.
// Implementations must make every method atomic: a failed write leaves the
// previous record for that ID untouched.
// Version: 1.0
type ImageStore interface {
	// Upsert creates or replaces the record with img.ID.
	// Returns validation errors from domain.StoredImage if the data is invalid.
	Upsert(ctx context.Context, img *domain.StoredImage) error

	// UpsertBatch upserts every image in one transaction: either all
	// records are written or none are.
	UpsertBatch(ctx context.Context, imgs []*domain.StoredImage) error

	// Get retrieves a record by ID.
	// Returns ErrImageNotFound if the record does not exist.
	Get(ctx context.Context, id string) (*domain.StoredImage, error)

	// Delete removes a record by ID. Deleting an absent ID is not an error.
	Delete(ctx context.Context, id string) error

	// Clear removes every record.
	Clear(ctx context.Context) error

	// Exists reports whether a record with the ID is present.
	Exists(ctx context.Context, id string) (bool, error)

	// ListIDs returns every stored ID, oldest first.
	ListIDs(ctx context.Context) ([]string, error)

	// Stats returns the record count and the summed payload sizes.
	Stats(ctx context.Context) (Stats, error)

	// UpdateOriginal replaces only the original payload.
	// Returns ErrImageNotFound if the record does not exist.
	UpdateOriginal(ctx context.Context, id string, original []byte) error

	// UpdateDerived replaces only the derived payload.
	// Returns ErrImageNotFound if the record does not exist.
	UpdateDerived(ctx context.Context, id string, derived []byte) error

	// Close releases the underlying engine resources.
	Close() error
}
