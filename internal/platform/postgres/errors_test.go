package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/artcache/internal/platform/postgres"
	"github.com/phrazzld/artcache/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		SchemaName:     "public",
		TableName:      "images",
		ColumnName:     "original",
		ConstraintName: "images_original_not_empty",
	}
}

// MockResult implements sql.Result for testing
type MockResult struct {
	rowsAffected int64
	err          error
}

func (m MockResult) LastInsertId() (int64, error) { return 0, m.err }
func (m MockResult) RowsAffected() (int64, error) { return m.rowsAffected, m.err }

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantIs  error
		wantNil bool
	}{
		{name: "nil error", err: nil, wantNil: true},
		{name: "no rows", err: sql.ErrNoRows, wantIs: store.ErrNotFound},
		{name: "check violation", err: newPgError("23514"), wantIs: store.ErrInvalidEntity},
		{name: "not null violation", err: newPgError("23502"), wantIs: store.ErrInvalidEntity},
		{name: "wrapped check violation", err: fmt.Errorf("exec: %w", newPgError("23514")), wantIs: store.ErrInvalidEntity},
		{name: "disk full", err: newPgError("53100"), wantIs: store.ErrStorage},
		{name: "generic error", err: errors.New("connection reset"), wantIs: store.ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := postgres.MapError(tt.err)
			if tt.wantNil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.wantIs)
			assert.ErrorIs(t, got, tt.err, "original error must stay in the chain")
		})
	}
}

func TestIsCheckConstraintViolation(t *testing.T) {
	t.Parallel()

	assert.False(t, postgres.IsCheckConstraintViolation(nil))
	assert.False(t, postgres.IsCheckConstraintViolation(errors.New("generic")))
	assert.False(t, postgres.IsCheckConstraintViolation(newPgError("23502")))
	assert.True(t, postgres.IsCheckConstraintViolation(newPgError("23514")))
}

func TestCheckRowsAffected(t *testing.T) {
	t.Parallel()

	assert.Error(t, postgres.CheckRowsAffected(nil))
	assert.NoError(t, postgres.CheckRowsAffected(MockResult{rowsAffected: 1}))
	assert.ErrorIs(t, postgres.CheckRowsAffected(MockResult{rowsAffected: 0}), store.ErrImageNotFound)

	err := postgres.CheckRowsAffected(MockResult{err: errors.New("driver")})
	assert.ErrorContains(t, err, "failed to get rows affected")
}
