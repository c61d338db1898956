package imagecache_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/artcache/internal/domain"
	"github.com/phrazzld/artcache/internal/imagecache"
	"github.com/phrazzld/artcache/internal/registry"
	"github.com/phrazzld/artcache/internal/store"
	"github.com/phrazzld/artcache/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutBase64ThenHandleLifecycle(t *testing.T) {
	c, reg := testutils.NewCache(t, registry.Config{MaxEntries: 50})
	ctx := context.Background()

	pixel := imagecache.Base64("data:image/png;base64," + testutils.RedPixelPNGBase64)
	require.NoError(t, c.Put(ctx, "x", pixel, pixel))

	h, ok, err := c.GetHandle(ctx, "x", domain.VariantDerived)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, c.RegistryStats().Count)

	want, _ := base64.StdEncoding.DecodeString(testutils.RedPixelPNGBase64)
	got, ok := c.Resolve(h)
	require.True(t, ok)
	assert.Equal(t, want, got)

	c.ReleaseHandle("x", domain.VariantDerived)
	assert.Equal(t, 0, c.RegistryStats().Count)
	assert.Equal(t, 0, reg.RefCount(imagecache.RegistryKey("x", domain.VariantDerived)))

	_, ok = c.Resolve(h)
	assert.False(t, ok, "released handle must stop resolving")

	rec, ok, err := c.GetRecord(ctx, "x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "image/png", rec.MIMEType)
	assert.Equal(t, want, rec.Original)
}

func TestGetHandleMissing(t *testing.T) {
	c, _ := testutils.NewCache(t, registry.Config{})

	h, ok, err := c.GetHandle(context.Background(), "nope", domain.VariantDerived)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, h)
	assert.Equal(t, 0, c.RegistryStats().Count)
}

func TestGetHandleFallsBackToOriginal(t *testing.T) {
	c, _ := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "x", imagecache.Bytes([]byte("full")), imagecache.Payload{}))

	h, ok, err := c.GetHandle(ctx, "x", domain.VariantDerived)
	require.NoError(t, err)
	require.True(t, ok)
	got, _ := c.Resolve(h)
	assert.Equal(t, []byte("full"), got)
}

func TestVariantsUseSeparateHandles(t *testing.T) {
	c, _ := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "x", imagecache.Bytes([]byte("full")), imagecache.Bytes([]byte("thumb"))))

	hd, _, err := c.GetHandle(ctx, "x", domain.VariantDerived)
	require.NoError(t, err)
	ho, _, err := c.GetHandle(ctx, "x", domain.VariantOriginal)
	require.NoError(t, err)
	assert.NotEqual(t, hd, ho)

	d, _ := c.Resolve(hd)
	o, _ := c.Resolve(ho)
	assert.Equal(t, []byte("thumb"), d)
	assert.Equal(t, []byte("full"), o)
	assert.Equal(t, 2, c.RegistryStats().Count)
}

func TestRepeatedGetHandleSharesHandle(t *testing.T) {
	c, reg := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "x", imagecache.Bytes([]byte("o")), imagecache.Payload{}))

	h1, _, _ := c.GetHandle(ctx, "x", domain.VariantDerived)
	h2, _, _ := c.GetHandle(ctx, "x", domain.VariantDerived)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 2, reg.RefCount(imagecache.RegistryKey("x", domain.VariantDerived)))

	c.ReleaseHandle("x", domain.VariantDerived)
	_, ok := c.Resolve(h1)
	assert.True(t, ok, "one outstanding reference keeps the handle live")

	c.ReleaseHandle("x", domain.VariantDerived)
	_, ok = c.Resolve(h1)
	assert.False(t, ok)
}

func TestPutKeepsOutstandingHandles(t *testing.T) {
	c, _ := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "x", imagecache.Bytes([]byte("v1")), imagecache.Payload{}))

	h, _, err := c.GetHandle(ctx, "x", domain.VariantDerived)
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, "x", imagecache.Bytes([]byte("v2")), imagecache.Payload{}))

	got, ok := c.Resolve(h)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)

	rec, _, err := c.GetRecord(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), rec.Original)
}

func TestPutRejectsBadInput(t *testing.T) {
	c, _ := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()

	err := c.Put(ctx, "", imagecache.Bytes([]byte("o")), imagecache.Payload{})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	err = c.Put(ctx, "x", imagecache.Base64("!!not base64!!"), imagecache.Payload{})
	assert.ErrorIs(t, err, domain.ErrInvalidEncoding)

	err = c.Put(ctx, "x", imagecache.Base64("data:image/png,abc"), imagecache.Payload{})
	assert.ErrorIs(t, err, domain.ErrInvalidEncoding)

	err = c.Put(ctx, "x", imagecache.Bytes(nil), imagecache.Payload{})
	assert.ErrorIs(t, err, domain.ErrEmptyPayload)
}

func TestDeleteRevokesBothVariants(t *testing.T) {
	c, _ := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "x", imagecache.Bytes([]byte("o")), imagecache.Bytes([]byte("d"))))

	hd, _, _ := c.GetHandle(ctx, "x", domain.VariantDerived)
	ho, _, _ := c.GetHandle(ctx, "x", domain.VariantOriginal)

	require.NoError(t, c.Delete(ctx, "x"))

	_, ok := c.Resolve(hd)
	assert.False(t, ok)
	_, ok = c.Resolve(ho)
	assert.False(t, ok)

	exists, err := c.Exists(ctx, "x")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestVariantKeysNeverCollideAcrossIDs(t *testing.T) {
	c, reg := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "a", imagecache.Bytes([]byte("a-orig")), imagecache.Bytes([]byte("a-thumb"))))
	require.NoError(t, c.Put(ctx, "a#original", imagecache.Bytes([]byte("b-orig")), imagecache.Bytes([]byte("b-thumb"))))
	require.NoError(t, c.Put(ctx, "original:a", imagecache.Bytes([]byte("c-orig")), imagecache.Bytes([]byte("c-thumb"))))

	hA, ok, err := c.GetHandle(ctx, "a", domain.VariantOriginal)
	require.NoError(t, err)
	require.True(t, ok)
	hB, ok, err := c.GetHandle(ctx, "a#original", domain.VariantDerived)
	require.NoError(t, err)
	require.True(t, ok)
	hC, ok, err := c.GetHandle(ctx, "original:a", domain.VariantDerived)
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotEqual(t, hA, hB)
	assert.NotEqual(t, hA, hC)
	assert.Equal(t, 3, c.RegistryStats().Count)

	got, _ := c.Resolve(hA)
	assert.Equal(t, []byte("a-orig"), got)
	got, _ = c.Resolve(hB)
	assert.Equal(t, []byte("b-thumb"), got)
	got, _ = c.Resolve(hC)
	assert.Equal(t, []byte("c-thumb"), got)

	require.NoError(t, c.Delete(ctx, "a#original"))
	_, ok = c.Resolve(hB)
	assert.False(t, ok)
	got, ok = c.Resolve(hA)
	require.True(t, ok, "deleting another image leaves this handle alone")
	assert.Equal(t, []byte("a-orig"), got)
	assert.Equal(t, 1, reg.RefCount(imagecache.RegistryKey("a", domain.VariantOriginal)))
}

func TestClearRevokesEverything(t *testing.T) {
	c, _ := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, c.Put(ctx, id, imagecache.Bytes([]byte(id)), imagecache.Payload{}))
		_, _, err := c.GetHandle(ctx, id, domain.VariantDerived)
		require.NoError(t, err)
	}

	require.NoError(t, c.Clear(ctx))

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Store.Count)
	assert.Equal(t, 0, st.Registry.Count)
}

func TestStatsAndIDs(t *testing.T) {
	c, _ := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "a", imagecache.Bytes([]byte("1234")), imagecache.Bytes([]byte("12"))))
	require.NoError(t, c.Put(ctx, "b", imagecache.Base64("AAEC"), imagecache.Payload{}))

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Store.Count)
	assert.Equal(t, int64(4+2+3), st.Store.TotalBytes)

	ids, err := c.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestUpdatePayloads(t *testing.T) {
	c, _ := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "x", imagecache.Bytes([]byte("o")), imagecache.Payload{}))

	ok, err := c.UpdateDerived(ctx, "x", imagecache.Bytes([]byte("d")))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.UpdateOriginal(ctx, "x", imagecache.Base64(base64.StdEncoding.EncodeToString([]byte("o2"))))
	require.NoError(t, err)
	assert.True(t, ok)

	rec, _, err := c.GetRecord(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []byte("o2"), rec.Original)
	assert.Equal(t, []byte("d"), rec.Derived)

	ok, err = c.UpdateDerived(ctx, "missing", imagecache.Bytes([]byte("d")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireLease(t *testing.T) {
	c, reg := testutils.NewCache(t, registry.Config{})
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "x", imagecache.Bytes([]byte("o")), imagecache.Payload{}))

	lease, ok, err := c.Acquire(ctx, "x", domain.VariantOriginal)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, reg.RefCount(imagecache.RegistryKey("x", domain.VariantOriginal)))

	lease.Release()
	lease.Release()
	assert.Equal(t, 0, reg.RefCount(imagecache.RegistryKey("x", domain.VariantOriginal)))
}

func TestSweepDropsIdleLazyEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c, _ := testutils.NewCache(t, registry.Config{LazyRevoke: true}, registry.WithClock(clock))
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "x", imagecache.Bytes([]byte("o")), imagecache.Payload{}))

	_, _, err := c.GetHandle(ctx, "x", domain.VariantDerived)
	require.NoError(t, err)
	c.ReleaseHandle("x", domain.VariantDerived)
	assert.Equal(t, 1, c.RegistryStats().Count)

	now = now.Add(time.Hour)
	assert.Equal(t, 1, c.Sweep(time.Minute))
	assert.Equal(t, 0, c.RegistryStats().Count)
}

// failingStore fails every call the embedded nil interface does not cover.
type failingStore struct {
	store.ImageStore
	err error
}

func (f failingStore) Get(context.Context, string) (*domain.StoredImage, error) { return nil, f.err }
func (f failingStore) Upsert(context.Context, *domain.StoredImage) error { return f.err }
func (f failingStore) Delete(context.Context, string) error { return f.err }
func (f failingStore) Clear(context.Context) error { return f.err }
func (f failingStore) Close() error { return nil }

func TestStoreFailureLeavesRegistryUntouched(t *testing.T) {
	reg := registry.New(registry.Config{}, nil)
	engineErr := store.StorageFailure("get", errors.New("quota exceeded"))
	c := imagecache.New(failingStore{err: engineErr}, reg, nil)
	ctx := context.Background()

	h := reg.AcquireOrCreate(imagecache.RegistryKey("x", domain.VariantDerived), []byte("live"))

	_, _, err := c.GetHandle(ctx, "x", domain.VariantDerived)
	assert.ErrorIs(t, err, store.ErrStorage)

	assert.ErrorIs(t, c.Put(ctx, "x", imagecache.Bytes([]byte("o")), imagecache.Payload{}), store.ErrStorage)
	assert.ErrorIs(t, c.Delete(ctx, "x"), store.ErrStorage)
	assert.ErrorIs(t, c.Clear(ctx), store.ErrStorage)

	assert.Equal(t, 1, reg.RefCount(imagecache.RegistryKey("x", domain.VariantDerived)))
	_, ok := reg.Resolve(h)
	assert.True(t, ok)
}

func TestNewPanicsWithoutDependencies(t *testing.T) {
	reg := registry.New(registry.Config{}, nil)
	s := testutils.NewSQLiteStore(t)

	assert.PanicsWithValue(t, "store cannot be nil", func() { imagecache.New(nil, reg, nil) })
	assert.PanicsWithValue(t, "registry cannot be nil", func() { imagecache.New(s, nil, nil) })
	assert.NotPanics(t, func() { imagecache.New(s, reg, nil) })
}
