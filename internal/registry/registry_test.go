package registry

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logicalClock advances only when told to.
type logicalClock struct {
	mu  sync.Mutex
	now time.Time
}

func newLogicalClock() *logicalClock {
	return &logicalClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *logicalClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *logicalClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(cfg Config) (*Registry, *logicalClock) {
	clock := newLogicalClock()
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	return New(cfg, logger, WithClock(clock.Now)), clock
}

func TestAcquireOrCreateReusesRecord(t *testing.T) {
	r, _ := newTestRegistry(Config{})

	h1 := r.AcquireOrCreate("img", []byte("first"))
	h2 := r.AcquireOrCreate("img", []byte("ignored"))

	assert.Equal(t, h1, h2)
	assert.True(t, strings.HasPrefix(string(h1), "blob:"))
	assert.Equal(t, 2, r.RefCount("img"))

	data, ok := r.Resolve(h1)
	require.True(t, ok)
	assert.Equal(t, []byte("first"), data, "existing record must stay authoritative")
}

func TestAcquireCopiesPayload(t *testing.T) {
	r, _ := newTestRegistry(Config{})
	buf := []byte("abc")

	h := r.AcquireOrCreate("img", buf)
	buf[0] = 'z'

	data, ok := r.Resolve(h)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), data)
}

func TestResolveReturnsPrivateCopy(t *testing.T) {
	r, _ := newTestRegistry(Config{})
	h := r.AcquireOrCreate("img", []byte("abc"))
	r.AcquireOrCreate("img", nil)

	first, ok := r.Resolve(h)
	require.True(t, ok)
	first[0] = 'z'

	second, ok := r.Resolve(h)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), second)
}

func TestReleaseCountsDownToRevocation(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			r, _ := newTestRegistry(Config{})
			h := r.AcquireOrCreate("img", []byte("x"))
			for i := 1; i < n; i++ {
				r.AcquireOrCreate("img", nil)
			}

			for i := 1; i < n; i++ {
				r.Release("img")
			}
			_, ok := r.Resolve(h)
			assert.True(t, ok, "handle must stay valid after N-1 releases")
			assert.Equal(t, 1, r.RefCount("img"))

			r.Release("img")
			_, ok = r.Resolve(h)
			assert.False(t, ok, "handle must be revoked after N releases")
			assert.Equal(t, 0, r.RefCount("img"))
			assert.Equal(t, 0, r.Stats().Count)
		})
	}
}

func TestReleaseUnknownIsNoop(t *testing.T) {
	r, _ := newTestRegistry(Config{})
	h := r.AcquireOrCreate("kept", []byte("x"))

	assert.NotPanics(t, func() { r.Release("missing") })

	_, ok := r.Resolve(h)
	assert.True(t, ok)
	assert.Equal(t, Stats{Count: 1, TotalBytes: 1}, r.Stats())
}

func TestPeekDoesNotTakeReference(t *testing.T) {
	r, clock := newTestRegistry(Config{LazyRevoke: true, MaxEntries: 2})

	_, ok := r.Peek("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Stats().Count, "peek must not create records")

	h := r.AcquireOrCreate("a", []byte("a"))
	got, ok := r.Peek("a")
	require.True(t, ok)
	assert.Equal(t, h, got)
	assert.Equal(t, 1, r.RefCount("a"))

	// Peek refreshes recency: "a" becomes newer than "b".
	r.AcquireOrCreate("b", []byte("b"))
	clock.Advance(time.Second)
	r.Release("a")
	r.Release("b")
	clock.Advance(time.Second)
	r.Peek("a")
	r.AcquireOrCreate("c", []byte("c"))

	_, ok = r.Peek("b")
	assert.False(t, ok, "least recently accessed idle record should be evicted")
	_, ok = r.Peek("a")
	assert.True(t, ok)
}

func TestReleaseAll(t *testing.T) {
	r, _ := newTestRegistry(Config{})
	h1 := r.AcquireOrCreate("a", []byte("1"))
	h2 := r.AcquireOrCreate("b", []byte("22"))
	r.AcquireOrCreate("b", nil)

	r.ReleaseAll()

	_, ok1 := r.Resolve(h1)
	_, ok2 := r.Resolve(h2)
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.Equal(t, Stats{}, r.Stats())

	// Releasing after teardown must not panic or resurrect anything.
	r.Release("b")
	assert.Equal(t, 0, r.Stats().Count)
}

func TestStats(t *testing.T) {
	r, _ := newTestRegistry(Config{})
	r.AcquireOrCreate("a", make([]byte, 10))
	r.AcquireOrCreate("b", make([]byte, 32))
	r.AcquireOrCreate("b", make([]byte, 99))

	assert.Equal(t, Stats{Count: 2, TotalBytes: 42}, r.Stats())
}

func TestEvictionSkipsReferencedRecords(t *testing.T) {
	r, _ := newTestRegistry(Config{MaxEntries: 2})

	r.AcquireOrCreate("a", []byte("a"))
	r.AcquireOrCreate("b", []byte("b"))
	r.AcquireOrCreate("c", []byte("c"))

	assert.Equal(t, 3, r.Stats().Count, "records in use are never evicted")
	for _, id := range []string{"a", "b", "c"} {
		_, ok := r.Peek(id)
		assert.True(t, ok, id)
	}
}

func TestLazyRevokeEvictsOldestIdle(t *testing.T) {
	r, clock := newTestRegistry(Config{MaxEntries: 2, LazyRevoke: true})

	hA := r.AcquireOrCreate("a", []byte("a"))
	clock.Advance(time.Second)
	r.AcquireOrCreate("b", []byte("b"))
	clock.Advance(time.Second)
	r.Release("a")
	r.Release("b")

	_, ok := r.Resolve(hA)
	assert.True(t, ok, "lazy mode keeps idle records until reclaimed")
	assert.Equal(t, 0, r.RefCount("a"))

	clock.Advance(time.Second)
	r.AcquireOrCreate("c", []byte("c"))

	_, ok = r.Resolve(hA)
	assert.False(t, ok, "oldest idle record should be evicted")
	assert.Equal(t, 2, r.Stats().Count)
}

func TestLazyRevokeReacquireReusesHandle(t *testing.T) {
	r, _ := newTestRegistry(Config{LazyRevoke: true})

	h1 := r.AcquireOrCreate("a", []byte("a"))
	r.Release("a")
	r.Release("a") // extra release on an idle record stays at zero
	h2 := r.AcquireOrCreate("a", []byte("other"))

	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, r.RefCount("a"))
}

func TestSetMaxEntriesShrinks(t *testing.T) {
	r, clock := newTestRegistry(Config{LazyRevoke: true})
	for _, id := range []string{"a", "b", "c", "d"} {
		r.AcquireOrCreate(id, []byte(id))
		clock.Advance(time.Second)
	}
	r.Release("a")
	r.Release("c")

	r.SetMaxEntries(2)

	assert.Equal(t, 2, r.Stats().Count)
	_, okB := r.Peek("b")
	_, okD := r.Peek("d")
	assert.True(t, okB)
	assert.True(t, okD)
}

func TestSweepRemovesOnlyExpiredIdle(t *testing.T) {
	r, clock := newTestRegistry(Config{LazyRevoke: true})

	r.AcquireOrCreate("old", []byte("o"))
	r.AcquireOrCreate("busy", []byte("b"))
	r.Release("old")
	clock.Advance(31 * time.Minute)
	r.AcquireOrCreate("fresh", []byte("f"))
	r.Release("fresh")

	removed := r.Sweep(30 * time.Minute)

	assert.Equal(t, 1, removed)
	_, ok := r.Peek("old")
	assert.False(t, ok)
	_, ok = r.Peek("busy")
	assert.True(t, ok, "referenced records survive any idle age")
	_, ok = r.Peek("fresh")
	assert.True(t, ok)
}

func TestLeaseReleasesOnce(t *testing.T) {
	r, _ := newTestRegistry(Config{})

	lease := r.Acquire("img", []byte("x"))
	r.AcquireOrCreate("img", nil)
	require.Equal(t, 2, r.RefCount("img"))
	assert.Equal(t, "img", lease.ID())

	lease.Release()
	lease.Release()

	assert.Equal(t, 1, r.RefCount("img"), "a lease decrements exactly once")
}

func TestStaleLeaseDoesNotTouchNewRecord(t *testing.T) {
	r, _ := newTestRegistry(Config{})

	lease := r.Acquire("img", []byte("x"))
	r.ReleaseAll()
	fresh := r.AcquireOrCreate("img", []byte("y"))

	lease.Release()

	_, ok := r.Resolve(fresh)
	assert.True(t, ok)
	assert.Equal(t, 1, r.RefCount("img"))
}

func TestNilLeaseRelease(t *testing.T) {
	var lease *Lease
	assert.NotPanics(t, lease.Release)
}

func TestConcurrentAcquireRelease(t *testing.T) {
	r, _ := newTestRegistry(Config{})
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				lease := r.Acquire("shared", []byte("payload"))
				_, ok := r.Resolve(lease.Handle())
				assert.True(t, ok)
				lease.Release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Stats().Count)
}
