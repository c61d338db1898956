package registry

import (
	"bytes"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle is a revocable reference to a registered payload, shaped like a
// blob URL. A revoked handle no longer resolves.
type Handle string

// Clock returns the current time. Tests inject a logical clock.
type Clock func() time.Time

// Stats summarizes the live records of a Registry.
type Stats struct {
	Count      int
	TotalBytes int64
}

// Config holds registry settings.
type Config struct {
	// MaxEntries caps the number of records; zero disables eviction.
	MaxEntries int
	// LazyRevoke keeps records whose count dropped to zero until Sweep or
	// capacity eviction reclaims them, so a re-acquire reuses the handle.
	LazyRevoke bool
}

// Option customizes a Registry at construction.
type Option func(*Registry)

// WithClock replaces the wall clock used for access timestamps.
func WithClock(c Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.now = c
		}
	}
}

type record struct {
	id           string
	bytes        []byte
	handle       Handle
	refCount     int
	lastAccessed time.Time
	// seq orders records created within the same clock tick.
	seq uint64
}

// Registry is a reference-counted map from resource ID to payload and handle.
// All methods are safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	records    map[string]*record
	handles    map[Handle]*record
	maxEntries int
	lazy       bool
	seq        uint64
	now        Clock
	logger     *slog.Logger
}

// New creates an empty registry.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		records:    make(map[string]*record),
		handles:    make(map[Handle]*record),
		maxEntries: cfg.MaxEntries,
		lazy:       cfg.LazyRevoke,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newHandle() Handle {
	return Handle("blob:" + uuid.NewString())
}

// AcquireOrCreate returns the handle for id, incrementing its reference
// count. When no record exists, one is created from a private copy of data
// with a reference count of 1. For an existing record data is ignored.
func (r *Registry) AcquireOrCreate(id string, data []byte) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquireLocked(id, data).handle
}

// Acquire is AcquireOrCreate returning a Lease whose Release performs the
// matching decrement exactly once.
func (r *Registry) Acquire(id string, data []byte) *Lease {
	r.mu.Lock()
	rec := r.acquireLocked(id, data)
	r.mu.Unlock()
	return &Lease{registry: r, id: id, handle: rec.handle}
}

func (r *Registry) acquireLocked(id string, data []byte) *record {
	now := r.now()
	if rec, ok := r.records[id]; ok {
		rec.refCount++
		rec.lastAccessed = now
		return rec
	}

	owned := make([]byte, len(data))
	copy(owned, data)
	r.seq++
	rec := &record{
		id:           id,
		bytes:        owned,
		handle:       newHandle(),
		refCount:     1,
		lastAccessed: now,
		seq:          r.seq,
	}
	r.records[id] = rec
	r.handles[rec.handle] = rec
	r.logger.Debug("handle created",
		slog.String("resource_id", id),
		slog.Int("bytes", len(owned)))

	r.evictLocked()
	return rec
}

// Peek returns the handle for id without creating a record or taking a
// reference. A hit refreshes the record's access time.
func (r *Registry) Peek(id string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return "", false
	}
	rec.lastAccessed = r.now()
	return rec.handle, true
}

// Release drops one reference to id. The handle is revoked when the count
// reaches zero (or left for Sweep in lazy mode). Releasing an unknown id is
// a no-op.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		r.releaseLocked(rec)
	}
}

// releaseHandle drops a reference only if id is still bound to handle, so a
// stale lease never decrements a record created after a revocation.
func (r *Registry) releaseHandle(id string, handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok && rec.handle == handle {
		r.releaseLocked(rec)
	}
}

func (r *Registry) releaseLocked(rec *record) {
	if rec.refCount <= 0 {
		return
	}
	rec.refCount--
	if rec.refCount > 0 {
		return
	}
	if !r.lazy {
		r.revokeLocked(rec, "released")
		return
	}
	rec.lastAccessed = r.now()
	r.evictLocked()
}

func (r *Registry) revokeLocked(rec *record, reason string) {
	delete(r.records, rec.id)
	delete(r.handles, rec.handle)
	r.logger.Debug("handle revoked",
		slog.String("resource_id", rec.id),
		slog.String("reason", reason))
}

// ReleaseAll revokes every handle and clears every record.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.records)
	r.records = make(map[string]*record)
	r.handles = make(map[Handle]*record)
	if n > 0 {
		r.logger.Debug("all handles revoked", slog.Int("count", n))
	}
}

// Close tears the registry down, revoking every handle.
func (r *Registry) Close() {
	r.ReleaseAll()
}

// Resolve returns a copy of the payload bound to a live handle. Writes to
// the copy are never seen by other holders of the handle.
func (r *Registry) Resolve(h Handle) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.handles[h]
	if !ok {
		return nil, false
	}
	return bytes.Clone(rec.bytes), true
}

// RefCount returns the current reference count of id, or 0 if absent.
func (r *Registry) RefCount(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		return rec.refCount
	}
	return 0
}

// Stats returns the number of live records and their payload bytes.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, rec := range r.records {
		total += int64(len(rec.bytes))
	}
	return Stats{Count: len(r.records), TotalBytes: total}
}
