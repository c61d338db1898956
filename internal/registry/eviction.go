package registry

import (
	"log/slog"
	"time"
)

// SetMaxEntries changes the capacity and evicts immediately if the registry
// is over it. Zero disables capacity eviction.
func (r *Registry) SetMaxEntries(n int) {
	if n < 0 {
		n = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxEntries = n
	r.evictLocked()
}

// evictLocked removes the least recently accessed unreferenced records until
// the registry is within capacity. Records still referenced are never
// evicted, so the registry may stay over capacity.
func (r *Registry) evictLocked() {
	if r.maxEntries <= 0 {
		return
	}
	for len(r.records) > r.maxEntries {
		victim := r.oldestIdleLocked()
		if victim == nil {
			r.logger.Debug("capacity exceeded but every record is referenced",
				slog.Int("count", len(r.records)),
				slog.Int("max_entries", r.maxEntries))
			return
		}
		r.revokeLocked(victim, "evicted")
	}
}

func (r *Registry) oldestIdleLocked() *record {
	var oldest *record
	for _, rec := range r.records {
		if rec.refCount > 0 {
			continue
		}
		if oldest == nil ||
			rec.lastAccessed.Before(oldest.lastAccessed) ||
			(rec.lastAccessed.Equal(oldest.lastAccessed) && rec.seq < oldest.seq) {
			oldest = rec
		}
	}
	return oldest
}

// Sweep revokes unreferenced records idle for longer than maxIdle and
// returns how many were removed. It is the only idle cleanup the registry
// performs; callers decide when to run it.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	removed := 0
	for _, rec := range r.records {
		if rec.refCount <= 0 && now.Sub(rec.lastAccessed) > maxIdle {
			r.revokeLocked(rec, "expired")
			removed++
		}
	}
	return removed
}
