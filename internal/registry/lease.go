package registry

import "sync"

// Lease is one counted reference to a registered payload. Release it when
// the handle is no longer displayed; further calls to Release are no-ops.
type Lease struct {
	registry *Registry
	id       string
	handle   Handle
	once     sync.Once
}

// ID returns the resource ID the lease refers to.
func (l *Lease) ID() string { return l.id }

// Handle returns the leased handle.
func (l *Lease) Handle() Handle { return l.handle }

// Release drops the lease's reference exactly once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.registry.releaseHandle(l.id, l.handle)
	})
}
