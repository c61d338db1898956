package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DefaultLimit is the number of operations allowed to run at once when no
// valid limit is configured.
const DefaultLimit = 3

// Op is an operation scheduled through a Coordinator. The context carries
// the values of the submitting context but is never cancelled.
type Op func(ctx context.Context) (any, error)

// Config holds configuration for a Coordinator.
type Config struct {
	// Limit is the maximum number of operations running at once.
	// If zero or negative, DefaultLimit is used.
	Limit int
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{Limit: DefaultLimit}
}

// Status is a snapshot of a Coordinator.
type Status struct {
	// Running counts occupied slots, including operations whose
	// bookkeeping was dropped by CancelRunning.
	Running int
	// Queued counts requests waiting for a slot.
	Queued int
	// Pending counts distinct requests queued or running.
	Pending int
	// Limit is the configured concurrency limit.
	Limit int
}

// RunningRequest describes a request currently holding a slot.
type RunningRequest struct {
	ID       string
	Key      string
	Started  time.Time
	Duration time.Duration
}

// entry is one distinct request, shared by every attached caller.
type entry struct {
	id          string
	key         string
	priority    int
	prioritized bool
	ctx         context.Context
	op          Op

	// admit receives nil when the entry gets a slot, or the error that
	// removed it from the queue.
	admit   chan error
	started time.Time
}

// Coordinator limits concurrent operations, queues the excess by priority
// and deduplicates identical requests.
type Coordinator struct {
	// limit is the number of slots in sem
	limit int

	// sem holds one unit per running operation. It is only touched while
	// mu is held so admission order follows the queue.
	sem *semaphore.Weighted

	// group collapses callers of the same key onto one execution
	group singleflight.Group

	mu sync.Mutex

	// pending maps request keys to queued or running entries
	pending map[string]*entry

	// queue holds admitted-later entries in promotion order
	queue []*entry

	// active counts occupied slots
	active int

	now    func() time.Time
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator with the specified configuration.
func NewCoordinator(cfg Config, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
		logger.Warn("invalid concurrency limit specified, using default",
			slog.Int("specified_limit", cfg.Limit),
			slog.Int("default_limit", DefaultLimit))
	}

	return &Coordinator{
		limit:   limit,
		sem:     semaphore.NewWeighted(int64(limit)),
		pending: make(map[string]*entry),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "coordinator")),
	}
}

// SubmitOption configures a single Submit call.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	priority    int
	prioritized bool
	key         string
	hasKey      bool
}

// WithPriority queues the request ahead of every waiting request with a
// strictly lower priority. Requests without a priority count as 0 and are
// appended to the queue.
func WithPriority(p int) SubmitOption {
	return func(o *submitOptions) {
		o.priority = p
		o.prioritized = true
	}
}

// WithKey sets the parameter part of the request key explicitly, as if
// params were the string k. It is required for params that cannot be
// encoded as JSON.
func WithKey(k string) SubmitOption {
	return func(o *submitOptions) {
		o.key = k
		o.hasKey = true
	}
}

// Submit schedules op under the request (id, params) and waits for its
// outcome. If an identical request is already queued or running, the caller
// attaches to it instead and op is discarded.
//
// When ctx ends before the outcome is available Submit returns ctx.Err(),
// but the shared operation is not cancelled.
func (c *Coordinator) Submit(ctx context.Context, id string, params any, op Op, opts ...SubmitOption) (any, error) {
	var o submitOptions
	for _, opt := range opts {
		opt(&o)
	}

	var (
		key string
		err error
	)
	if o.hasKey {
		key, err = RequestKey(id, o.key)
	} else {
		key, err = RequestKey(id, params)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	e, ok := c.pending[key]
	if !ok {
		e = &entry{
			id:          id,
			key:         key,
			priority:    o.priority,
			prioritized: o.prioritized,
			ctx:         context.WithoutCancel(ctx),
			op:          op,
			admit:       make(chan error, 1),
		}
		c.pending[key] = e
		c.admitOrEnqueueLocked(e)
	} else {
		c.logger.Debug("request attached to pending request", slog.String("key", key))
	}
	ch := c.group.DoChan(key, func() (any, error) {
		return c.execute(e)
	})
	c.mu.Unlock()

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		c.logger.Debug("caller detached from request",
			slog.String("key", key),
			slog.String("reason", ctx.Err().Error()))
		return nil, ctx.Err()
	}
}

// Submit is the typed form of Coordinator.Submit.
func Submit[T any](
	ctx context.Context,
	c *Coordinator,
	id string,
	params any,
	op func(ctx context.Context) (T, error),
	opts ...SubmitOption,
) (T, error) {
	var zero T
	v, err := c.Submit(ctx, id, params, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", ErrResultType, v)
	}
	return t, nil
}

// admitOrEnqueueLocked takes a slot for e if one is free and nothing is
// waiting, otherwise places e in the queue.
func (c *Coordinator) admitOrEnqueueLocked(e *entry) {
	if len(c.queue) == 0 && c.sem.TryAcquire(1) {
		c.startLocked(e)
		return
	}

	pos := len(c.queue)
	if e.prioritized {
		for i, q := range c.queue {
			if q.priority < e.priority {
				pos = i
				break
			}
		}
	}
	c.queue = append(c.queue, nil)
	copy(c.queue[pos+1:], c.queue[pos:])
	c.queue[pos] = e

	c.logger.Debug("request queued",
		slog.String("key", e.key),
		slog.Int("position", pos),
		slog.Int("queued", len(c.queue)))
}

func (c *Coordinator) startLocked(e *entry) {
	c.active++
	e.started = c.now()
	e.admit <- nil
}

// promoteLocked fills free slots from the front of the queue.
func (c *Coordinator) promoteLocked() {
	for len(c.queue) > 0 && c.sem.TryAcquire(1) {
		next := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.startLocked(next)
	}
}

// execute runs inside the singleflight call for e.key.
func (c *Coordinator) execute(e *entry) (val any, err error) {
	if err := <-e.admit; err != nil {
		return nil, err
	}

	c.logger.Debug("request started", slog.String("key", e.key))
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("operation panicked",
				slog.String("key", e.key),
				slog.Any("panic", p))
			val, err = nil, fmt.Errorf("%w: %v", ErrOperationPanicked, p)
		}
		c.finish(e, err)
	}()

	return e.op(e.ctx)
}

// finish frees the slot of e and promotes waiting requests. The
// bookkeeping for e.key is dropped only if it still belongs to e.
func (c *Coordinator) finish(e *entry, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending[e.key] == e {
		delete(c.pending, e.key)
		c.group.Forget(e.key)
	}
	c.active--
	c.sem.Release(1)
	c.promoteLocked()

	log := c.logger.With(
		slog.String("key", e.key),
		slog.Duration("duration", c.now().Sub(e.started)))
	if err != nil {
		log.Debug("request failed", slog.String("error", err.Error()))
		return
	}
	log.Debug("request completed")
}

// CancelQueued removes a queued request. Every caller attached to it
// receives ErrCancelled. Without params the first queued request submitted
// under id is removed. It reports false when nothing queued matches.
func (c *Coordinator) CancelQueued(id string, params ...any) bool {
	sel, ok := selectorOf(id, params)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.queue {
		if !sel.matches(e) {
			continue
		}
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
		c.dropLocked(e, ErrCancelled)
		c.logger.Debug("queued request cancelled", slog.String("key", e.key))
		return true
	}
	return false
}

// CancelRunning forgets a running request so that the next identical
// Submit starts a new execution. Without params the longest running request
// submitted under id is chosen. The running operation keeps its slot until
// it returns, and callers already attached still receive its outcome.
func (c *Coordinator) CancelRunning(id string, params ...any) bool {
	sel, ok := selectorOf(id, params)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var target *entry
	for _, e := range c.pending {
		if e.started.IsZero() || !sel.matches(e) {
			continue
		}
		if target == nil || e.started.Before(target.started) {
			target = e
		}
	}
	if target == nil {
		return false
	}
	delete(c.pending, target.key)
	c.group.Forget(target.key)
	c.logger.Debug("running request detached", slog.String("key", target.key))
	return true
}

// ClearQueue cancels every queued request with ErrQueueCleared and returns
// how many were removed. Running requests are unaffected.
func (c *Coordinator) ClearQueue() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.queue)
	for _, e := range c.queue {
		c.dropLocked(e, ErrQueueCleared)
	}
	c.queue = nil
	if n > 0 {
		c.logger.Info("queue cleared", slog.Int("cancelled", n))
	}
	return n
}

func (c *Coordinator) dropLocked(e *entry, err error) {
	delete(c.pending, e.key)
	c.group.Forget(e.key)
	e.admit <- err
}

// IsPending reports whether a matching request is queued or running.
// Without params any request submitted under id counts.
func (c *Coordinator) IsPending(id string, params ...any) bool {
	sel, ok := selectorOf(id, params)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if sel.byKey {
		_, ok = c.pending[sel.key]
		return ok
	}
	for _, e := range c.pending {
		if sel.matches(e) {
			return true
		}
	}
	return false
}

// Status returns a snapshot of slot and queue usage.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Running: c.active,
		Queued:  len(c.queue),
		Pending: len(c.pending),
		Limit:   c.limit,
	}
}

// Running lists the tracked running requests, longest running first.
func (c *Coordinator) Running() []RunningRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]RunningRequest, 0, c.active)
	for _, e := range c.pending {
		if e.started.IsZero() {
			continue
		}
		out = append(out, RunningRequest{
			ID:       e.id,
			Key:      e.key,
			Started:  e.started,
			Duration: now.Sub(e.started),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Started.Before(out[j].Started) })
	return out
}
