// Package pending tracks authorization requests awaiting a reply.
//
// Every entry is resolved exactly once: by a matching reply, by its timeout,
// by its caller giving up, or by Close. Resolution removes the entry from the
// map under the lock, and only the goroutine that removed it may deliver the
// result.
package pending

import (
	"context"
	"errors"
	"sync"
	"time"

	"userprofile/internal/events"
)

var (
	ErrTimeout        = errors.New("authorization reply timed out")
	ErrCancelled      = errors.New("authorization request cancelled")
	ErrDuplicate      = errors.New("correlation id already pending")
	ErrClosed         = errors.New("pending registry closed")
	ErrInvalidTimeout = errors.New("timeout must be positive")
)

// Result is delivered once per entry.
type Result struct {
	Response events.AuthorizationResponse
	Err      error
}

type entry struct {
	id        string
	createdAt time.Time
	result    chan Result
	timer     *time.Timer
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	now     func() time.Time
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register creates an entry for id that fails with ErrTimeout unless
// resolved within timeout.
func (r *Registry) Register(id string, timeout time.Duration) (*Waiter, error) {
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if _, ok := r.entries[id]; ok {
		return nil, ErrDuplicate
	}

	e := &entry{
		id:        id,
		createdAt: r.now(),
		result:    make(chan Result, 1),
	}
	r.entries[id] = e
	e.timer = time.AfterFunc(timeout, func() {
		r.settle(e, Result{Err: ErrTimeout})
	})
	return &Waiter{entry: e, registry: r}, nil
}

// Resolve delivers resp to its waiter. It returns false when no entry is
// pending for the correlation id (already timed out, duplicate delivery, or
// a reply meant for another instance).
func (r *Registry) Resolve(resp events.AuthorizationResponse) bool {
	return r.finish(resp.CorrelationID, Result{Response: resp})
}

// Fail resolves id with err.
func (r *Registry) Fail(id string, err error) bool {
	return r.finish(id, Result{Err: err})
}

// Cancel resolves id with ErrCancelled.
func (r *Registry) Cancel(id string) bool {
	return r.finish(id, Result{Err: ErrCancelled})
}

// Close cancels every outstanding entry and rejects later registrations.
// It returns the number of entries cancelled.
func (r *Registry) Close() int {
	r.mu.Lock()
	r.closed = true
	outstanding := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		delete(r.entries, id)
		outstanding = append(outstanding, e)
	}
	r.mu.Unlock()

	for _, e := range outstanding {
		e.timer.Stop()
		e.result <- Result{Err: ErrCancelled}
	}
	return len(outstanding)
}

// Len returns the number of outstanding entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) finish(id string, res Result) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.timer.Stop()
	e.result <- res
	return true
}

// settle resolves e only if it is still the live entry for its id, so a
// stale timer or waiter can never touch a later entry that reused the id.
func (r *Registry) settle(e *entry, res Result) bool {
	r.mu.Lock()
	current, ok := r.entries[e.id]
	if !ok || current != e {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, e.id)
	r.mu.Unlock()
	e.timer.Stop()
	e.result <- res
	return true
}

// Waiter is the caller's handle on one pending entry.
type Waiter struct {
	entry    *entry
	registry *Registry
}

// ID returns the correlation id.
func (w *Waiter) ID() string { return w.entry.id }

// CreatedAt returns when the entry was registered.
func (w *Waiter) CreatedAt() time.Time { return w.entry.createdAt }

// Cancel abandons the entry. It reports false if the entry already resolved.
func (w *Waiter) Cancel() bool {
	return w.registry.settle(w.entry, Result{Err: ErrCancelled})
}

// Wait blocks until the entry resolves or ctx ends. If ctx ends first the
// entry is cancelled; should a reply win that race, the reply is returned.
func (w *Waiter) Wait(ctx context.Context) (events.AuthorizationResponse, error) {
	select {
	case res := <-w.entry.result:
		return res.Response, res.Err
	case <-ctx.Done():
		if w.Cancel() {
			<-w.entry.result
			return events.AuthorizationResponse{}, ctx.Err()
		}
		res := <-w.entry.result
		return res.Response, res.Err
	}
}
