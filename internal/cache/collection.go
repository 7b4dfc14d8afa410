package cache

import (
	"errors"
	"sync"
)

// ErrUnknownOp is returned when settling an op the collection does not track.
var ErrUnknownOp = errors.New("unknown pending op")

// ErrNotLoaded is returned when applying an op before the first population.
var ErrNotLoaded = errors.New("collection not loaded")

type pendingOp[V any] struct {
	id    string
	apply func(V) V
}

// Collection is an optimistically updated copy of one stored collection.
//
// It keeps the last confirmed value (base) and the ordered log of pending
// ops. The value served to readers is always base with every pending op
// replayed on top. Op functions must not modify their argument.
type Collection[V any] struct {
	mu      sync.Mutex
	base    V
	view    V
	loaded  bool
	pending []pendingOp[V]
	version uint64
}

func NewCollection[V any]() *Collection[V] {
	return &Collection[V]{}
}

// Get returns the current view and whether the collection was populated.
func (c *Collection[V]) Get() (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view, c.loaded
}

// Loaded reports whether the collection holds a value.
func (c *Collection[V]) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Populate sets the first value. It returns false when the collection was
// already populated, in which case v is ignored.
func (c *Collection[V]) Populate(v V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return false
	}
	c.base, c.view, c.loaded = v, v, true
	c.version++
	return true
}

// Apply runs fn on the current view and records it as pending under id.
// It returns the view before and after the op.
func (c *Collection[V]) Apply(id string, fn func(V) V) (before, after V, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return before, after, ErrNotLoaded
	}
	before = c.view
	c.view = fn(c.view)
	c.pending = append(c.pending, pendingOp[V]{id: id, apply: fn})
	c.version++
	return before, c.view, nil
}

// Confirm folds the op into the confirmed base. The view does not change.
func (c *Collection[V]) Confirm(id string) (remaining int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(id)
	if i < 0 {
		return len(c.pending), ErrUnknownOp
	}
	c.base = c.pending[i].apply(c.base)
	c.pending = append(c.pending[:i:i], c.pending[i+1:]...)
	return len(c.pending), nil
}

// Rollback drops the op and rebuilds the view as the base with the remaining
// ops replayed. Ops rolled back earlier stay out of the view even when they
// were pending when this op was applied. It returns the view before and after
// the rollback.
func (c *Collection[V]) Rollback(id string) (before, after V, remaining int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(id)
	if i < 0 {
		return c.view, c.view, len(c.pending), ErrUnknownOp
	}
	before = c.view
	c.pending = append(c.pending[:i:i], c.pending[i+1:]...)
	c.view = c.replay()
	c.version++
	return before, c.view, len(c.pending), nil
}

// Version changes every time the view changes.
func (c *Collection[V]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Pending returns the number of unsettled ops.
func (c *Collection[V]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Replace installs v as confirmed truth if nothing happened since version was
// read and no op is pending. It returns the replaced view and whether v was
// installed.
func (c *Collection[V]) Replace(v V, version uint64) (old V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != version || len(c.pending) > 0 {
		return c.view, false
	}
	old = c.view
	c.base, c.view, c.loaded = v, v, true
	c.version++
	return old, true
}

// Rebase installs v as confirmed truth and replays pending ops on top of it.
func (c *Collection[V]) Rebase(v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base, c.loaded = v, true
	c.view = c.replay()
	c.version++
}

func (c *Collection[V]) replay() V {
	v := c.base
	for _, op := range c.pending {
		v = op.apply(v)
	}
	return v
}

func (c *Collection[V]) index(id string) int {
	for i := range c.pending {
		if c.pending[i].id == id {
			return i
		}
	}
	return -1
}
