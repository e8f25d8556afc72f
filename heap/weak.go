package heap

import (
	"sync"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// WeakRef: a reference that doesn't keep its target alive
// ---------------------------------------------------------------------------

// WeakRef holds a weak reference to an object. When a collection finds the
// target otherwise unreachable, the reference is cleared.
type WeakRef struct {
	id        uint64
	target    *Object
	finalizer func(*Object)
	mu        sync.RWMutex
}

// ID returns the registry identifier of the reference.
func (wr *WeakRef) ID() uint64 { return wr.id }

// Get returns the target, or nil once it has been cleared.
func (wr *WeakRef) Get() *Object {
	wr.mu.RLock()
	defer wr.mu.RUnlock()
	return wr.target
}

// IsAlive reports whether the target has not been cleared.
func (wr *WeakRef) IsAlive() bool { return wr.Get() != nil }

// Clear drops the target and returns it.
func (wr *WeakRef) Clear() *Object {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	old := wr.target
	wr.target = nil
	return old
}

// SetFinalizer installs a callback run after the target is cleared by a
// collection.
func (wr *WeakRef) SetFinalizer(fn func(*Object)) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.finalizer = fn
}

// ---------------------------------------------------------------------------
// WeakRegistry: every live weak reference
// ---------------------------------------------------------------------------

// WeakRegistry tracks weak references so a collection can clear those whose
// targets were not marked.
type WeakRegistry struct {
	refs   map[uint64]*WeakRef
	nextID atomic.Uint64
	mu     sync.RWMutex
}

// NewWeakRegistry creates an empty registry.
func NewWeakRegistry() *WeakRegistry {
	return &WeakRegistry{refs: make(map[uint64]*WeakRef)}
}

// New creates and registers a weak reference to target.
func (r *WeakRegistry) New(target *Object) *WeakRef {
	wr := &WeakRef{id: r.nextID.Add(1), target: target}
	r.mu.Lock()
	r.refs[wr.id] = wr
	r.mu.Unlock()
	return wr
}

// Unregister removes a weak reference from the registry.
func (r *WeakRegistry) Unregister(wr *WeakRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.refs, wr.id)
}

// Count returns the number of registered weak references.
func (r *WeakRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.refs)
}

// ProcessGC clears weak references whose targets are not in marked and runs
// their finalizers outside the registry lock. It returns the number cleared.
func (r *WeakRegistry) ProcessGC(marked map[*Object]struct{}) int {
	var cleared []struct {
		wr     *WeakRef
		target *Object
	}

	r.mu.Lock()
	for _, wr := range r.refs {
		target := wr.Get()
		if target == nil {
			continue
		}
		if _, ok := marked[target]; !ok {
			wr.Clear()
			cleared = append(cleared, struct {
				wr     *WeakRef
				target *Object
			}{wr, target})
		}
	}
	r.mu.Unlock()

	for _, item := range cleared {
		item.wr.mu.RLock()
		fn := item.wr.finalizer
		item.wr.mu.RUnlock()
		if fn != nil {
			fn(item.target)
		}
	}
	return len(cleared)
}
