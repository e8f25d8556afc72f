package handles

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

// ---------------------------------------------------------------------------
// Shared: a pool used by every thread
// ---------------------------------------------------------------------------

// Shared is a pool guarded by its own lock. Every operation holds the lock
// for its whole duration.
type Shared struct {
	mu   sync.Mutex
	kind Kind
	pool Pool
}

func newShared(k Kind, capacity, max int) *Shared {
	if capacity <= 0 {
		capacity = DefaultGlobalCapacity
	}
	return &Shared{kind: k, pool: newPool(k.String(), capacity, max)}
}

// Kind returns the kind of handle the pool issues.
func (s *Shared) Kind() Kind { return s.kind }

func (s *Shared) allocate(r word.Reference) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, err := s.pool.allocate(r)
	if err != nil {
		return Null, err
	}
	return Encode(s.kind, i), nil
}

func (s *Shared) get(h Handle) (word.Reference, error) {
	if h.Kind() != s.kind {
		return word.Null, fmt.Errorf("%s in %s pool: %w", h, s.kind, ErrInvalidHandle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.get(h.Index())
}

func (s *Shared) release(h Handle) (word.Reference, error) {
	if h.Kind() != s.kind {
		return word.Null, fmt.Errorf("free %s in %s pool: %w", h, s.kind, ErrInvalidHandle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.pool.get(h.Index())
	if err != nil {
		return word.Null, err
	}
	return r, s.pool.release(h.Index())
}

// Stats returns top, capacity and free count under the lock.
func (s *Shared) Stats() (top, capacity, free int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Top(), s.pool.Capacity(), s.pool.FreeCount()
}

// Live returns the number of occupied slots.
func (s *Shared) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool.Live()
}

// ---------------------------------------------------------------------------
// Globals: the GLOBAL and WEAK_GLOBAL pools
// ---------------------------------------------------------------------------

// Globals bundles the process-wide GLOBAL and WEAK_GLOBAL pools. It is
// created once per VM and handed to every thread's local pool.
type Globals struct {
	Strong *Shared
	Weak   *Shared

	registry *heap.WeakRegistry
	cleared  atomic.Int64
}

// GlobalsConfig sizes the shared pools.
type GlobalsConfig struct {
	Capacity int
	Max      int
}

// NewGlobals creates the shared pools. Weak handles register their weak
// references in registry so a collection can clear them.
func NewGlobals(registry *heap.WeakRegistry, cfg GlobalsConfig) *Globals {
	return &Globals{
		Strong:   newShared(Global, cfg.Capacity, cfg.Max),
		Weak:     newShared(WeakGlobal, cfg.Capacity, cfg.Max),
		registry: registry,
	}
}

// NewGlobal returns a GLOBAL handle for o. A nil object yields Null.
func (g *Globals) NewGlobal(o *heap.Object) (Handle, error) {
	if o == nil {
		return Null, nil
	}
	return g.Strong.allocate(word.RefOf(o))
}

// DeleteGlobal releases a GLOBAL handle.
func (g *Globals) DeleteGlobal(h Handle) error {
	if h.IsNull() {
		return nil
	}
	_, err := g.Strong.release(h)
	return err
}

// NewWeakGlobal returns a WEAK_GLOBAL handle for o. The slot holds a weak
// reference, so the handle does not keep o alive.
func (g *Globals) NewWeakGlobal(o *heap.Object) (Handle, error) {
	if o == nil {
		return Null, nil
	}
	wr := g.registry.New(o)
	h, err := g.Weak.allocate(word.RefOf(wr))
	if err != nil {
		g.registry.Unregister(wr)
		return Null, err
	}
	wr.SetFinalizer(func(o *heap.Object) {
		g.cleared.Add(1)
		log.Debugf("weak global %s cleared: %s unreachable", h, o.Class().SourceName())
	})
	return h, nil
}

// Cleared returns the number of weak global handles collections have
// cleared.
func (g *Globals) Cleared() int64 { return g.cleared.Load() }

// DeleteWeakGlobal releases a WEAK_GLOBAL handle.
func (g *Globals) DeleteWeakGlobal(h Handle) error {
	if h.IsNull() {
		return nil
	}
	r, err := g.Weak.release(h)
	if err != nil {
		return err
	}
	g.registry.Unregister(r.Target().(*heap.WeakRef))
	return nil
}

// Get resolves a GLOBAL or WEAK_GLOBAL handle. A weak handle whose referent
// has been collected resolves to nil.
func (g *Globals) Get(h Handle) (*heap.Object, error) {
	switch h.Kind() {
	case Global:
		r, err := g.Strong.get(h)
		if err != nil {
			return nil, err
		}
		return objectOf(r), nil
	case WeakGlobal:
		r, err := g.Weak.get(h)
		if err != nil || r.IsNull() {
			return nil, err
		}
		return r.Target().(*heap.WeakRef).Get(), nil
	}
	return nil, fmt.Errorf("%s is not a global handle: %w", h, ErrInvalidHandle)
}

// VisitRoots reports every object held by a GLOBAL handle. Weak handles are
// not roots.
func (g *Globals) VisitRoots(fn func(*heap.Object)) {
	g.Strong.mu.Lock()
	defer g.Strong.mu.Unlock()
	g.Strong.pool.visit(func(_ int, r word.Reference) { fn(objectOf(r)) })
}
