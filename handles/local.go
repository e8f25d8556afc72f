package handles

import (
	"fmt"

	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

// frame records the pool top at a PushFrame or Enter. PopFrame stops at a
// barrier frame.
type frame struct {
	top     int
	prev    *frame
	barrier bool
}

// LocalPool is a thread's pool of LOCAL handles together with its frame
// stack. It is owned by one thread and takes no locks; the collector only
// reads it while that thread is stopped.
type LocalPool struct {
	Pool
	frames  *frame
	depth   int
	globals *Globals
}

// NewLocalPool creates a local pool that resolves GLOBAL and WEAK_GLOBAL
// handles through globals.
func NewLocalPool(globals *Globals, capacity, max int) *LocalPool {
	if capacity <= 0 {
		capacity = DefaultLocalCapacity
	}
	return &LocalPool{
		Pool:    newPool("local", capacity, max),
		globals: globals,
	}
}

// Globals returns the shared pools this pool resolves through.
func (p *LocalPool) Globals() *Globals { return p.globals }

// Allocate returns a new LOCAL handle for o. A nil object yields Null.
func (p *LocalPool) Allocate(o *heap.Object) (Handle, error) {
	if o == nil {
		return Null, nil
	}
	i, err := p.allocate(word.RefOf(o))
	if err != nil {
		return Null, err
	}
	return Encode(Local, i), nil
}

// Free releases a LOCAL handle.
func (p *LocalPool) Free(h Handle) error {
	if h.IsNull() {
		return nil
	}
	if h.Kind() != Local {
		return fmt.Errorf("free %s in local pool: %w", h, ErrInvalidHandle)
	}
	return p.release(h.Index())
}

// Get resolves a handle of any kind on behalf of the owning thread: STACK by
// reading the referenced cell, LOCAL through this pool, GLOBAL and
// WEAK_GLOBAL through the shared pools. A cleared weak handle yields nil.
func (p *LocalPool) Get(h Handle) (*heap.Object, error) {
	if h.IsNull() {
		return nil, nil
	}
	switch h.Kind() {
	case Stack:
		return objectOf(h.StackAddress().ReadReference(0)), nil
	case Local:
		r, err := p.get(h.Index())
		if err != nil {
			return nil, err
		}
		return objectOf(r), nil
	}
	return p.globals.Get(h)
}

// EnsureCapacity guarantees n more LOCAL allocations without growth.
func (p *LocalPool) EnsureCapacity(n int) error { return p.ensureCapacity(n) }

// PushFrame opens a scope after reserving capacity for n handles. Handles
// allocated until the matching PopFrame are released by it.
func (p *LocalPool) PushFrame(n int) error {
	if err := p.ensureCapacity(n); err != nil {
		return err
	}
	p.frames = &frame{top: p.top, prev: p.frames}
	p.depth++
	return nil
}

// PopFrame closes the innermost scope. The object result designates is
// resolved before the scope's slots are cleared and, if non-nil, receives a
// fresh LOCAL handle in the enclosing scope. With no open scope, or when the
// innermost scope is an Enter barrier, the result is returned unchanged.
func (p *LocalPool) PopFrame(result Handle) (Handle, error) {
	if p.frames == nil || p.frames.barrier {
		return result, nil
	}
	obj, err := p.Get(result)
	if err != nil {
		obj = nil
	}
	f := p.frames
	p.resetTop(f.top)
	p.frames = f.prev
	p.depth--
	if obj == nil {
		return Null, nil
	}
	return p.Allocate(obj)
}

// Depth returns the number of open frames.
func (p *LocalPool) Depth() int { return p.depth }

// Scope is the pool position saved by Enter.
type Scope struct {
	f     *frame
	depth int
}

// Enter opens the scope of one native method call after reserving n slots.
// The scope is a barrier: PopFrame never closes it or any frame beneath it.
func (p *LocalPool) Enter(n int) (Scope, error) {
	if err := p.ensureCapacity(n); err != nil {
		return Scope{}, err
	}
	s := Scope{depth: p.depth}
	p.frames = &frame{top: p.top, prev: p.frames, barrier: true}
	p.depth++
	s.f = p.frames
	return s, nil
}

// Depth returns the pool depth before the scope was entered.
func (s Scope) Depth() int { return s.depth }

// Leave closes the scope s and every frame opened inside it, releasing all
// handles allocated since Enter.
func (p *LocalPool) Leave(s Scope) {
	if s.f == nil {
		invariant("leave of a scope that was never entered")
	}
	p.ResetTop(s.f.top)
	p.frames = s.f.prev
	p.depth = s.depth
}

// ResetTop releases every handle at index t and above. A t above the
// current top is an invariant violation and panics with
// *InvariantError.
func (p *LocalPool) ResetTop(t int) { p.resetTop(t) }

// VisitRoots reports every object held by the pool.
func (p *LocalPool) VisitRoots(fn func(*heap.Object)) {
	p.visit(func(_ int, r word.Reference) { fn(objectOf(r)) })
}
