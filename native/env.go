package native

import (
	"fmt"
	"strings"

	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

// Anchor links a native/managed transition to the previous one so the
// mixed stack can be walked. Downcalls record the native method and the
// entry point they called; upcalls leave the frame fields blank.
type Anchor struct {
	Prev   *Anchor
	PC     word.Address
	FP     word.Address
	SP     word.Address
	Method *heap.Method
}

// ThreadState says which side of the boundary a thread is executing on.
type ThreadState int

const (
	StateNative ThreadState = iota
	StateManaged
)

func (s ThreadState) String() string {
	if s == StateManaged {
		return "managed"
	}
	return "native"
}

// Env is the per-thread interface state: the thread's local handle pool,
// its anchor chain and its pending exception. An Env is used only by the
// thread it is attached to.
type Env struct {
	vm    *VM
	name  string
	tid   int
	local *handles.LocalPool
	cell  word.Pointer // holds the table base, as a JNIEnv does

	anchor   *Anchor
	pending  *heap.Object
	state    ThreadState
	stacks   []*handles.StackFrame
	detached bool
}

func newEnv(vm *VM, name string, tid int) (*Env, error) {
	cell, err := vm.mem.Allocate(word.Size)
	if err != nil {
		return nil, err
	}
	cell.WriteWord(0, vm.table.Base().AsWord())
	h := vm.cfg.Handles
	return &Env{
		vm:     vm,
		name:   name,
		tid:    tid,
		local:  handles.NewLocalPool(vm.globals, h.LocalCapacity, h.MaxLocal),
		cell:   cell,
		anchor: &Anchor{},
	}, nil
}

func (e *Env) String() string { return fmt.Sprintf("Env(%s, tid %d)", e.name, e.tid) }

// VM returns the virtual machine e belongs to.
func (e *Env) VM() *VM { return e.vm }

// Name returns the thread name given at attach time.
func (e *Env) Name() string { return e.name }

// ThreadID returns the OS thread id of the attached thread.
func (e *Env) ThreadID() int { return e.tid }

// Pointer returns the address native code receives as its environment
// pointer. The first word at that address is the function table base.
func (e *Env) Pointer() word.Pointer { return e.cell }

// Local returns the thread's local handle pool.
func (e *Env) Local() *handles.LocalPool { return e.local }

// State returns the side of the boundary e is executing on.
func (e *Env) State() ThreadState { return e.state }

// Anchor returns the most recent anchor, or nil for a detached thread.
func (e *Env) Anchor() *Anchor { return e.anchor }

// Pending returns the pending exception, or nil.
func (e *Env) Pending() *heap.Object { return e.pending }

// SetPending replaces the pending exception.
func (e *Env) SetPending(t *heap.Object) { e.pending = t }

// TakePending returns and clears the pending exception.
func (e *Env) TakePending() *heap.Object {
	t := e.pending
	e.pending = nil
	return t
}

// StackTrace walks the anchor chain from the most recent transition and
// returns the native methods the thread is inside, innermost first.
func (e *Env) StackTrace() []*heap.Method {
	var out []*heap.Method
	for a := e.anchor; a != nil; a = a.Prev {
		if a.Method != nil {
			out = append(out, a.Method)
		}
	}
	return out
}

// describeStack renders the anchor chain for diagnostics.
func (e *Env) describeStack() string {
	var b strings.Builder
	depth := 0
	for a := e.anchor; a != nil; a = a.Prev {
		if a.Method != nil {
			fmt.Fprintf(&b, "\n\tat %s (native entry %s)", a.Method, a.PC)
		} else if a.Prev == nil {
			b.WriteString("\n\tat <attached native thread>")
		} else {
			b.WriteString("\n\tat <upcall>")
		}
		depth++
	}
	if depth == 0 {
		return "\n\t<no anchors>"
	}
	return b.String()
}

// VisitRoots enumerates every object the thread holds: local handles,
// parameter cells of active downcalls and the pending exception.
func (e *Env) VisitRoots(fn func(*heap.Object)) {
	e.local.VisitRoots(fn)
	for _, s := range e.stacks {
		s.VisitRoots(fn)
	}
	if e.pending != nil {
		fn(e.pending)
	}
}

// ---------------------------------------------------------------------------
// Handle helpers
// ---------------------------------------------------------------------------

// Resolve returns the object a handle refers to.
func (e *Env) Resolve(h handles.Handle) (*heap.Object, error) {
	return e.local.Get(h)
}

// NewLocal allocates a local handle for o. A nil object yields the null
// handle.
func (e *Env) NewLocal(o *heap.Object) (handles.Handle, error) {
	if o == nil {
		return handles.Null, nil
	}
	return e.local.Allocate(o)
}

func (e *Env) nonNull(h handles.Handle, what string) (*heap.Object, error) {
	o, err := e.local.Get(h)
	if err != nil {
		return nil, err
	}
	if o == nil {
		u := e.vm.universe
		return nil, u.Throw(u.NullPointerException, "%s is null", what)
	}
	return o, nil
}

// classOf resolves a handle to a java/lang/Class mirror.
func (e *Env) classOf(h handles.Handle) (*heap.Class, error) {
	o, err := e.nonNull(h, "class")
	if err != nil {
		return nil, err
	}
	c, ok := o.Payload.(*heap.Class)
	if !ok {
		u := e.vm.universe
		return nil, u.Throw(u.ClassCastException, "%s is not a class", o.Class().SourceName())
	}
	return c, nil
}

func (e *Env) methodOf(id word.Word) (*heap.Method, error) {
	m, ok := e.vm.universe.MethodByID(id)
	if !ok {
		u := e.vm.universe
		return nil, u.Throw(u.NoSuchMethodError, "invalid method ID %d", id)
	}
	return m, nil
}

func (e *Env) fieldOf(id word.Word) (*heap.Field, error) {
	f, ok := e.vm.universe.FieldByID(id)
	if !ok {
		u := e.vm.universe
		return nil, u.Throw(u.NoSuchFieldError, "invalid field ID %d", id)
	}
	return f, nil
}
