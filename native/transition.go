package native

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/linker"
	"github.com/chazu/boundary/memory"
	"github.com/chazu/boundary/word"
)

// ---------------------------------------------------------------------------
// Prologue / epilogue
// ---------------------------------------------------------------------------

// transition is the state an upcall prologue saves for its epilogue.
type transition struct {
	op         string
	prev       *Anchor
	fromNative bool
}

func (e *Env) enter(op string) transition {
	prev := e.anchor
	if prev == nil {
		fatal("%s on thread %q: no anchor; the native context is missing or corrupted", op, e.name)
	}
	t := transition{op: op, prev: prev, fromNative: e.state == StateNative}
	e.anchor = &Anchor{Prev: prev}
	if t.fromNative {
		e.vm.safepoint.RLock()
		e.state = StateManaged
	}
	if e.vm.cfg.Trace.Upcalls {
		log.Infof("%s", e.traceLine("-->", op, prev))
	}
	return t
}

func (e *Env) exit(t transition) {
	if e.vm.cfg.Trace.Upcalls {
		log.Infof("%s", e.traceLine("<--", t.op, t.prev))
	}
	e.anchor = t.prev
	if t.fromNative {
		e.state = StateNative
		e.vm.safepoint.RUnlock()
	}
}

func (e *Env) traceLine(dir, op string, prev *Anchor) string {
	for a := prev; a != nil; a = a.Prev {
		if a.Method != nil {
			return fmt.Sprintf("[Thread %q %s upcall: %s, last down call: %s]", e.name, dir, op, a.Method)
		}
	}
	return fmt.Sprintf("[Thread %q %s upcall: %s, called from attached native thread]", e.name, dir, op)
}

// upcall runs body as a native-to-managed transition. Whatever body fails
// with becomes the pending exception and the caller gets sentinel. Memory
// faults in body, such as reading a bad pointer argument, count as failures.
func upcall[T any](e *Env, op string, sentinel T, body func() (T, error)) (result T) {
	t := e.enter(op)
	defer e.exit(t)
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			e.capture(op, e.recovered(op, r))
			result = sentinel
		}
	}()
	v, err := body()
	if err != nil {
		e.capture(op, err)
		return sentinel
	}
	return v
}

// upcallVoid is upcall for operations without a result.
func upcallVoid(e *Env, op string, body func() error) {
	upcall(e, op, struct{}{}, func() (struct{}, error) {
		return struct{}{}, body()
	})
}

// blocking runs fn with the thread counted as native so a collection can
// proceed while fn waits.
func (e *Env) blocking(fn func()) {
	if e.state != StateManaged {
		fn()
		return
	}
	e.state = StateNative
	e.vm.safepoint.RUnlock()
	defer func() {
		e.vm.safepoint.RLock()
		e.state = StateManaged
	}()
	fn()
}

// ---------------------------------------------------------------------------
// Exception capture
// ---------------------------------------------------------------------------

func (e *Env) capture(op string, err error) {
	t := e.throwableFor(err)
	e.pending = t
	if e.vm.cfg.Trace.Upcalls {
		log.Debugf("%s on thread %q raised %s", op, e.name, t.Class().SourceName())
	}
}

// recovered maps a panic inside an operation body to an error. Fatal errors
// keep unwinding; pool invariant violations become fatal.
func (e *Env) recovered(op string, r any) error {
	u := e.vm.universe
	switch v := r.(type) {
	case *FatalError:
		panic(v)
	case *handles.InvariantError:
		fatal("%s: %v", op, v)
	case *word.ArithmeticError:
		return u.Throw(u.ArithmeticException, "%s", v.Error())
	case error:
		return v
	}
	return u.Throw(u.InternalError, "%s: %v", op, r)
}

// throwableFor returns the managed exception object that represents err.
func (e *Env) throwableFor(err error) *heap.Object {
	u := e.vm.universe
	if t, ok := heap.AsThrowable(err); ok {
		return t.Object
	}
	var (
		le *linker.LinkError
		ue *linker.UnresolvedSymbolError
	)
	switch {
	case errors.Is(err, handles.ErrCapacityExhausted), errors.Is(err, memory.ErrExhausted):
		return u.NewThrowable(u.OutOfMemoryError, err.Error())
	case errors.Is(err, handles.ErrInvalidHandle):
		return u.NewThrowable(u.IllegalArgumentException, err.Error())
	case errors.Is(err, heap.ErrNotOwner):
		return u.NewThrowable(u.IllegalMonitorStateException, err.Error())
	case errors.As(err, &le), errors.As(err, &ue), errors.Is(err, linker.ErrNotInitialized):
		return u.NewThrowable(u.UnsatisfiedLinkError, err.Error())
	}
	return u.NewThrowable(u.InternalError, err.Error())
}
