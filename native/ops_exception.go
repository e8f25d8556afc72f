package native

import (
	"fmt"

	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

func registerExceptionOps(ops opTable) {
	ops.add("Throw", func(e *Env, a []word.Word) word.Word {
		return intWord(e.Throw(argv(a).handle(0)))
	})
	ops.add("ThrowNew", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return intWord(upcall(e, "ThrowNew", int32(Err), func() (int32, error) {
			msg, ok := args.cstring(1)
			if !ok {
				return e.throwNew(args.handle(0), nil)
			}
			return e.throwNew(args.handle(0), &msg)
		}))
	})
	ops.add("ExceptionOccurred", func(e *Env, a []word.Word) word.Word {
		return handleWord(e.ExceptionOccurred())
	})
	ops.add("ExceptionDescribe", func(e *Env, a []word.Word) word.Word {
		e.ExceptionDescribe()
		return 0
	})
	ops.add("ExceptionClear", func(e *Env, a []word.Word) word.Word {
		e.ExceptionClear()
		return 0
	})
	ops.add("FatalError", func(e *Env, a []word.Word) word.Word {
		upcallVoid(e, "FatalError", func() error {
			msg, _ := argv(a).cstring(0)
			e.fatalError(msg)
			return nil
		})
		return 0
	})
	ops.add("ExceptionCheck", func(e *Env, a []word.Word) word.Word {
		return boolWord(e.ExceptionCheck())
	})
}

// Throw makes obj the pending exception.
func (e *Env) Throw(obj handles.Handle) int32 {
	return upcall(e, "Throw", int32(Err), func() (int32, error) {
		o, err := e.nonNull(obj, "throwable")
		if err != nil {
			return Err, err
		}
		u := e.vm.universe
		if !u.IsThrowable(o) {
			return Err, u.Throw(u.IllegalArgumentException, "%s is not throwable", o.Class().SourceName())
		}
		e.pending = o
		return OK, nil
	})
}

// ThrowNew constructs an instance of cls and makes it the pending
// exception. A nil message selects the no-argument constructor.
func (e *Env) ThrowNew(cls handles.Handle, msg *string) int32 {
	return upcall(e, "ThrowNew", int32(Err), func() (int32, error) {
		return e.throwNew(cls, msg)
	})
}

func (e *Env) throwNew(cls handles.Handle, msg *string) (int32, error) {
	u := e.vm.universe
	c, err := e.classOf(cls)
	if err != nil {
		return Err, err
	}
	if !c.IsSubclassOf(u.ThrowableClass) {
		return Err, u.Throw(u.IllegalArgumentException, "%s is not throwable", c.SourceName())
	}
	t, err := e.construct(c, msg)
	if err != nil {
		return Err, err
	}
	e.pending = t
	return OK, nil
}

func (e *Env) construct(c *heap.Class, msg *string) (*heap.Object, error) {
	u := e.vm.universe
	desc, args := "()V", []heap.Value(nil)
	if msg != nil {
		desc, args = "(Ljava/lang/String;)V", []heap.Value{heap.Ref(u.NewString(*msg))}
	}
	ctor := c.FindLocalVirtual("<init>", desc)
	if ctor == nil {
		return nil, u.Throw(u.NoSuchMethodError, "%s.<init>%s", c.Name, desc)
	}
	o, err := u.AllocObject(c)
	if err != nil {
		return nil, err
	}
	if _, err := ctor.Invoke(o, args); err != nil {
		return nil, err
	}
	return o, nil
}

// ExceptionOccurred returns a local handle to the pending exception without
// clearing it.
func (e *Env) ExceptionOccurred() handles.Handle {
	return upcall(e, "ExceptionOccurred", handles.Null, func() (handles.Handle, error) {
		return e.NewLocal(e.pending)
	})
}

// ExceptionDescribe writes the pending exception to the diagnostic output
// and clears it.
func (e *Env) ExceptionDescribe() {
	upcallVoid(e, "ExceptionDescribe", func() error {
		t := e.TakePending()
		if t == nil {
			return nil
		}
		line := t.Class().SourceName()
		if msg, ok := heap.MessageOf(t); ok {
			line += ": " + msg
		}
		_, err := fmt.Fprintf(e.vm.diag, "Exception in thread %q %s%s\n", e.name, line, e.describeStack())
		return err
	})
}

// ExceptionClear discards the pending exception.
func (e *Env) ExceptionClear() {
	upcallVoid(e, "ExceptionClear", func() error {
		e.pending = nil
		return nil
	})
}

// ExceptionCheck reports whether an exception is pending.
func (e *Env) ExceptionCheck() bool {
	return upcall(e, "ExceptionCheck", false, func() (bool, error) {
		return e.pending != nil, nil
	})
}

// FatalError aborts the runtime with msg.
func (e *Env) FatalError(msg string) {
	upcallVoid(e, "FatalError", func() error {
		e.fatalError(msg)
		return nil
	})
}

func (e *Env) fatalError(msg string) {
	fatal("native code on thread %q: %s%s", e.name, msg, e.describeStack())
}
