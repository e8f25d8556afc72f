package native

import (
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/word"
)

func registerRefOps(ops opTable) {
	ops.add("PushLocalFrame", func(e *Env, a []word.Word) word.Word {
		return intWord(e.PushLocalFrame(argv(a).i32(0)))
	})
	ops.add("PopLocalFrame", func(e *Env, a []word.Word) word.Word {
		return handleWord(e.PopLocalFrame(argv(a).handle(0)))
	})
	ops.add("NewGlobalRef", func(e *Env, a []word.Word) word.Word {
		return handleWord(e.NewGlobalRef(argv(a).handle(0)))
	})
	ops.add("DeleteGlobalRef", func(e *Env, a []word.Word) word.Word {
		e.DeleteGlobalRef(argv(a).handle(0))
		return 0
	})
	ops.add("DeleteLocalRef", func(e *Env, a []word.Word) word.Word {
		e.DeleteLocalRef(argv(a).handle(0))
		return 0
	})
	ops.add("IsSameObject", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return boolWord(e.IsSameObject(args.handle(0), args.handle(1)))
	})
	ops.add("NewLocalRef", func(e *Env, a []word.Word) word.Word {
		return handleWord(e.NewLocalRef(argv(a).handle(0)))
	})
	ops.add("EnsureLocalCapacity", func(e *Env, a []word.Word) word.Word {
		return intWord(e.EnsureLocalCapacity(argv(a).i32(0)))
	})
	ops.add("NewWeakGlobalRef", func(e *Env, a []word.Word) word.Word {
		return handleWord(e.NewWeakGlobalRef(argv(a).handle(0)))
	})
	ops.add("DeleteWeakGlobalRef", func(e *Env, a []word.Word) word.Word {
		e.DeleteWeakGlobalRef(argv(a).handle(0))
		return 0
	})
	ops.add("GetObjectRefType", func(e *Env, a []word.Word) word.Word {
		return intWord(e.GetObjectRefType(argv(a).handle(0)))
	})
}

func (e *Env) negativeCapacity(n int32) error {
	u := e.vm.universe
	return u.Throw(u.OutOfMemoryError, "negative local capacity %d", n)
}

// PushLocalFrame opens a local handle scope with room for n handles.
func (e *Env) PushLocalFrame(n int32) int32 {
	return upcall(e, "PushLocalFrame", int32(Err), func() (int32, error) {
		if n < 0 {
			return Err, e.negativeCapacity(n)
		}
		if err := e.local.PushFrame(int(n)); err != nil {
			return Err, err
		}
		return OK, nil
	})
}

// PopLocalFrame closes the innermost scope and returns a handle to result's
// object valid in the enclosing scope.
func (e *Env) PopLocalFrame(result handles.Handle) handles.Handle {
	return upcall(e, "PopLocalFrame", handles.Null, func() (handles.Handle, error) {
		return e.local.PopFrame(result)
	})
}

// EnsureLocalCapacity guarantees room for n more local handles.
func (e *Env) EnsureLocalCapacity(n int32) int32 {
	return upcall(e, "EnsureLocalCapacity", int32(Err), func() (int32, error) {
		if n < 0 {
			return Err, e.negativeCapacity(n)
		}
		if err := e.local.EnsureCapacity(int(n)); err != nil {
			return Err, err
		}
		return OK, nil
	})
}

// NewGlobalRef returns a global handle to the object h refers to.
func (e *Env) NewGlobalRef(h handles.Handle) handles.Handle {
	return upcall(e, "NewGlobalRef", handles.Null, func() (handles.Handle, error) {
		o, err := e.Resolve(h)
		if err != nil {
			return handles.Null, err
		}
		return e.vm.globals.NewGlobal(o)
	})
}

// DeleteGlobalRef releases a global handle.
func (e *Env) DeleteGlobalRef(h handles.Handle) {
	upcallVoid(e, "DeleteGlobalRef", func() error {
		return e.vm.globals.DeleteGlobal(h)
	})
}

// DeleteLocalRef releases a local handle. Parameter handles are released
// by the downcall that created them and are ignored here.
func (e *Env) DeleteLocalRef(h handles.Handle) {
	upcallVoid(e, "DeleteLocalRef", func() error {
		if h.Kind() == handles.Stack {
			return nil
		}
		return e.local.Free(h)
	})
}

// IsSameObject reports whether two handles refer to the same object. A
// cleared weak handle is the same as null.
func (e *Env) IsSameObject(h1, h2 handles.Handle) bool {
	return upcall(e, "IsSameObject", false, func() (bool, error) {
		o1, err := e.Resolve(h1)
		if err != nil {
			return false, err
		}
		o2, err := e.Resolve(h2)
		if err != nil {
			return false, err
		}
		return o1 == o2, nil
	})
}

// NewLocalRef returns a new local handle to the object h refers to.
func (e *Env) NewLocalRef(h handles.Handle) handles.Handle {
	return upcall(e, "NewLocalRef", handles.Null, func() (handles.Handle, error) {
		o, err := e.Resolve(h)
		if err != nil {
			return handles.Null, err
		}
		return e.NewLocal(o)
	})
}

// NewWeakGlobalRef returns a weak global handle to the object h refers to.
func (e *Env) NewWeakGlobalRef(h handles.Handle) handles.Handle {
	return upcall(e, "NewWeakGlobalRef", handles.Null, func() (handles.Handle, error) {
		o, err := e.Resolve(h)
		if err != nil {
			return handles.Null, err
		}
		return e.vm.globals.NewWeakGlobal(o)
	})
}

// DeleteWeakGlobalRef releases a weak global handle.
func (e *Env) DeleteWeakGlobalRef(h handles.Handle) {
	upcallVoid(e, "DeleteWeakGlobalRef", func() error {
		return e.vm.globals.DeleteWeakGlobal(h)
	})
}

// GetObjectRefType classifies a handle. Parameter handles report as local.
// Handles that do not resolve report as invalid.
func (e *Env) GetObjectRefType(h handles.Handle) int32 {
	return upcall(e, "GetObjectRefType", int32(InvalidRefType), func() (int32, error) {
		if h.IsNull() {
			return InvalidRefType, nil
		}
		if _, err := e.Resolve(h); err != nil {
			return InvalidRefType, nil
		}
		switch h.Kind() {
		case handles.Stack, handles.Local:
			return LocalRefType, nil
		case handles.Global:
			return GlobalRefType, nil
		}
		return WeakGlobalRefType, nil
	})
}
