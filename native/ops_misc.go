package native

import (
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

// NativeMethod is one entry of a RegisterNatives request.
type NativeMethod struct {
	Name      string
	Signature string
	Entry     word.Address
}

// nativeMethodWords is the number of words in one native method record:
// name pointer, signature pointer and function pointer.
const nativeMethodWords = 3

func registerMiscOps(ops opTable) {
	ops.add("RegisterNatives", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return intWord(upcall(e, "RegisterNatives", int32(Err), func() (int32, error) {
			methods, err := e.readNativeMethods(args.ptr(1), args.i32(2))
			if err != nil {
				return Err, err
			}
			return e.registerNatives(args.handle(0), methods)
		}))
	})
	ops.add("UnregisterNatives", func(e *Env, a []word.Word) word.Word {
		return intWord(e.UnregisterNatives(argv(a).handle(0)))
	})
	ops.add("MonitorEnter", func(e *Env, a []word.Word) word.Word {
		return intWord(e.MonitorEnter(argv(a).handle(0)))
	})
	ops.add("MonitorExit", func(e *Env, a []word.Word) word.Word {
		return intWord(e.MonitorExit(argv(a).handle(0)))
	})
	ops.add("NewDirectByteBuffer", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return handleWord(e.NewDirectByteBuffer(args.word(0).AsAddress(), args.i64(1)))
	})
	ops.add("GetDirectBufferAddress", func(e *Env, a []word.Word) word.Word {
		return e.GetDirectBufferAddress(argv(a).handle(0)).AsWord()
	})
	ops.add("GetDirectBufferCapacity", func(e *Env, a []word.Word) word.Word {
		return word.FromLong(e.GetDirectBufferCapacity(argv(a).handle(0)))
	})
	ops.add("GetNumberOfArguments", func(e *Env, a []word.Word) word.Word {
		return intWord(e.GetNumberOfArguments(argv(a).word(0)))
	})
	ops.add("GetKindsOfArguments", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		e.GetKindsOfArguments(args.word(0), args.ptr(1))
		return 0
	})
}

// readNativeMethods decodes n native method records starting at p.
func (e *Env) readNativeMethods(p word.Pointer, n int32) ([]NativeMethod, error) {
	if n > 0 && p.IsZero() {
		return nil, e.nullArgument("native method array")
	}
	out := make([]NativeMethod, 0, max(n, 0))
	for i := range int(max(n, 0)) {
		rec := i * nativeMethodWords
		name, sig := p.GetWord(0, rec).AsPointer(), p.GetWord(0, rec+1).AsPointer()
		m := NativeMethod{Entry: p.GetWord(0, rec+2).AsAddress()}
		if !name.IsZero() {
			m.Name = string(name.ReadCString(0))
		}
		if !sig.IsZero() {
			m.Signature = string(sig.ReadCString(0))
		}
		out = append(out, m)
	}
	return out, nil
}

// RegisterNatives binds each method to its entry. Every named method must
// be a native method declared by cls itself.
func (e *Env) RegisterNatives(cls handles.Handle, methods []NativeMethod) int32 {
	return upcall(e, "RegisterNatives", int32(Err), func() (int32, error) {
		return e.registerNatives(cls, methods)
	})
}

func (e *Env) registerNatives(cls handles.Handle, methods []NativeMethod) (int32, error) {
	u := e.vm.universe
	c, err := e.classOf(cls)
	if err != nil {
		return Err, err
	}
	for _, nm := range methods {
		m := c.DeclaredMethod(nm.Name, nm.Signature)
		if m == nil || !m.IsNative() {
			return Err, u.Throw(u.NoSuchMethodError, "%s.%s%s", c.Name, nm.Name, nm.Signature)
		}
		if nm.Entry.IsZero() {
			return Err, u.Throw(u.NullPointerException, "function pointer for %s is null", m)
		}
		if err := m.Bind(nm.Entry); err != nil {
			return Err, err
		}
		if e.vm.cfg.Trace.Invocations {
			log.Debugf("[Registering %s to %s]", m, nm.Entry)
		}
	}
	return OK, nil
}

// UnregisterNatives unbinds every native method of cls and its
// superclasses. Unbound methods link again on their next call.
func (e *Env) UnregisterNatives(cls handles.Handle) int32 {
	return upcall(e, "UnregisterNatives", int32(Err), func() (int32, error) {
		c, err := e.classOf(cls)
		if err != nil {
			return Err, err
		}
		for ; c != nil; c = c.Super {
			for _, m := range c.Methods() {
				if !m.IsNative() {
					continue
				}
				if err := m.Bind(0); err != nil {
					return Err, err
				}
			}
		}
		return OK, nil
	})
}

// MonitorEnter acquires the monitor of an object, waiting as a native
// thread while another thread holds it.
func (e *Env) MonitorEnter(obj handles.Handle) int32 {
	return upcall(e, "MonitorEnter", int32(Err), func() (int32, error) {
		o, err := e.nonNull(obj, "object")
		if err != nil {
			return Err, err
		}
		mon := o.Monitor()
		e.blocking(func() { mon.Enter(e) })
		return OK, nil
	})
}

// MonitorExit releases one level of an object's monitor.
func (e *Env) MonitorExit(obj handles.Handle) int32 {
	return upcall(e, "MonitorExit", int32(Err), func() (int32, error) {
		o, err := e.nonNull(obj, "object")
		if err != nil {
			return Err, err
		}
		if err := o.Monitor().Exit(e); err != nil {
			return Err, err
		}
		return OK, nil
	})
}

// NewDirectByteBuffer wraps capacity bytes of native memory at addr.
func (e *Env) NewDirectByteBuffer(addr word.Address, capacity int64) handles.Handle {
	return upcall(e, "NewDirectByteBuffer", handles.Null, func() (handles.Handle, error) {
		if capacity < 0 {
			u := e.vm.universe
			return handles.Null, u.Throw(u.IllegalArgumentException, "negative capacity %d", capacity)
		}
		return e.NewLocal(e.vm.universe.NewDirectByteBuffer(addr, capacity))
	})
}

// directBuffer returns the payload of a direct buffer, or nil when h does
// not refer to one.
func (e *Env) directBuffer(h handles.Handle) (*heap.DirectBuffer, error) {
	o, err := e.Resolve(h)
	if err != nil || o == nil {
		return nil, err
	}
	buf, _ := o.Payload.(*heap.DirectBuffer)
	return buf, nil
}

// GetDirectBufferAddress returns the memory a direct buffer wraps, or zero
// when buf is not a direct buffer.
func (e *Env) GetDirectBufferAddress(buf handles.Handle) word.Address {
	return upcall(e, "GetDirectBufferAddress", word.Address(0), func() (word.Address, error) {
		db, err := e.directBuffer(buf)
		if err != nil || db == nil {
			return 0, err
		}
		return db.Address, nil
	})
}

// GetDirectBufferCapacity returns the capacity of a direct buffer, or -1
// when buf is not a direct buffer.
func (e *Env) GetDirectBufferCapacity(buf handles.Handle) int64 {
	return upcall(e, "GetDirectBufferCapacity", int64(-1), func() (int64, error) {
		db, err := e.directBuffer(buf)
		if err != nil || db == nil {
			return -1, err
		}
		return db.Capacity, nil
	})
}

// GetNumberOfArguments returns the number of declared parameters of a
// method. Native bootstrap code uses it to size variadic argument arrays.
func (e *Env) GetNumberOfArguments(mid word.Word) int32 {
	return upcall(e, "GetNumberOfArguments", int32(Err), func() (int32, error) {
		m, err := e.methodOf(mid)
		if err != nil {
			return Err, err
		}
		return int32(m.Sig.NumParams()), nil
	})
}

// GetKindsOfArguments writes the kind code of each parameter of a method to
// buf, one byte per parameter.
func (e *Env) GetKindsOfArguments(mid word.Word, buf word.Pointer) {
	upcallVoid(e, "GetKindsOfArguments", func() error {
		m, err := e.methodOf(mid)
		if err != nil {
			return err
		}
		if buf.IsZero() && m.Sig.NumParams() > 0 {
			u := e.vm.universe
			return u.Throw(u.NullPointerException, "kind buffer is null")
		}
		for i, k := range m.Sig.ParamKinds {
			buf.WriteInt8(i, int8(KindCode(k)))
		}
		return nil
	})
}
