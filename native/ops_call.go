package native

import (
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

func registerObjectOps(ops opTable) {
	ops.add("AllocObject", func(e *Env, a []word.Word) word.Word {
		return handleWord(e.AllocObject(argv(a).handle(0)))
	})
	ops.add("NewObjectA", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return handleWord(e.NewObjectA(args.handle(0), args.word(1), args.ptr(2)))
	})
}

func registerCallOps(ops opTable) {
	for _, name := range callKinds {
		k := kindOfName(name)
		ops.add("Call"+name+"MethodA", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			return e.CallMethodA(k, args.handle(0), args.word(1), args.ptr(2))
		})
		ops.add("CallNonvirtual"+name+"MethodA", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			return e.CallNonvirtualMethodA(k, args.handle(0), args.handle(1), args.word(2), args.ptr(3))
		})
		ops.add("CallStatic"+name+"MethodA", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			return e.CallStaticMethodA(k, args.handle(0), args.word(1), args.ptr(2))
		})
	}
}

// tupleClass resolves cls and requires an ordinary instance class.
func (e *Env) tupleClass(cls handles.Handle) (*heap.Class, error) {
	c, err := e.classOf(cls)
	if err != nil {
		return nil, err
	}
	if !c.IsTuple() {
		u := e.vm.universe
		return nil, u.Throw(u.IllegalArgumentException, "%s is not an instance class", c.SourceName())
	}
	return c, nil
}

// AllocObject allocates an instance of cls without running a constructor.
func (e *Env) AllocObject(cls handles.Handle) handles.Handle {
	return upcall(e, "AllocObject", handles.Null, func() (handles.Handle, error) {
		c, err := e.classOf(cls)
		if err != nil {
			return handles.Null, err
		}
		if !c.IsTuple() || c.IsAbstract() {
			u := e.vm.universe
			return handles.Null, u.Throw(u.InstantiationException, "%s", c.SourceName())
		}
		o, err := e.vm.universe.AllocObject(c)
		if err != nil {
			return handles.Null, err
		}
		return e.NewLocal(o)
	})
}

// NewObjectA allocates an instance of cls and runs constructor ctor with the
// arguments in a jvalue array.
func (e *Env) NewObjectA(cls handles.Handle, ctor word.Word, args word.Pointer) handles.Handle {
	return upcall(e, "NewObjectA", handles.Null, func() (handles.Handle, error) {
		u := e.vm.universe
		c, err := e.tupleClass(cls)
		if err != nil {
			return handles.Null, err
		}
		m, err := e.methodOf(ctor)
		if err != nil {
			return handles.Null, err
		}
		if !m.IsConstructor() {
			return handles.Null, u.Throw(u.IllegalArgumentException, "%s is not a constructor", m)
		}
		impl := c.FindLocalVirtual(m.Name, m.Descriptor)
		if impl == nil {
			return handles.Null, u.Throw(u.NoSuchMethodError, "%s.<init>%s", c.Name, m.Descriptor)
		}
		values, err := e.ReadArguments(impl, args)
		if err != nil {
			return handles.Null, err
		}
		o, err := u.AllocObject(c)
		if err != nil {
			return handles.Null, err
		}
		if _, err := impl.Invoke(o, values); err != nil {
			return handles.Null, err
		}
		return e.NewLocal(o)
	})
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// CallMethodA calls an instance method selected by the receiver's class and
// returns the result in table representation: reference results are new
// local handles, floats are their IEEE bits.
func (e *Env) CallMethodA(k heap.Kind, obj handles.Handle, mid word.Word, args word.Pointer) word.Word {
	return upcall(e, "Call"+k.String()+"MethodA", word.Word(0), func() (word.Word, error) {
		u := e.vm.universe
		m, err := e.methodOf(mid)
		if err != nil {
			return 0, err
		}
		if m.IsStatic() || m.IsInitializer() {
			return 0, u.Throw(u.IllegalArgumentException, "%s cannot be called virtually", m)
		}
		o, err := e.nonNull(obj, "receiver")
		if err != nil {
			return 0, err
		}
		if !m.Holder.IsAssignableFrom(o.Class()) {
			return 0, u.Throw(u.IllegalArgumentException, "%s is not an instance of %s", o.Class().SourceName(), m.Holder.SourceName())
		}
		impl := o.Class().SelectVirtual(m)
		if impl == nil {
			return 0, u.Throw(u.AbstractMethodError, "%s", m)
		}
		return e.invoke(k, impl, o, args)
	})
}

// CallNonvirtualMethodA calls the implementation of a method that instances
// of exactly cls would run, whatever the receiver's class.
func (e *Env) CallNonvirtualMethodA(k heap.Kind, obj, cls handles.Handle, mid word.Word, args word.Pointer) word.Word {
	return upcall(e, "CallNonvirtual"+k.String()+"MethodA", word.Word(0), func() (word.Word, error) {
		u := e.vm.universe
		c, err := e.tupleClass(cls)
		if err != nil {
			return 0, err
		}
		m, err := e.methodOf(mid)
		if err != nil {
			return 0, err
		}
		if m.IsStatic() || m.IsInitializer() || m.Holder.IsInterface() {
			return 0, u.Throw(u.IllegalArgumentException, "%s cannot be called nonvirtually", m)
		}
		impl := c.FindLocalVirtual(m.Name, m.Descriptor)
		if impl == nil {
			return 0, u.Throw(u.NoSuchMethodError, "%s.%s%s", c.Name, m.Name, m.Descriptor)
		}
		o, err := e.nonNull(obj, "receiver")
		if err != nil {
			return 0, err
		}
		return e.invoke(k, impl, o, args)
	})
}

// CallStaticMethodA calls a static method. A non-null cls must be the
// method's holder or a subclass of it.
func (e *Env) CallStaticMethodA(k heap.Kind, cls handles.Handle, mid word.Word, args word.Pointer) word.Word {
	return upcall(e, "CallStatic"+k.String()+"MethodA", word.Word(0), func() (word.Word, error) {
		u := e.vm.universe
		m, err := e.methodOf(mid)
		if err != nil {
			return 0, err
		}
		if !m.IsStatic() {
			return 0, u.Throw(u.IllegalArgumentException, "%s is not static", m)
		}
		if !cls.IsNull() {
			c, err := e.tupleClass(cls)
			if err != nil {
				return 0, err
			}
			if !m.Holder.IsAssignableFrom(c) {
				return 0, u.Throw(u.IllegalArgumentException, "%s is not declared by %s", m, c.SourceName())
			}
		}
		if err := m.Holder.Initialize(); err != nil {
			return 0, err
		}
		return e.invoke(k, m, nil, args)
	})
}

// invoke reads the arguments of m, runs it and converts the result to kind
// k in table representation.
func (e *Env) invoke(k heap.Kind, m *heap.Method, receiver *heap.Object, args word.Pointer) (word.Word, error) {
	values, err := e.ReadArguments(m, args)
	if err != nil {
		return 0, err
	}
	if e.vm.cfg.Trace.Invocations {
		log.Debugf("[Thread %q invoke: %s]", e.name, m)
	}
	v, err := m.Invoke(receiver, values)
	if err != nil {
		return 0, err
	}
	return e.resultWord(k, v)
}

// resultWord converts a method or field value to the kind the operation
// declares.
func (e *Env) resultWord(k heap.Kind, v heap.Value) (word.Word, error) {
	if k == heap.KindVoid {
		return 0, nil
	}
	if k != v.Kind() {
		cv, err := v.Convert(k)
		if err != nil {
			u := e.vm.universe
			return 0, u.Throw(u.IllegalArgumentException, "%v", err)
		}
		v = cv
	}
	return e.toWord(v)
}
