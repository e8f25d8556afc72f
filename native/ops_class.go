package native

import (
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

func registerClassOps(ops opTable) {
	ops.add("DefineClass", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return handleWord(upcall(e, "DefineClass", handles.Null, func() (handles.Handle, error) {
			name, _ := args.cstring(0)
			return e.defineClass(name, args.handle(1), args.ptr(2), args.i32(3))
		}))
	})
	ops.add("FindClass", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return handleWord(upcall(e, "FindClass", handles.Null, func() (handles.Handle, error) {
			name, ok := args.cstring(0)
			if !ok {
				return handles.Null, e.nullArgument("name")
			}
			return e.findClass(name)
		}))
	})
	ops.add("FromReflectedMethod", func(e *Env, a []word.Word) word.Word {
		return e.FromReflectedMethod(argv(a).handle(0))
	})
	ops.add("FromReflectedField", func(e *Env, a []word.Word) word.Word {
		return e.FromReflectedField(argv(a).handle(0))
	})
	ops.add("ToReflectedMethod", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return handleWord(e.ToReflectedMethod(args.handle(0), args.word(1), args.boolean(2)))
	})
	ops.add("ToReflectedField", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return handleWord(e.ToReflectedField(args.handle(0), args.word(1), args.boolean(2)))
	})
	ops.add("GetSuperclass", func(e *Env, a []word.Word) word.Word {
		return handleWord(e.GetSuperclass(argv(a).handle(0)))
	})
	ops.add("IsAssignableFrom", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return boolWord(e.IsAssignableFrom(args.handle(0), args.handle(1)))
	})
	ops.add("GetObjectClass", func(e *Env, a []word.Word) word.Word {
		return handleWord(e.GetObjectClass(argv(a).handle(0)))
	})
	ops.add("IsInstanceOf", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return boolWord(e.IsInstanceOf(args.handle(0), args.handle(1)))
	})
	for _, static := range []bool{false, true} {
		methodOp, fieldOp := "GetMethodID", "GetFieldID"
		methodID, fieldID := (*Env).getMethodID, (*Env).getFieldID
		if static {
			methodOp, fieldOp = "GetStaticMethodID", "GetStaticFieldID"
			methodID, fieldID = (*Env).getStaticMethodID, (*Env).getStaticFieldID
		}
		ops.add(methodOp, memberIDOp(methodOp, methodID))
		ops.add(fieldOp, memberIDOp(fieldOp, fieldID))
	}
}

// memberIDOp adapts a member lookup taking a class and C-string name and
// signature.
func memberIDOp(op string, lookup func(e *Env, cls handles.Handle, name, sig string) (word.Word, error)) Func {
	return func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return upcall(e, op, word.Word(0), func() (word.Word, error) {
			name, ok := args.cstring(1)
			if !ok {
				return 0, e.nullArgument("name")
			}
			sig, ok := args.cstring(2)
			if !ok {
				return 0, e.nullArgument("signature")
			}
			return lookup(e, args.handle(0), name, sig)
		})
	}
}

// nullArgument is the error for a required pointer argument native code
// passed as null.
func (e *Env) nullArgument(what string) error {
	u := e.vm.universe
	return u.Throw(u.NullPointerException, "%s is null", what)
}

// callerLoader returns the loader of the innermost native method on the
// thread, or the system loader for threads not inside one.
func (e *Env) callerLoader() *heap.ClassLoader {
	for a := e.anchor; a != nil; a = a.Prev {
		if a.Method != nil {
			return a.Method.Holder.Loader
		}
	}
	return e.vm.universe.System
}

func (e *Env) loaderOf(h handles.Handle) (*heap.ClassLoader, error) {
	o, err := e.Resolve(h)
	if err != nil || o == nil {
		return e.vm.universe.Boot, err
	}
	l, ok := o.Payload.(*heap.ClassLoader)
	if !ok {
		u := e.vm.universe
		return nil, u.Throw(u.ClassCastException, "%s is not a class loader", o.Class().SourceName())
	}
	return l, nil
}

func (e *Env) classHandle(c *heap.Class) (handles.Handle, error) {
	if c == nil {
		return handles.Null, nil
	}
	return e.NewLocal(c.Mirror())
}

// DefineClass defines a class from n bytes of class-file data at buf. A null
// loader means the boot loader.
func (e *Env) DefineClass(name string, loader handles.Handle, buf word.Pointer, n int32) handles.Handle {
	return upcall(e, "DefineClass", handles.Null, func() (handles.Handle, error) {
		return e.defineClass(name, loader, buf, n)
	})
}

func (e *Env) defineClass(name string, loader handles.Handle, buf word.Pointer, n int32) (handles.Handle, error) {
	u := e.vm.universe
	if n < 0 || (n > 0 && buf.IsZero()) {
		return handles.Null, u.Throw(u.ClassFormatError, "invalid class data for %s", name)
	}
	l, err := e.loaderOf(loader)
	if err != nil {
		return handles.Null, err
	}
	data := make([]byte, n)
	buf.ReadBytes(0, data)
	c, err := l.DefineClass(name, data)
	if err != nil {
		return handles.Null, err
	}
	return e.classHandle(c)
}

// FindClass loads and initializes the named class through the loader of
// the calling native method. Names use the internal form; array classes
// use descriptor syntax.
func (e *Env) FindClass(name string) handles.Handle {
	return upcall(e, "FindClass", handles.Null, func() (handles.Handle, error) {
		return e.findClass(name)
	})
}

func (e *Env) findClass(name string) (handles.Handle, error) {
	c, err := e.callerLoader().LoadClass(name)
	if err != nil {
		return handles.Null, err
	}
	if err := c.Initialize(); err != nil {
		return handles.Null, err
	}
	return e.classHandle(c)
}

// FromReflectedMethod returns the method ID of a reflected method or
// constructor.
func (e *Env) FromReflectedMethod(h handles.Handle) word.Word {
	return upcall(e, "FromReflectedMethod", word.Word(0), func() (word.Word, error) {
		o, err := e.nonNull(h, "method")
		if err != nil {
			return 0, err
		}
		m, ok := o.Payload.(*heap.Method)
		if !ok {
			u := e.vm.universe
			return 0, u.Throw(u.IllegalArgumentException, "%s is not a reflected method", o.Class().SourceName())
		}
		return e.vm.universe.MethodID(m), nil
	})
}

// FromReflectedField returns the field ID of a reflected field.
func (e *Env) FromReflectedField(h handles.Handle) word.Word {
	return upcall(e, "FromReflectedField", word.Word(0), func() (word.Word, error) {
		o, err := e.nonNull(h, "field")
		if err != nil {
			return 0, err
		}
		f, ok := o.Payload.(*heap.Field)
		if !ok {
			u := e.vm.universe
			return 0, u.Throw(u.IllegalArgumentException, "%s is not a reflected field", o.Class().SourceName())
		}
		return e.vm.universe.FieldID(f), nil
	})
}

// ToReflectedMethod returns the reflected method for a method ID. isStatic
// must match the method.
func (e *Env) ToReflectedMethod(cls handles.Handle, id word.Word, isStatic bool) handles.Handle {
	return upcall(e, "ToReflectedMethod", handles.Null, func() (handles.Handle, error) {
		m, err := e.methodOf(id)
		if err != nil {
			return handles.Null, err
		}
		if m.IsStatic() != isStatic {
			u := e.vm.universe
			return handles.Null, u.Throw(u.IllegalArgumentException, "%s: static is %t", m, m.IsStatic())
		}
		return e.NewLocal(m.Mirror())
	})
}

// ToReflectedField returns the reflected field for a field ID.
func (e *Env) ToReflectedField(cls handles.Handle, id word.Word, isStatic bool) handles.Handle {
	return upcall(e, "ToReflectedField", handles.Null, func() (handles.Handle, error) {
		f, err := e.fieldOf(id)
		if err != nil {
			return handles.Null, err
		}
		if f.Static != isStatic {
			u := e.vm.universe
			return handles.Null, u.Throw(u.IllegalArgumentException, "%s: static is %t", f, f.Static)
		}
		return e.NewLocal(f.Mirror())
	})
}

// GetSuperclass returns the superclass of a class. Interfaces and
// java/lang/Object have none.
func (e *Env) GetSuperclass(cls handles.Handle) handles.Handle {
	return upcall(e, "GetSuperclass", handles.Null, func() (handles.Handle, error) {
		c, err := e.classOf(cls)
		if err != nil {
			return handles.Null, err
		}
		if c.IsInterface() {
			return handles.Null, nil
		}
		return e.classHandle(c.Super)
	})
}

// IsAssignableFrom reports whether an instance of sub can be stored in a
// variable of type sup.
func (e *Env) IsAssignableFrom(sub, sup handles.Handle) bool {
	return upcall(e, "IsAssignableFrom", false, func() (bool, error) {
		c1, err := e.classOf(sub)
		if err != nil {
			return false, err
		}
		c2, err := e.classOf(sup)
		if err != nil {
			return false, err
		}
		return c2.IsAssignableFrom(c1), nil
	})
}

// GetObjectClass returns the class of an object.
func (e *Env) GetObjectClass(obj handles.Handle) handles.Handle {
	return upcall(e, "GetObjectClass", handles.Null, func() (handles.Handle, error) {
		o, err := e.nonNull(obj, "object")
		if err != nil {
			return handles.Null, err
		}
		return e.classHandle(o.Class())
	})
}

// IsInstanceOf reports whether obj is an instance of cls. A null object is
// an instance of every class.
func (e *Env) IsInstanceOf(obj, cls handles.Handle) bool {
	return upcall(e, "IsInstanceOf", false, func() (bool, error) {
		c, err := e.classOf(cls)
		if err != nil {
			return false, err
		}
		o, err := e.Resolve(obj)
		if err != nil {
			return false, err
		}
		return o == nil || c.IsInstance(o), nil
	})
}

// initializedClass resolves cls and runs its initializer.
func (e *Env) initializedClass(cls handles.Handle) (*heap.Class, error) {
	c, err := e.classOf(cls)
	if err != nil {
		return nil, err
	}
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	return c, nil
}

// GetMethodID returns the ID of an instance method or constructor of cls,
// initializing cls first.
func (e *Env) GetMethodID(cls handles.Handle, name, sig string) word.Word {
	return upcall(e, "GetMethodID", word.Word(0), func() (word.Word, error) {
		return e.getMethodID(cls, name, sig)
	})
}

func (e *Env) getMethodID(cls handles.Handle, name, sig string) (word.Word, error) {
	c, err := e.initializedClass(cls)
	if err != nil {
		return 0, err
	}
	var m *heap.Method
	if name == "<init>" {
		m = c.DeclaredMethod(name, sig)
	} else {
		m = c.FindMethod(name, sig)
	}
	if m == nil || m.IsStatic() {
		u := e.vm.universe
		return 0, u.Throw(u.NoSuchMethodError, "%s.%s%s", c.Name, name, sig)
	}
	return e.vm.universe.MethodID(m), nil
}

// GetStaticMethodID returns the ID of a static method of cls.
func (e *Env) GetStaticMethodID(cls handles.Handle, name, sig string) word.Word {
	return upcall(e, "GetStaticMethodID", word.Word(0), func() (word.Word, error) {
		return e.getStaticMethodID(cls, name, sig)
	})
}

func (e *Env) getStaticMethodID(cls handles.Handle, name, sig string) (word.Word, error) {
	c, err := e.initializedClass(cls)
	if err != nil {
		return 0, err
	}
	m := c.FindStaticMethod(name, sig)
	if m == nil {
		u := e.vm.universe
		return 0, u.Throw(u.NoSuchMethodError, "static %s.%s%s", c.Name, name, sig)
	}
	return e.vm.universe.MethodID(m), nil
}

// GetFieldID returns the ID of an instance field of cls.
func (e *Env) GetFieldID(cls handles.Handle, name, sig string) word.Word {
	return upcall(e, "GetFieldID", word.Word(0), func() (word.Word, error) {
		return e.getFieldID(cls, name, sig)
	})
}

func (e *Env) getFieldID(cls handles.Handle, name, sig string) (word.Word, error) {
	c, err := e.initializedClass(cls)
	if err != nil {
		return 0, err
	}
	f := c.FindField(name, sig)
	if f == nil {
		u := e.vm.universe
		return 0, u.Throw(u.NoSuchFieldError, "%s.%s:%s", c.Name, name, sig)
	}
	return e.vm.universe.FieldID(f), nil
}

// GetStaticFieldID returns the ID of a static field of cls.
func (e *Env) GetStaticFieldID(cls handles.Handle, name, sig string) word.Word {
	return upcall(e, "GetStaticFieldID", word.Word(0), func() (word.Word, error) {
		return e.getStaticFieldID(cls, name, sig)
	})
}

func (e *Env) getStaticFieldID(cls handles.Handle, name, sig string) (word.Word, error) {
	c, err := e.initializedClass(cls)
	if err != nil {
		return 0, err
	}
	f := c.FindStaticField(name, sig)
	if f == nil {
		u := e.vm.universe
		return 0, u.Throw(u.NoSuchFieldError, "static %s.%s:%s", c.Name, name, sig)
	}
	return e.vm.universe.FieldID(f), nil
}
