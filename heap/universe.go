package heap

import (
	"fmt"
	"sync"
	"unicode/utf16"

	"github.com/chazu/boundary/word"
)

// NativeInvoker runs a native method by calling its bound entry point. The
// native package installs one when a VM is created.
type NativeInvoker func(m *Method, receiver *Object, args []Value) (Value, error)

// DirectBuffer is the payload of a direct byte buffer object.
type DirectBuffer struct {
	Address  word.Address
	Capacity int64
}

// Universe is the set of loaders, well-known classes and member-ID registries
// that the native boundary operates on.
type Universe struct {
	Boot   *ClassLoader
	System *ClassLoader

	Definer       Definer
	NativeInvoker NativeInvoker
	Weak          *WeakRegistry

	ObjectClass             *Class
	ClassClass              *Class
	ClassLoaderClass        *Class
	StringClass             *Class
	ReflectMethodClass      *Class
	ReflectConstructorClass *Class
	ReflectFieldClass       *Class
	BufferClass             *Class
	DirectByteBufferClass   *Class

	ThrowableClass                  *Class
	ExceptionClass                  *Class
	RuntimeExceptionClass           *Class
	ErrorClass                      *Class
	NullPointerException            *Class
	ArithmeticException             *Class
	ArrayIndexOutOfBoundsException  *Class
	StringIndexOutOfBoundsException *Class
	ArrayStoreException             *Class
	ClassCastException              *Class
	IllegalArgumentException        *Class
	IllegalMonitorStateException    *Class
	NegativeArraySizeException      *Class
	UnsupportedOperationException   *Class
	InstantiationException          *Class
	LinkageError                    *Class
	NoClassDefFoundError            *Class
	ClassFormatError                *Class
	UnsatisfiedLinkError            *Class
	NoSuchMethodError               *Class
	NoSuchFieldError                *Class
	AbstractMethodError             *Class
	OutOfMemoryError                *Class
	InternalError                   *Class

	primArrays map[Kind]*Class

	idMu    sync.Mutex
	methods []*Method
	fields  []*Field
}

// NewUniverse creates the boot and system loaders and defines the
// well-known classes.
func NewUniverse() *Universe {
	u := &Universe{
		Weak:       NewWeakRegistry(),
		primArrays: make(map[Kind]*Class),
	}
	u.Boot = newClassLoader(u, "boot", nil)
	u.System = newClassLoader(u, "system", u.Boot)

	b := u.Boot
	u.ObjectClass = b.MustDefine(ClassDef{
		Name: "java/lang/Object",
		Methods: []MethodDef{
			{Name: "<init>", Descriptor: "()V", Impl: func(*Object, []Value) (Value, error) { return Void, nil }},
			{Name: "hashCode", Descriptor: "()I", Impl: func(r *Object, _ []Value) (Value, error) {
				return Int(int32(uintptr(word.PointerTo(r)))), nil
			}},
			{Name: "equals", Descriptor: "(Ljava/lang/Object;)Z", Impl: func(r *Object, a []Value) (Value, error) {
				return Boolean(r == a[0].AsObject()), nil
			}},
		},
	})
	u.ClassClass = b.MustDefine(ClassDef{Name: "java/lang/Class", Flags: ClassFinal})
	u.ClassLoaderClass = b.MustDefine(ClassDef{Name: "java/lang/ClassLoader", Flags: ClassAbstract})
	u.StringClass = b.MustDefine(ClassDef{
		Name:  "java/lang/String",
		Flags: ClassFinal,
		Methods: []MethodDef{
			{Name: "length", Descriptor: "()I", Impl: func(r *Object, _ []Value) (Value, error) {
				return Int(int32(len(r.text))), nil
			}},
		},
	})
	accessible := b.MustDefine(ClassDef{Name: "java/lang/reflect/AccessibleObject"})
	u.ReflectMethodClass = b.MustDefine(ClassDef{Name: "java/lang/reflect/Method", Super: accessible, Flags: ClassFinal})
	u.ReflectConstructorClass = b.MustDefine(ClassDef{Name: "java/lang/reflect/Constructor", Super: accessible, Flags: ClassFinal})
	u.ReflectFieldClass = b.MustDefine(ClassDef{Name: "java/lang/reflect/Field", Super: accessible, Flags: ClassFinal})
	u.BufferClass = b.MustDefine(ClassDef{Name: "java/nio/Buffer", Flags: ClassAbstract})
	u.DirectByteBufferClass = b.MustDefine(ClassDef{Name: "java/nio/DirectByteBuffer", Super: u.BufferClass})

	u.ThrowableClass = u.defineThrowable("java/lang/Throwable", u.ObjectClass)
	u.ExceptionClass = u.defineThrowable("java/lang/Exception", u.ThrowableClass)
	u.ErrorClass = u.defineThrowable("java/lang/Error", u.ThrowableClass)
	u.RuntimeExceptionClass = u.defineThrowable("java/lang/RuntimeException", u.ExceptionClass)

	rt := u.RuntimeExceptionClass
	u.NullPointerException = u.defineThrowable("java/lang/NullPointerException", rt)
	u.ArithmeticException = u.defineThrowable("java/lang/ArithmeticException", rt)
	indexOOB := u.defineThrowable("java/lang/IndexOutOfBoundsException", rt)
	u.ArrayIndexOutOfBoundsException = u.defineThrowable("java/lang/ArrayIndexOutOfBoundsException", indexOOB)
	u.StringIndexOutOfBoundsException = u.defineThrowable("java/lang/StringIndexOutOfBoundsException", indexOOB)
	u.ArrayStoreException = u.defineThrowable("java/lang/ArrayStoreException", rt)
	u.ClassCastException = u.defineThrowable("java/lang/ClassCastException", rt)
	u.IllegalArgumentException = u.defineThrowable("java/lang/IllegalArgumentException", rt)
	u.IllegalMonitorStateException = u.defineThrowable("java/lang/IllegalMonitorStateException", rt)
	u.NegativeArraySizeException = u.defineThrowable("java/lang/NegativeArraySizeException", rt)
	u.UnsupportedOperationException = u.defineThrowable("java/lang/UnsupportedOperationException", rt)
	u.InstantiationException = u.defineThrowable("java/lang/InstantiationException", u.ExceptionClass)

	u.LinkageError = u.defineThrowable("java/lang/LinkageError", u.ErrorClass)
	u.NoClassDefFoundError = u.defineThrowable("java/lang/NoClassDefFoundError", u.LinkageError)
	u.ClassFormatError = u.defineThrowable("java/lang/ClassFormatError", u.LinkageError)
	u.UnsatisfiedLinkError = u.defineThrowable("java/lang/UnsatisfiedLinkError", u.LinkageError)
	icce := u.defineThrowable("java/lang/IncompatibleClassChangeError", u.LinkageError)
	u.NoSuchMethodError = u.defineThrowable("java/lang/NoSuchMethodError", icce)
	u.NoSuchFieldError = u.defineThrowable("java/lang/NoSuchFieldError", icce)
	u.AbstractMethodError = u.defineThrowable("java/lang/AbstractMethodError", icce)
	vme := u.defineThrowable("java/lang/VirtualMachineError", u.ErrorClass)
	u.OutOfMemoryError = u.defineThrowable("java/lang/OutOfMemoryError", vme)
	u.InternalError = u.defineThrowable("java/lang/InternalError", vme)

	for _, k := range PrimitiveKinds {
		u.primArrays[k] = &Class{
			Name:        "[" + string(k.Char()),
			Super:       u.ObjectClass,
			Loader:      u.Boot,
			Flags:       ClassArray | ClassFinal,
			ElementKind: k,
		}
	}
	return u
}

// defineThrowable defines a throwable class with the no-argument and
// message constructors.
func (u *Universe) defineThrowable(name string, super *Class) *Class {
	return u.Boot.MustDefine(ClassDef{
		Name:  name,
		Super: super,
		Methods: []MethodDef{
			{Name: "<init>", Descriptor: "()V", Impl: func(r *Object, _ []Value) (Value, error) {
				r.Payload = &ThrowableState{}
				return Void, nil
			}},
			{Name: "<init>", Descriptor: "(Ljava/lang/String;)V", Impl: func(r *Object, a []Value) (Value, error) {
				st := &ThrowableState{}
				if s := a[0].AsObject(); s != nil {
					st.Message, st.HasMessage = s.GoString(), true
				}
				r.Payload = st
				return Void, nil
			}},
			{Name: "getMessage", Descriptor: "()Ljava/lang/String;", Impl: func(r *Object, _ []Value) (Value, error) {
				if st, ok := r.Payload.(*ThrowableState); ok && st.HasMessage {
					return Ref(u.NewString(st.Message)), nil
				}
				return Null, nil
			}},
		},
	})
}

// FindBootClass returns a class defined by the boot loader.
func (u *Universe) FindBootClass(name string) *Class { return u.Boot.FindLoadedClass(name) }

// PrimitiveArrayClass returns the array class for primitive kind k.
func (u *Universe) PrimitiveArrayClass(k Kind) *Class { return u.primArrays[k] }

// Loaders returns the boot and system loaders.
func (u *Universe) Loaders() []*ClassLoader { return []*ClassLoader{u.Boot, u.System} }

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

func (u *Universe) newInstance(c *Class) *Object {
	o := &Object{class: c}
	if c.numFields > 0 {
		o.fields = make([]Value, c.numFields)
		for cur := c; cur != nil; cur = cur.Super {
			for _, f := range cur.fields {
				if !f.Static {
					o.fields[f.Index] = Zero(f.Kind)
				}
			}
		}
	}
	return o
}

// AllocObject allocates an instance of c without running a constructor.
func (u *Universe) AllocObject(c *Class) (*Object, error) {
	if c.IsAbstract() || c.IsArray() {
		return nil, u.Throw(u.InstantiationException, "%s", c.SourceName())
	}
	if err := c.Initialize(); err != nil {
		return nil, err
	}
	return u.newInstance(c), nil
}

// NewString allocates a string object holding s.
func (u *Universe) NewString(s string) *Object {
	return u.NewStringUTF16(utf16.Encode([]rune(s)))
}

// NewStringUTF16 allocates a string object holding a copy of chars.
func (u *Universe) NewStringUTF16(chars []uint16) *Object {
	text := make([]uint16, len(chars))
	copy(text, chars)
	return &Object{class: u.StringClass, text: text}
}

// NewPrimitiveArray allocates a zeroed array of n elements of kind k.
func (u *Universe) NewPrimitiveArray(k Kind, n int) (*Object, error) {
	if n < 0 {
		return nil, u.Throw(u.NegativeArraySizeException, "%d", n)
	}
	c := u.primArrays[k]
	if c == nil {
		return nil, fmt.Errorf("heap: no array class for %s", k)
	}
	return &Object{class: c, prim: make([]byte, n*k.Size()), length: n}, nil
}

// NewObjectArray allocates an array of n elements of class comp, each set
// to init.
func (u *Universe) NewObjectArray(comp *Class, n int, init *Object) (*Object, error) {
	if n < 0 {
		return nil, u.Throw(u.NegativeArraySizeException, "%d", n)
	}
	if init != nil && !comp.IsAssignableFrom(init.class) {
		return nil, u.Throw(u.ArrayStoreException, "%s cannot be stored in %s[]", init.class.Name, comp.Name)
	}
	refs := make([]*Object, n)
	for i := range refs {
		refs[i] = init
	}
	return &Object{class: comp.ArrayClass(), refs: refs, length: n}, nil
}

// NewDirectByteBuffer wraps native memory in a direct buffer object.
func (u *Universe) NewDirectByteBuffer(addr word.Address, capacity int64) *Object {
	o := u.newInstance(u.DirectByteBufferClass)
	o.Payload = &DirectBuffer{Address: addr, Capacity: capacity}
	return o
}

// ---------------------------------------------------------------------------
// Member IDs
// ---------------------------------------------------------------------------

// MethodID returns the opaque identifier native code uses for m. IDs start
// at 1; zero is the null ID.
func (u *Universe) MethodID(m *Method) word.Word {
	u.idMu.Lock()
	defer u.idMu.Unlock()
	if m.id == 0 {
		u.methods = append(u.methods, m)
		m.id = word.Word(len(u.methods))
	}
	return m.id
}

// MethodByID resolves a method identifier.
func (u *Universe) MethodByID(id word.Word) (*Method, bool) {
	u.idMu.Lock()
	defer u.idMu.Unlock()
	if id == 0 || int(id) > len(u.methods) {
		return nil, false
	}
	return u.methods[id-1], true
}

// FieldID returns the opaque identifier native code uses for f.
func (u *Universe) FieldID(f *Field) word.Word {
	u.idMu.Lock()
	defer u.idMu.Unlock()
	if f.id == 0 {
		u.fields = append(u.fields, f)
		f.id = word.Word(len(u.fields))
	}
	return f.id
}

// FieldByID resolves a field identifier.
func (u *Universe) FieldByID(id word.Word) (*Field, bool) {
	u.idMu.Lock()
	defer u.idMu.Unlock()
	if id == 0 || int(id) > len(u.fields) {
		return nil, false
	}
	return u.fields[id-1], true
}
