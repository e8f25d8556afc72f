package heap

import (
	"fmt"
	"strings"
	"sync"
)

// ---------------------------------------------------------------------------
// Class: managed class metadata
// ---------------------------------------------------------------------------

// ClassFlags describe the shape of a class.
type ClassFlags uint16

const (
	ClassInterface ClassFlags = 1 << iota
	ClassAbstract
	ClassArray
	ClassFinal
)

// Class is a loaded managed class.
type Class struct {
	Name        string // internal form, e.g. "java/lang/String"
	Super       *Class
	Interfaces  []*Class
	Loader      *ClassLoader
	Flags       ClassFlags
	Component   *Class // element class of an object array
	ElementKind Kind   // element kind of an array

	fields    []*Field
	methods   []*Method
	statics   []Value
	numFields int // instance field slots including inherited

	mirror    *Object
	mirrorMu  sync.Mutex
	initOnce  sync.Once
	initErr   error
	arrayOf   *Class
	arrayOnce sync.Mutex
}

func (c *Class) String() string { return c.Name }

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool { return c.Flags&ClassInterface != 0 }

// IsAbstract reports whether c cannot be instantiated.
func (c *Class) IsAbstract() bool { return c.Flags&(ClassAbstract|ClassInterface) != 0 }

// IsArray reports whether c is an array class.
func (c *Class) IsArray() bool { return c.Flags&ClassArray != 0 }

// IsPrimitiveArray reports whether c is an array of a primitive kind.
func (c *Class) IsPrimitiveArray() bool { return c.IsArray() && c.ElementKind != KindReference }

// IsTuple reports whether c is an ordinary instance class (not an array or
// interface).
func (c *Class) IsTuple() bool { return !c.IsArray() && !c.IsInterface() }

// IsString reports whether c is java/lang/String.
func (c *Class) IsString() bool { return c.Name == "java/lang/String" }

// Descriptor returns the type descriptor naming c.
func (c *Class) Descriptor() string {
	if c.IsArray() {
		return c.Name
	}
	return "L" + c.Name + ";"
}

// SourceName returns the dotted name, e.g. "java.lang.String".
func (c *Class) SourceName() string { return strings.ReplaceAll(c.Name, "/", ".") }

// Fields returns the fields declared by c.
func (c *Class) Fields() []*Field { return c.fields }

// Methods returns the methods declared by c.
func (c *Class) Methods() []*Method { return c.methods }

// NumInstanceFields returns the number of instance field slots.
func (c *Class) NumInstanceFields() int { return c.numFields }

// ---------------------------------------------------------------------------
// Subtyping
// ---------------------------------------------------------------------------

// IsSubclassOf reports whether c is other or inherits from it through the
// superclass chain.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// Implements reports whether c or a superclass implements interface iface.
func (c *Class) Implements(iface *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		for _, i := range cur.Interfaces {
			if i == iface || i.Implements(iface) {
				return true
			}
		}
	}
	return false
}

// IsAssignableFrom reports whether a value of class other can be stored in a
// variable of class c.
func (c *Class) IsAssignableFrom(other *Class) bool {
	if c == other {
		return true
	}
	if c.Super == nil && !c.IsInterface() && !c.IsArray() {
		// java/lang/Object
		return true
	}
	if other.IsArray() {
		if !c.IsArray() {
			return false
		}
		if c.ElementKind != other.ElementKind {
			return false
		}
		if c.ElementKind != KindReference {
			return true
		}
		return c.Component.IsAssignableFrom(other.Component)
	}
	if c.IsInterface() {
		return other == c || other.Implements(c)
	}
	return other.IsSubclassOf(c)
}

// IsInstance reports whether o is an instance of c. Null is an instance of
// every class.
func (c *Class) IsInstance(o *Object) bool {
	return o == nil || c.IsAssignableFrom(o.class)
}

// ---------------------------------------------------------------------------
// Member lookup
// ---------------------------------------------------------------------------

// DeclaredMethod returns the method declared by c with the given name and
// descriptor.
func (c *Class) DeclaredMethod(name, desc string) *Method {
	for _, m := range c.methods {
		if m.Name == name && m.Descriptor == desc {
			return m
		}
	}
	return nil
}

// FindMethod searches c, its superclasses and then its interfaces for a
// non-static method.
func (c *Class) FindMethod(name, desc string) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if m := cur.DeclaredMethod(name, desc); m != nil && !m.IsStatic() {
			return m
		}
	}
	return c.findInterfaceMethod(name, desc)
}

func (c *Class) findInterfaceMethod(name, desc string) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		for _, i := range cur.Interfaces {
			if m := i.DeclaredMethod(name, desc); m != nil && !m.IsStatic() {
				return m
			}
			if m := i.findInterfaceMethod(name, desc); m != nil {
				return m
			}
		}
	}
	return nil
}

// FindStaticMethod searches c and its superclasses for a static method.
func (c *Class) FindStaticMethod(name, desc string) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if m := cur.DeclaredMethod(name, desc); m != nil && m.IsStatic() {
			return m
		}
	}
	return nil
}

// SelectVirtual returns the implementation of m selected by receiver class c.
func (c *Class) SelectVirtual(m *Method) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if impl := cur.DeclaredMethod(m.Name, m.Descriptor); impl != nil && !impl.IsStatic() && !impl.IsAbstract() {
			return impl
		}
	}
	if impl := c.findInterfaceMethod(m.Name, m.Descriptor); impl != nil && !impl.IsAbstract() {
		return impl
	}
	return nil
}

// FindLocalVirtual returns the non-static implementation of name/desc that
// instances of exactly c would run, without receiver-based dispatch.
func (c *Class) FindLocalVirtual(name, desc string) *Method {
	for cur := c; cur != nil; cur = cur.Super {
		if m := cur.DeclaredMethod(name, desc); m != nil && !m.IsStatic() {
			return m
		}
	}
	return nil
}

// FindField searches c and its superclasses for an instance field.
func (c *Class) FindField(name, desc string) *Field {
	for cur := c; cur != nil; cur = cur.Super {
		for _, f := range cur.fields {
			if !f.Static && f.Name == name && f.Descriptor == desc {
				return f
			}
		}
	}
	return nil
}

// FindStaticField searches c, its interfaces and its superclasses for a
// static field.
func (c *Class) FindStaticField(name, desc string) *Field {
	for cur := c; cur != nil; cur = cur.Super {
		for _, f := range cur.fields {
			if f.Static && f.Name == name && f.Descriptor == desc {
				return f
			}
		}
		for _, i := range cur.Interfaces {
			if f := i.FindStaticField(name, desc); f != nil {
				return f
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Statics and initialization
// ---------------------------------------------------------------------------

// Static returns the value of a static field declared by c.
func (c *Class) Static(f *Field) Value {
	return f.Holder.statics[f.Index]
}

// SetStatic stores a static field value.
func (c *Class) SetStatic(f *Field, v Value) error {
	cv, err := coerce(v, f.Kind)
	if err != nil {
		return fmt.Errorf("set static %s.%s: %w", f.Holder.Name, f.Name, err)
	}
	f.Holder.statics[f.Index] = cv
	return nil
}

// Initialize runs the superclass initializers and then c's <clinit>, once.
func (c *Class) Initialize() error {
	c.initOnce.Do(func() {
		if c.Super != nil {
			if err := c.Super.Initialize(); err != nil {
				c.initErr = err
				return
			}
		}
		if m := c.DeclaredMethod("<clinit>", "()V"); m != nil {
			_, c.initErr = m.Invoke(nil, nil)
		}
	})
	return c.initErr
}

// Mirror returns the java/lang/Class object for c.
func (c *Class) Mirror() *Object {
	c.mirrorMu.Lock()
	defer c.mirrorMu.Unlock()
	if c.mirror == nil {
		u := c.Loader.universe
		c.mirror = u.newInstance(u.ClassClass)
		c.mirror.Payload = c
	}
	return c.mirror
}

// ArrayClass returns the class of arrays whose elements are c.
func (c *Class) ArrayClass() *Class {
	c.arrayOnce.Lock()
	defer c.arrayOnce.Unlock()
	if c.arrayOf == nil {
		u := c.Loader.universe
		c.arrayOf = &Class{
			Name:        "[" + c.Descriptor(),
			Super:       u.ObjectClass,
			Loader:      c.Loader,
			Flags:       ClassArray | ClassFinal,
			Component:   c,
			ElementKind: KindReference,
		}
	}
	return c.arrayOf
}

// visitStatics calls fn for every object held in a static field of c.
func (c *Class) visitStatics(fn func(*Object)) {
	for _, v := range c.statics {
		if v.ref != nil {
			fn(v.ref)
		}
	}
	if c.mirror != nil {
		fn(c.mirror)
	}
}
