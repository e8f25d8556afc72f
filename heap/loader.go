package heap

import (
	"fmt"
	"sync"

	"github.com/chazu/boundary/word"
)

// ---------------------------------------------------------------------------
// Class definitions
// ---------------------------------------------------------------------------

// ClassDef describes a class to define programmatically.
type ClassDef struct {
	Name       string
	Super      *Class // nil means java/lang/Object
	Interfaces []*Class
	Flags      ClassFlags
	Fields     []FieldDef
	Methods    []MethodDef
}

// FieldDef describes one field of a ClassDef.
type FieldDef struct {
	Name       string
	Descriptor string
	Static     bool
}

// MethodDef describes one method of a ClassDef.
type MethodDef struct {
	Name       string
	Descriptor string
	Flags      MethodFlags
	Impl       Impl
}

// Definer turns class-file bytes into a class. Parsing class files is the
// business of the class-loading subsystem; loaders delegate to it.
type Definer func(loader *ClassLoader, name string, data []byte) (*Class, error)

// Library is a native library loaded on behalf of a class loader.
type Library struct {
	Handle word.Address
	Path   string
}

// ---------------------------------------------------------------------------
// ClassLoader
// ---------------------------------------------------------------------------

// ClassLoader owns a namespace of classes and the native libraries loaded
// for them.
type ClassLoader struct {
	Name   string
	Parent *ClassLoader

	universe  *Universe
	mu        sync.RWMutex
	classes   map[string]*Class
	libraries []Library
	mirror    *Object
}

func newClassLoader(u *Universe, name string, parent *ClassLoader) *ClassLoader {
	return &ClassLoader{
		Name:     name,
		Parent:   parent,
		universe: u,
		classes:  make(map[string]*Class),
	}
}

// NewClassLoader creates an application class loader delegating to parent.
func (u *Universe) NewClassLoader(name string, parent *ClassLoader) *ClassLoader {
	if parent == nil {
		parent = u.System
	}
	return newClassLoader(u, name, parent)
}

// Universe returns the universe the loader belongs to.
func (l *ClassLoader) Universe() *Universe { return l.universe }

// IsBoot reports whether l is the primordial loader.
func (l *ClassLoader) IsBoot() bool { return l == l.universe.Boot }

func (l *ClassLoader) String() string { return l.Name }

// Mirror returns the managed object representing l.
func (l *ClassLoader) Mirror() *Object {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mirror == nil {
		l.mirror = l.universe.newInstance(l.universe.ClassLoaderClass)
		l.mirror.Payload = l
	}
	return l.mirror
}

// FindLoadedClass returns a class defined by l itself.
func (l *ClassLoader) FindLoadedClass(name string) *Class {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.classes[name]
}

// LoadClass resolves name, asking the parent first. Array names are built
// from their component class.
func (l *ClassLoader) LoadClass(name string) (*Class, error) {
	if len(name) > 1 && name[0] == '[' {
		return l.loadArrayClass(name)
	}
	if c := l.find(name); c != nil {
		return c, nil
	}
	u := l.universe
	return nil, u.Throw(u.NoClassDefFoundError, "%s", name)
}

// find resolves name parent-first without raising.
func (l *ClassLoader) find(name string) *Class {
	if l.Parent != nil {
		if c := l.Parent.find(name); c != nil {
			return c
		}
	}
	return l.FindLoadedClass(name)
}

func (l *ClassLoader) loadArrayClass(name string) (*Class, error) {
	elem := name[1:]
	k, err := KindOf(elem[0])
	if err != nil || k == KindVoid || k == KindWord {
		u := l.universe
		return nil, u.Throw(u.NoClassDefFoundError, "%s", name)
	}
	if k != KindReference {
		if len(elem) != 1 {
			u := l.universe
			return nil, u.Throw(u.NoClassDefFoundError, "%s", name)
		}
		return l.universe.PrimitiveArrayClass(k), nil
	}
	comp, err := l.LoadClass(ClassNameOf(elem))
	if err != nil {
		return nil, err
	}
	return comp.ArrayClass(), nil
}

// DefineClass turns class-file bytes into a class through the universe's
// Definer.
func (l *ClassLoader) DefineClass(name string, data []byte) (*Class, error) {
	u := l.universe
	if u.Definer == nil {
		return nil, u.Throw(u.UnsupportedOperationException, "no class definer installed for %s", name)
	}
	c, err := u.Definer(l, name, data)
	if err != nil {
		return nil, err
	}
	if c.Loader != l {
		return nil, u.Throw(u.ClassFormatError, "definer produced %s for loader %s", c.Name, c.Loader)
	}
	return c, nil
}

// Define creates and registers a class from def.
func (l *ClassLoader) Define(def ClassDef) (*Class, error) {
	u := l.universe
	if def.Name == "" {
		return nil, fmt.Errorf("heap: class definition without a name")
	}
	super := def.Super
	if super == nil && def.Name != "java/lang/Object" && def.Flags&ClassInterface == 0 {
		super = u.ObjectClass
	}
	c := &Class{
		Name:        def.Name,
		Super:       super,
		Interfaces:  def.Interfaces,
		Loader:      l,
		Flags:       def.Flags,
		ElementKind: KindReference,
	}
	if super != nil {
		c.numFields = super.numFields
	}
	for _, fd := range def.Fields {
		k, err := ParseField(fd.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("define %s.%s: %w", def.Name, fd.Name, err)
		}
		f := &Field{Holder: c, Name: fd.Name, Descriptor: fd.Descriptor, Kind: k, Static: fd.Static}
		if fd.Static {
			f.Index = len(c.statics)
			c.statics = append(c.statics, Zero(k))
		} else {
			f.Index = c.numFields
			c.numFields++
		}
		c.fields = append(c.fields, f)
	}
	for _, md := range def.Methods {
		sig, err := ParseSignature(md.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("define %s.%s: %w", def.Name, md.Name, err)
		}
		c.methods = append(c.methods, &Method{
			Holder:     c,
			Name:       md.Name,
			Descriptor: md.Descriptor,
			Sig:        sig,
			Flags:      md.Flags,
			Impl:       md.Impl,
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.classes[def.Name]; dup {
		return nil, u.Throw(u.LinkageError, "duplicate class definition for %s", def.Name)
	}
	l.classes[def.Name] = c
	return c, nil
}

// MustDefine is Define for fixed bootstrap definitions; it panics on error.
func (l *ClassLoader) MustDefine(def ClassDef) *Class {
	c, err := l.Define(def)
	if err != nil {
		panic(err)
	}
	return c
}

// ---------------------------------------------------------------------------
// Native libraries
// ---------------------------------------------------------------------------

// AddLibrary records a native library loaded for l.
func (l *ClassLoader) AddLibrary(lib Library) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.libraries = append(l.libraries, lib)
}

// Libraries returns the native libraries loaded for l, in load order.
func (l *ClassLoader) Libraries() []Library {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Library, len(l.libraries))
	copy(out, l.libraries)
	return out
}

// Classes returns the classes defined by l.
func (l *ClassLoader) Classes() []*Class {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Class, 0, len(l.classes))
	for _, c := range l.classes {
		out = append(out, c)
	}
	return out
}
