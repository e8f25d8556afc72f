package heap

import (
	"fmt"
	"sync"

	"github.com/chazu/boundary/word"
)

// MethodFlags describe a method's binding.
type MethodFlags uint16

const (
	MethodStatic MethodFlags = 1 << iota
	MethodNative
	MethodAbstract
	MethodPublic
)

// Impl is the body of a method implemented in Go. The receiver is nil for
// static methods.
type Impl func(receiver *Object, args []Value) (Value, error)

// Method is a managed method. Native methods have no Impl; they run by
// calling the bound native entry point through the universe's native
// invoker.
type Method struct {
	Holder     *Class
	Name       string
	Descriptor string
	Sig        Signature
	Flags      MethodFlags
	Impl       Impl

	mu          sync.Mutex
	nativeEntry word.Address
	mirror      *Object
	id          word.Word
}

func (m *Method) String() string {
	return m.Holder.Name + "." + m.Name + m.Descriptor
}

func (m *Method) IsStatic() bool   { return m.Flags&MethodStatic != 0 }
func (m *Method) IsNative() bool   { return m.Flags&MethodNative != 0 }
func (m *Method) IsAbstract() bool { return m.Flags&MethodAbstract != 0 }

// IsInitializer reports whether m is a constructor or class initializer.
func (m *Method) IsInitializer() bool { return m.Name == "<init>" || m.Name == "<clinit>" }

// IsConstructor reports whether m is an instance initializer.
func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

// NativeEntry returns the native function bound to m, or zero.
func (m *Method) NativeEntry() word.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nativeEntry
}

// Bind sets the native function for m. Binding zero unbinds it.
func (m *Method) Bind(entry word.Address) error {
	if !m.IsNative() {
		return fmt.Errorf("heap: %s is not native", m)
	}
	m.mu.Lock()
	m.nativeEntry = entry
	m.mu.Unlock()
	return nil
}

// Invoke runs m with the given receiver and arguments. Arguments are
// converted to the declared parameter kinds first.
func (m *Method) Invoke(receiver *Object, args []Value) (Value, error) {
	if len(args) != len(m.Sig.ParamKinds) {
		u := m.Holder.Loader.universe
		return Void, u.Throw(u.IllegalArgumentException,
			"%s expects %d arguments, got %d", m, len(m.Sig.ParamKinds), len(args))
	}
	conv := make([]Value, len(args))
	for i, a := range args {
		v, err := coerce(a, m.Sig.ParamKinds[i])
		if err != nil {
			u := m.Holder.Loader.universe
			return Void, u.Throw(u.IllegalArgumentException, "argument %d of %s: %v", i, m, err)
		}
		conv[i] = v
	}
	switch {
	case m.IsAbstract():
		u := m.Holder.Loader.universe
		return Void, u.Throw(u.AbstractMethodError, "%s", m)
	case m.IsNative():
		u := m.Holder.Loader.universe
		if u.NativeInvoker == nil {
			return Void, u.Throw(u.UnsatisfiedLinkError, "%s", m)
		}
		return u.NativeInvoker(m, receiver, conv)
	case m.Impl == nil:
		u := m.Holder.Loader.universe
		return Void, u.Throw(u.InternalError, "%s has no body", m)
	}
	return m.Impl(receiver, conv)
}

// Mirror returns the reflective java/lang/reflect/Method (or Constructor)
// object for m.
func (m *Method) Mirror() *Object {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mirror == nil {
		u := m.Holder.Loader.universe
		cls := u.ReflectMethodClass
		if m.IsConstructor() {
			cls = u.ReflectConstructorClass
		}
		m.mirror = u.newInstance(cls)
		m.mirror.Payload = m
	}
	return m.mirror
}

// ---------------------------------------------------------------------------
// Field
// ---------------------------------------------------------------------------

// Field is a managed field. Index is the slot in the instance field vector,
// or in the holder's static vector for static fields.
type Field struct {
	Holder     *Class
	Name       string
	Descriptor string
	Kind       Kind
	Static     bool
	Index      int

	mu     sync.Mutex
	mirror *Object
	id     word.Word
}

func (f *Field) String() string { return f.Holder.Name + "." + f.Name + ":" + f.Descriptor }

// Mirror returns the java/lang/reflect/Field object for f.
func (f *Field) Mirror() *Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mirror == nil {
		u := f.Holder.Loader.universe
		f.mirror = u.newInstance(u.ReflectFieldClass)
		f.mirror.Payload = f
	}
	return f.mirror
}
