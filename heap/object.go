package heap

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"unicode/utf16"

	"github.com/chazu/boundary/word"
)

// Object is a managed heap object. Instances carry field values; arrays carry
// either a packed primitive payload or a slice of element references; strings
// carry immutable UTF-16 text. Payload holds host data for mirrors, direct
// buffers and throwables.
type Object struct {
	class   *Class
	fields  []Value
	prim    []byte
	refs    []*Object
	length  int
	text    []uint16
	Payload any

	monitor atomic.Pointer[Monitor]

	pinMu  sync.Mutex
	pinner runtime.Pinner
	pins   int
}

// Class returns the object's class.
func (o *Object) Class() *Class { return o.class }

// IsArray reports whether o is an array.
func (o *Object) IsArray() bool { return o.class.IsArray() }

// Length returns the array length, or the UTF-16 length for strings.
func (o *Object) Length() int {
	if o.text != nil || o.class.IsString() {
		return len(o.text)
	}
	return o.length
}

func (o *Object) String() string {
	if o.class.IsString() {
		return fmt.Sprintf("%q", o.GoString())
	}
	return fmt.Sprintf("%s@%p", o.class.Name, o)
}

// ---------------------------------------------------------------------------
// Fields
// ---------------------------------------------------------------------------

// Field returns the value of an instance field.
func (o *Object) Field(f *Field) Value { return o.fields[f.Index] }

// SetField stores an instance field value, converting primitives to the
// field's kind.
func (o *Object) SetField(f *Field, v Value) error {
	cv, err := coerce(v, f.Kind)
	if err != nil {
		return fmt.Errorf("set %s.%s: %w", f.Holder.Name, f.Name, err)
	}
	o.fields[f.Index] = cv
	return nil
}

func coerce(v Value, k Kind) (Value, error) {
	if k == KindReference {
		if v.kind != KindReference {
			return Void, fmt.Errorf("heap: %s value stored into reference slot", v.kind)
		}
		return v, nil
	}
	return v.Convert(k)
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// Chars returns the UTF-16 contents of a string object. The slice must not
// be modified.
func (o *Object) Chars() []uint16 { return o.text }

// GoString decodes a string object's text.
func (o *Object) GoString() string { return string(utf16.Decode(o.text)) }

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// ElementKind returns the element kind of an array.
func (o *Object) ElementKind() Kind { return o.class.ElementKind }

// Data returns the packed payload of a primitive array. The slice aliases
// the array; writes through it are visible to managed code.
func (o *Object) Data() []byte { return o.prim }

// DataPointer returns the address of a primitive array's payload. The array
// must be pinned while the pointer is in use.
func (o *Object) DataPointer() word.Pointer {
	if len(o.prim) == 0 {
		return 0
	}
	return word.PointerTo(&o.prim[0])
}

// Element returns element i of an object array.
func (o *Object) Element(i int) (*Object, error) {
	if err := o.checkIndex(i); err != nil {
		return nil, err
	}
	return o.refs[i], nil
}

// SetElement stores element i of an object array. The value must be
// assignable to the component type.
func (o *Object) SetElement(i int, v *Object) error {
	if err := o.checkIndex(i); err != nil {
		return err
	}
	if v != nil && !o.class.Component.IsAssignableFrom(v.class) {
		return o.class.Loader.universe.Throw(o.class.Loader.universe.ArrayStoreException,
			"%s cannot be stored in %s", v.class.Name, o.class.Name)
	}
	o.refs[i] = v
	return nil
}

// Get returns primitive element i boxed as a Value.
func (o *Object) Get(i int) (Value, error) {
	if err := o.checkIndex(i); err != nil {
		return Void, err
	}
	k := o.class.ElementKind
	p := o.DataPointer()
	switch k {
	case KindBoolean:
		return Boolean(p.GetInt8(0, i) != 0), nil
	case KindByte:
		return Byte(p.GetInt8(0, i)), nil
	case KindChar:
		return Char(p.GetChar(0, i)), nil
	case KindShort:
		return Short(p.GetInt16(0, i)), nil
	case KindInt:
		return Int(p.GetInt32(0, i)), nil
	case KindLong:
		return Long(p.GetInt64(0, i)), nil
	case KindFloat:
		return Float(p.GetFloat32(0, i)), nil
	case KindDouble:
		return Double(p.GetFloat64(0, i)), nil
	}
	return Ref(o.refs[i]), nil
}

// Set stores primitive element i.
func (o *Object) Set(i int, v Value) error {
	if err := o.checkIndex(i); err != nil {
		return err
	}
	k := o.class.ElementKind
	if k == KindReference {
		return o.SetElement(i, v.AsObject())
	}
	cv, err := v.Convert(k)
	if err != nil {
		return err
	}
	p := o.DataPointer()
	switch k {
	case KindBoolean, KindByte:
		p.SetInt8(0, i, int8(cv.bits))
	case KindChar:
		p.SetChar(0, i, cv.AsChar())
	case KindShort:
		p.SetInt16(0, i, cv.AsShort())
	case KindInt:
		p.SetInt32(0, i, cv.AsInt())
	case KindLong:
		p.SetInt64(0, i, cv.AsLong())
	case KindFloat:
		p.SetFloat32(0, i, cv.AsFloat())
	case KindDouble:
		p.SetFloat64(0, i, cv.AsDouble())
	}
	return nil
}

func (o *Object) checkIndex(i int) error {
	if !o.class.IsArray() {
		panic(fmt.Sprintf("heap: %s is not an array", o.class.Name))
	}
	if i < 0 || i >= o.length {
		u := o.class.Loader.universe
		return u.Throw(u.ArrayIndexOutOfBoundsException, "Index %d out of bounds for length %d", i, o.length)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Pinning
// ---------------------------------------------------------------------------

// Pin keeps o's array payload at a fixed address until a matching Unpin.
// Pins nest.
func (o *Object) Pin() word.Pointer {
	o.pinMu.Lock()
	defer o.pinMu.Unlock()
	if o.pins == 0 && len(o.prim) > 0 {
		o.pinner.Pin(&o.prim[0])
	}
	o.pins++
	return o.DataPointer()
}

// Unpin releases one Pin.
func (o *Object) Unpin() {
	o.pinMu.Lock()
	defer o.pinMu.Unlock()
	if o.pins == 0 {
		panic("heap: unpin of unpinned object")
	}
	o.pins--
	if o.pins == 0 {
		o.pinner.Unpin()
	}
}

// IsPinned reports whether o currently holds a pin.
func (o *Object) IsPinned() bool {
	o.pinMu.Lock()
	defer o.pinMu.Unlock()
	return o.pins > 0
}

// Monitor returns o's monitor, creating it on first use.
func (o *Object) Monitor() *Monitor {
	if m := o.monitor.Load(); m != nil {
		return m
	}
	o.monitor.CompareAndSwap(nil, NewMonitor())
	return o.monitor.Load()
}

// visit calls fn for every object directly referenced by o.
func (o *Object) visit(fn func(*Object)) {
	for _, v := range o.fields {
		if v.ref != nil {
			fn(v.ref)
		}
	}
	for _, r := range o.refs {
		if r != nil {
			fn(r)
		}
	}
	if t, ok := o.Payload.(*ThrowableState); ok && t.Cause != nil {
		fn(t.Cause)
	}
}
