package heap

import (
	"fmt"
	"math"

	"github.com/chazu/boundary/word"
)

// Value is a boxed managed value: a primitive, a machine word or an object
// reference, tagged with its kind.
type Value struct {
	kind Kind
	bits uint64
	ref  *Object
}

// Void is the result of a method that returns nothing.
var Void = Value{kind: KindVoid}

func Boolean(v bool) Value {
	if v {
		return Value{kind: KindBoolean, bits: 1}
	}
	return Value{kind: KindBoolean}
}

func Byte(v int8) Value       { return Value{kind: KindByte, bits: uint64(int64(v))} }
func Char(v uint16) Value     { return Value{kind: KindChar, bits: uint64(v)} }
func Short(v int16) Value     { return Value{kind: KindShort, bits: uint64(int64(v))} }
func Int(v int32) Value       { return Value{kind: KindInt, bits: uint64(int64(v))} }
func Long(v int64) Value      { return Value{kind: KindLong, bits: uint64(v)} }
func Float(v float32) Value   { return Value{kind: KindFloat, bits: uint64(math.Float32bits(v))} }
func Double(v float64) Value  { return Value{kind: KindDouble, bits: math.Float64bits(v)} }
func WordValue(w word.Word) Value { return Value{kind: KindWord, bits: uint64(w)} }

// Ref boxes an object reference. A nil object yields a null reference.
func Ref(o *Object) Value { return Value{kind: KindReference, ref: o} }

// Null is the null reference value.
var Null = Value{kind: KindReference}

// Zero returns the default value for kind k.
func Zero(k Kind) Value { return Value{kind: k} }

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

func (v Value) AsBoolean() bool      { return v.bits&0xFF != 0 }
func (v Value) AsByte() int8         { return int8(v.bits) }
func (v Value) AsChar() uint16       { return uint16(v.bits) }
func (v Value) AsShort() int16       { return int16(v.bits) }
func (v Value) AsInt() int32         { return int32(v.bits) }
func (v Value) AsLong() int64        { return int64(v.bits) }
func (v Value) AsWord() word.Word    { return word.Word(v.bits) }
func (v Value) AsObject() *Object    { return v.ref }
func (v Value) IsNull() bool         { return v.kind == KindReference && v.ref == nil }

// AsFloat returns the float value. Integral kinds are converted numerically.
func (v Value) AsFloat() float32 {
	switch v.kind {
	case KindFloat:
		return math.Float32frombits(uint32(v.bits))
	case KindDouble:
		return float32(math.Float64frombits(v.bits))
	case KindLong:
		return float32(int64(v.bits))
	}
	return float32(v.AsInt())
}

// AsDouble returns the double value. Integral kinds are converted numerically.
func (v Value) AsDouble() float64 {
	switch v.kind {
	case KindDouble:
		return math.Float64frombits(v.bits)
	case KindFloat:
		return float64(math.Float32frombits(uint32(v.bits)))
	case KindLong:
		return float64(int64(v.bits))
	}
	return float64(v.AsInt())
}

// Raw returns the 64-bit payload of a non-reference value as it is laid out
// in an argument slot: integers sign- or zero-extended, floats as IEEE bits.
func (v Value) Raw() uint64 { return v.bits }

// FromRaw rebuilds a value of kind k from an argument-slot payload.
func FromRaw(k Kind, raw uint64) Value {
	switch k {
	case KindBoolean:
		return Boolean(raw&0xFF != 0)
	case KindByte:
		return Byte(int8(raw))
	case KindChar:
		return Char(uint16(raw))
	case KindShort:
		return Short(int16(raw))
	case KindInt:
		return Int(int32(raw))
	case KindFloat:
		return Value{kind: KindFloat, bits: uint64(uint32(raw))}
	}
	return Value{kind: k, bits: raw}
}

// Convert coerces v to kind k using widening and narrowing primitive
// conversion. References only convert to references.
func (v Value) Convert(k Kind) (Value, error) {
	if v.kind == k {
		return v, nil
	}
	if k == KindReference || v.kind == KindReference || k == KindVoid || v.kind == KindVoid {
		return Void, fmt.Errorf("heap: cannot convert %s to %s", v.kind, k)
	}
	switch k {
	case KindBoolean:
		return Boolean(v.bits != 0), nil
	case KindFloat:
		return Float(v.AsFloat()), nil
	case KindDouble:
		return Double(v.AsDouble()), nil
	}
	var n int64
	switch v.kind {
	case KindFloat, KindDouble:
		n = int64(v.AsDouble())
	default:
		n = int64(v.bits)
		if v.kind != KindLong && v.kind != KindWord && v.kind != KindChar && v.kind != KindBoolean {
			n = int64(int32(v.bits))
		}
	}
	return FromRaw(k, uint64(n)), nil
}

func (v Value) String() string {
	switch v.kind {
	case KindVoid:
		return "void"
	case KindBoolean:
		return fmt.Sprint(v.AsBoolean())
	case KindChar:
		return fmt.Sprintf("'%c'", rune(v.AsChar()))
	case KindFloat:
		return fmt.Sprint(v.AsFloat())
	case KindDouble:
		return fmt.Sprint(v.AsDouble())
	case KindWord:
		return v.AsWord().String()
	case KindReference:
		if v.ref == nil {
			return "null"
		}
		return v.ref.String()
	}
	return fmt.Sprint(int64(v.bits))
}
