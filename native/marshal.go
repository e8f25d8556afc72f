package native

import (
	"math"

	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

// ---------------------------------------------------------------------------
// Argument arrays
// ---------------------------------------------------------------------------

// ReadArguments converts a jvalue array into typed arguments for m. Every
// slot is JValueSize bytes wide; narrow kinds are read as a 32-bit int and
// narrowed. Reference slots hold handles, which are resolved.
func (e *Env) ReadArguments(m *heap.Method, p word.Pointer) ([]heap.Value, error) {
	kinds := m.Sig.ParamKinds
	if len(kinds) == 0 {
		return nil, nil
	}
	if p.IsZero() {
		u := e.vm.universe
		return nil, u.Throw(u.NullPointerException, "argument array for %s is null", m)
	}
	args := make([]heap.Value, len(kinds))
	for i, k := range kinds {
		off := i * JValueSize
		switch k {
		case heap.KindBoolean:
			args[i] = heap.Boolean(uint8(p.ReadInt32(off)) != 0)
		case heap.KindByte:
			args[i] = heap.Byte(int8(p.ReadInt32(off)))
		case heap.KindChar:
			args[i] = heap.Char(uint16(p.ReadInt32(off)))
		case heap.KindShort:
			args[i] = heap.Short(int16(p.ReadInt32(off)))
		case heap.KindInt:
			args[i] = heap.Int(p.ReadInt32(off))
		case heap.KindLong:
			args[i] = heap.Long(p.ReadInt64(off))
		case heap.KindFloat:
			args[i] = heap.Float(p.ReadFloat32(off))
		case heap.KindDouble:
			args[i] = heap.Double(p.ReadFloat64(off))
		case heap.KindWord:
			args[i] = heap.WordValue(p.ReadWord(off))
		case heap.KindReference:
			o, err := e.Resolve(handles.FromWord(p.ReadWord(off)))
			if err != nil {
				return nil, err
			}
			args[i] = heap.Ref(o)
		}
	}
	return args, nil
}

// PackArguments copies C variadic arguments into a fresh jvalue array, the
// way the native Call<Kind>Method entries do before calling the A variant.
// Each variadic argument is one word; float arguments arrive promoted to
// double. The returned function frees the array.
func (vm *VM) PackArguments(kinds []heap.Kind, varargs []word.Word) (word.Pointer, func(), error) {
	if len(varargs) < len(kinds) {
		u := vm.universe
		return 0, nil, u.Throw(u.IllegalArgumentException, "expected %d arguments, got %d", len(kinds), len(varargs))
	}
	p, err := vm.mem.Allocate(len(kinds) * JValueSize)
	if err != nil {
		return 0, nil, err
	}
	for i, k := range kinds {
		off, w := i*JValueSize, varargs[i]
		switch k {
		case heap.KindBoolean:
			p.WriteBool(off, uint8(w) != 0)
		case heap.KindByte:
			p.WriteInt8(off, int8(w))
		case heap.KindChar:
			p.WriteChar(off, uint16(w))
		case heap.KindShort:
			p.WriteInt16(off, int16(w))
		case heap.KindInt:
			p.WriteInt32(off, int32(w))
		case heap.KindLong:
			p.WriteInt64(off, int64(w))
		case heap.KindFloat:
			p.WriteFloat32(off, float32(math.Float64frombits(uint64(w))))
		case heap.KindDouble:
			p.WriteFloat64(off, math.Float64frombits(uint64(w)))
		default:
			p.WriteWord(off, w)
		}
	}
	return p, func() {
		if err := vm.mem.Free(p); err != nil {
			log.Errorf("argument array: %s", err)
		}
	}, nil
}

// PackArgumentList is PackArguments for a va_list, modelled as a pointer to
// consecutive argument words.
func (vm *VM) PackArgumentList(kinds []heap.Kind, list word.Pointer) (word.Pointer, func(), error) {
	if len(kinds) > 0 && list.IsZero() {
		u := vm.universe
		return 0, nil, u.Throw(u.NullPointerException, "argument list is null")
	}
	words := make([]word.Word, len(kinds))
	for i := range words {
		words[i] = list.GetWord(0, i)
	}
	return vm.PackArguments(kinds, words)
}

// ---------------------------------------------------------------------------
// Values and words
// ---------------------------------------------------------------------------

// toWord converts a result to its table representation. A reference gets a
// new local handle, never one it may have arrived in.
func (e *Env) toWord(v heap.Value) (word.Word, error) {
	switch v.Kind() {
	case heap.KindVoid:
		return 0, nil
	case heap.KindReference:
		h, err := e.NewLocal(v.AsObject())
		return h.Word(), err
	case heap.KindFloat:
		return word.Word(math.Float32bits(v.AsFloat())), nil
	case heap.KindBoolean:
		if v.AsBoolean() {
			return 1, nil
		}
		return 0, nil
	case heap.KindInt, heap.KindShort, heap.KindByte:
		return word.FromInt(v.AsInt()), nil
	}
	return word.Word(v.Raw()), nil
}

// fromWord rebuilds a value of kind k from its word representation,
// resolving handles for references.
func (e *Env) fromWord(k heap.Kind, w word.Word) (heap.Value, error) {
	switch k {
	case heap.KindVoid:
		return heap.Void, nil
	case heap.KindReference:
		o, err := e.Resolve(handles.FromWord(w))
		if err != nil {
			return heap.Void, err
		}
		return heap.Ref(o), nil
	}
	return heap.FromRaw(k, uint64(w)), nil
}
