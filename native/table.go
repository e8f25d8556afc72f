package native

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/memory"
	"github.com/chazu/boundary/word"
)

// ---------------------------------------------------------------------------
// Slot order
// ---------------------------------------------------------------------------

// NumSlots is the number of entries in the function table.
const NumSlots = 235

var (
	callKinds  = []string{"Object", "Boolean", "Byte", "Char", "Short", "Int", "Long", "Float", "Double", "Void"}
	fieldKinds = callKinds[:9]
	primKinds  = callKinds[1:9]
)

var kindByName = map[string]heap.Kind{
	"Object":  heap.KindReference,
	"Boolean": heap.KindBoolean,
	"Byte":    heap.KindByte,
	"Char":    heap.KindChar,
	"Short":   heap.KindShort,
	"Int":     heap.KindInt,
	"Long":    heap.KindLong,
	"Float":   heap.KindFloat,
	"Double":  heap.KindDouble,
	"Void":    heap.KindVoid,
}

// slotNames is the fixed external order of the function table.
var slotNames = buildSlotNames()

// nativeSlots are filled by native bootstrap code. They take C varargs or a
// va_list, or must work before the managed side is up.
var nativeSlots = buildNativeSlots()

func buildSlotNames() []string {
	n := []string{"reserved0", "reserved1", "reserved2", "reserved3",
		"GetVersion", "DefineClass", "FindClass",
		"FromReflectedMethod", "FromReflectedField", "ToReflectedMethod",
		"GetSuperclass", "IsAssignableFrom", "ToReflectedField",
		"Throw", "ThrowNew", "ExceptionOccurred", "ExceptionDescribe", "ExceptionClear", "FatalError",
		"PushLocalFrame", "PopLocalFrame",
		"NewGlobalRef", "DeleteGlobalRef", "DeleteLocalRef", "IsSameObject", "NewLocalRef", "EnsureLocalCapacity",
		"AllocObject", "NewObject", "NewObjectV", "NewObjectA",
		"GetObjectClass", "IsInstanceOf", "GetMethodID",
	}
	calls := func(prefix string) {
		for _, k := range callKinds {
			n = append(n, prefix+k+"Method", prefix+k+"MethodV", prefix+k+"MethodA")
		}
	}
	calls("Call")
	calls("CallNonvirtual")
	n = append(n, "GetFieldID")
	for _, k := range fieldKinds {
		n = append(n, "Get"+k+"Field")
	}
	for _, k := range fieldKinds {
		n = append(n, "Set"+k+"Field")
	}
	n = append(n, "GetStaticMethodID")
	calls("CallStatic")
	n = append(n, "GetStaticFieldID")
	for _, k := range fieldKinds {
		n = append(n, "GetStatic"+k+"Field")
	}
	for _, k := range fieldKinds {
		n = append(n, "SetStatic"+k+"Field")
	}
	n = append(n,
		"NewString", "GetStringLength", "GetStringChars", "ReleaseStringChars",
		"NewStringUTF", "GetStringUTFLength", "GetStringUTFChars", "ReleaseStringUTFChars",
		"GetArrayLength", "NewObjectArray", "GetObjectArrayElement", "SetObjectArrayElement")
	for _, pattern := range []string{"New%sArray", "Get%sArrayElements", "Release%sArrayElements", "Get%sArrayRegion", "Set%sArrayRegion"} {
		for _, k := range primKinds {
			n = append(n, fmt.Sprintf(pattern, k))
		}
	}
	n = append(n,
		"RegisterNatives", "UnregisterNatives", "MonitorEnter", "MonitorExit", "GetJavaVM",
		"GetStringRegion", "GetStringUTFRegion",
		"GetPrimitiveArrayCritical", "ReleasePrimitiveArrayCritical",
		"GetStringCritical", "ReleaseStringCritical",
		"NewWeakGlobalRef", "DeleteWeakGlobalRef", "ExceptionCheck",
		"NewDirectByteBuffer", "GetDirectBufferAddress", "GetDirectBufferCapacity",
		"GetObjectRefType",
		"GetNumberOfArguments", "GetKindsOfArguments")
	return n
}

func buildNativeSlots() map[string]bool {
	s := map[string]bool{
		"reserved0": true, "reserved1": true, "reserved2": true, "reserved3": true,
		"GetVersion": true, "GetJavaVM": true, "NewObject": true, "NewObjectV": true,
	}
	for _, prefix := range []string{"Call", "CallNonvirtual", "CallStatic"} {
		for _, k := range callKinds {
			s[prefix+k+"Method"] = true
			s[prefix+k+"MethodV"] = true
		}
	}
	return s
}

// SlotNames returns the table order.
func SlotNames() []string {
	out := make([]string, len(slotNames))
	copy(out, slotNames)
	return out
}

// SlotIndex returns the table index of the named operation.
func SlotIndex(name string) (int, bool) {
	for i, n := range slotNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// IsNativeSlot reports whether the named slot is supplied by native code.
func IsNativeSlot(name string) bool { return nativeSlots[name] }

// NativeSlotNames returns the names native bootstrap code must supply, in
// table order.
func NativeSlotNames() []string {
	var out []string
	for _, n := range slotNames {
		if nativeSlots[n] {
			out = append(out, n)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Table
// ---------------------------------------------------------------------------

// Source records which side filled a slot.
type Source uint8

const (
	SourceManaged Source = iota + 1
	SourceNative
)

func (s Source) String() string {
	switch s {
	case SourceManaged:
		return "managed"
	case SourceNative:
		return "native"
	}
	return "empty"
}

// Slot is one function table entry.
type Slot struct {
	Index  int
	Name   string
	Source Source
	Entry  word.Address
}

// Table is the function table native code indexes into. The entries also
// live in a flat word array outside the Go heap.
type Table struct {
	slots []Slot
	base  word.Pointer
}

// ValidateTable checks that every slot is filled by exactly one source and
// that native-only slots come from native code. All problems are reported.
func ValidateTable(managed, natives map[string]word.Address) error {
	var errs []error
	known := make(map[string]bool, len(slotNames))
	for _, name := range slotNames {
		known[name] = true
		m, n := managed[name], natives[name]
		switch {
		case m != 0 && n != 0:
			errs = append(errs, fmt.Errorf("slot %s filled by both managed and native code", name))
		case m == 0 && n == 0:
			errs = append(errs, fmt.Errorf("slot %s has no implementation", name))
		case m != 0 && nativeSlots[name]:
			errs = append(errs, fmt.Errorf("slot %s must be supplied by native code", name))
		}
	}
	for _, src := range []map[string]word.Address{managed, natives} {
		var extra []string
		for name := range src {
			if !known[name] {
				extra = append(extra, name)
			}
		}
		sort.Strings(extra)
		for _, name := range extra {
			errs = append(errs, fmt.Errorf("no slot named %s", name))
		}
	}
	return errors.Join(errs...)
}

// BuildTable fills the table. Any validation failure is fatal: the runtime
// cannot run with a gap in the table.
func BuildTable(mem *memory.Heap, managed, natives map[string]word.Address) *Table {
	if err := ValidateTable(managed, natives); err != nil {
		fatal("function table: %v", err)
	}
	base, err := mem.Allocate(NumSlots * word.Size)
	if err != nil {
		fatal("function table: %v", err)
	}
	t := &Table{slots: make([]Slot, len(slotNames)), base: base}
	for i, name := range slotNames {
		s := Slot{Index: i, Name: name, Source: SourceManaged, Entry: managed[name]}
		if s.Entry == 0 {
			s.Source, s.Entry = SourceNative, natives[name]
		}
		t.slots[i] = s
		base.SetWord(0, i, s.Entry.AsWord())
	}
	return t
}

// Len returns the number of slots.
func (t *Table) Len() int { return len(t.slots) }

// Slot returns slot i.
func (t *Table) Slot(i int) Slot { return t.slots[i] }

// Lookup returns the slot of the named operation.
func (t *Table) Lookup(name string) (Slot, bool) {
	i, ok := SlotIndex(name)
	if !ok {
		return Slot{}, false
	}
	return t.slots[i], true
}

// Base returns the address of the flat entry array.
func (t *Table) Base() word.Pointer { return t.base }

// Entry reads slot i from the flat array, as native code does.
func (t *Table) Entry(i int) word.Address {
	return t.base.GetWord(0, i).AsAddress()
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

// Layout describes the table shape: what native code compiled against this
// runtime may rely on.
type Layout struct {
	Version int32        `cbor:"1,keyasint"`
	Slots   []LayoutSlot `cbor:"2,keyasint"`
}

// LayoutSlot describes one slot.
type LayoutSlot struct {
	Index  int    `cbor:"1,keyasint"`
	Name   string `cbor:"2,keyasint"`
	Source string `cbor:"3,keyasint"`
}

// DescribeLayout returns the layout for the given version without building
// a table.
func DescribeLayout(version int32) *Layout {
	l := &Layout{Version: version, Slots: make([]LayoutSlot, len(slotNames))}
	for i, name := range slotNames {
		src := SourceManaged
		if nativeSlots[name] {
			src = SourceNative
		}
		l.Slots[i] = LayoutSlot{Index: i, Name: name, Source: src.String()}
	}
	return l
}

// Layout returns the layout of a built table.
func (t *Table) Layout(version int32) *Layout {
	l := &Layout{Version: version, Slots: make([]LayoutSlot, len(t.slots))}
	for i, s := range t.slots {
		l.Slots[i] = LayoutSlot{Index: s.Index, Name: s.Name, Source: s.Source.String()}
	}
	return l
}
