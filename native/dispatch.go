package native

import (
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

// opTable maps slot names to the Go entry points of managed operations.
type opTable map[string]Func

func (t opTable) add(name string, fn Func) {
	if _, dup := t[name]; dup {
		fatal("managed operation %s registered twice", name)
	}
	t[name] = fn
}

// managedOps collects every operation implemented on the managed side.
func managedOps() opTable {
	ops := make(opTable)
	registerClassOps(ops)
	registerExceptionOps(ops)
	registerRefOps(ops)
	registerObjectOps(ops)
	registerCallOps(ops)
	registerFieldOps(ops)
	registerStringOps(ops)
	registerArrayOps(ops)
	registerMiscOps(ops)
	return ops
}

// ---------------------------------------------------------------------------
// Argument words
// ---------------------------------------------------------------------------

// argv reads the words a table entry was called with. Missing trailing
// arguments read as zero.
type argv []word.Word

func (a argv) word(i int) word.Word {
	if i < len(a) {
		return a[i]
	}
	return 0
}

func (a argv) handle(i int) handles.Handle { return handles.FromWord(a.word(i)) }
func (a argv) ptr(i int) word.Pointer      { return a.word(i).AsPointer() }
func (a argv) i32(i int) int32             { return int32(a.word(i)) }
func (a argv) i64(i int) int64             { return int64(a.word(i)) }
func (a argv) boolean(i int) bool          { return uint8(a.word(i)) != 0 }

// cstring reads a NUL-terminated string argument. A null pointer reads as
// the empty string and ok is false.
func (a argv) cstring(i int) (s string, ok bool) {
	p := a.ptr(i)
	if p.IsZero() {
		return "", false
	}
	return string(p.ReadCString(0)), true
}

func handleWord(h handles.Handle) word.Word { return h.Word() }

func boolWord(b bool) word.Word {
	if b {
		return 1
	}
	return 0
}

func intWord(n int32) word.Word { return word.FromInt(n) }

// setIsCopy stores the isCopy out-parameter when native code supplied one.
func setIsCopy(p word.Pointer, copied bool) {
	if !p.IsZero() {
		p.WriteBool(0, copied)
	}
}

// kindOfName returns the kind for a slot-name kind component.
func kindOfName(name string) heap.Kind { return kindByName[name] }
