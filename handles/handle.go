// Package handles implements the indirection that lets native code hold
// managed object references.
//
// A Handle is a machine word whose low two bits name its kind. STACK handles
// carry the address of a pinned reference cell in a call's parameter frame;
// LOCAL, GLOBAL and WEAK_GLOBAL handles carry an index into a pool. Every
// object a handle designates is held in exactly one place (a pool slot or a
// stack cell) so a collection enumerates and updates them together.
package handles

import (
	"fmt"

	"github.com/chazu/boundary/word"
)

// Kind is the handle kind stored in the tag bits.
type Kind uint8

const (
	Stack Kind = iota
	Local
	Global
	WeakGlobal
)

const tagBits = 2

var kindNames = [...]string{"stack", "local", "global", "weak-global"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Handle is the word native code holds for a managed object.
type Handle word.Word

// Null is the null handle. It is a STACK handle whose cell address is zero
// and always resolves to nil.
const Null Handle = 0

// Encode builds a pool handle for index. It panics for the STACK kind or an
// index too large for the encoding.
func Encode(k Kind, index int) Handle {
	if k == Stack {
		panic("handles: stack handles carry addresses, not indices")
	}
	if index < 0 {
		panic(fmt.Sprintf("handles: negative index %d", index))
	}
	return Handle(word.WithTag(word.Address(index), word.Tag(k)).Pack(tagBits))
}

// EncodeStack builds a STACK handle for a reference cell. The cell must be
// aligned so the tag bits are free.
func EncodeStack(cell word.Pointer) Handle {
	return Handle(word.WithTag(cell.AsAddress(), word.Tag(Stack)).PackAligned(tagBits))
}

// FromWord reinterprets a raw word received from native code.
func FromWord(w word.Word) Handle { return Handle(w) }

// Word returns the raw encoding passed to native code.
func (h Handle) Word() word.Word { return word.Word(h) }

// IsNull reports whether h is the null handle.
func (h Handle) IsNull() bool { return h == Null }

// Kind returns the handle kind.
func (h Handle) Kind() Kind {
	tag, _ := word.UnpackAligned(word.Word(h), tagBits).Tag()
	return Kind(tag)
}

// Index returns the pool index of a LOCAL, GLOBAL or WEAK_GLOBAL handle.
func (h Handle) Index() int {
	if h.Kind() == Stack {
		panic(fmt.Sprintf("handles: %s has no pool index", h))
	}
	return int(word.Unpack(word.Word(h), tagBits).Address())
}

// StackAddress returns the reference cell of a STACK handle.
func (h Handle) StackAddress() word.Pointer {
	if h.Kind() != Stack {
		panic(fmt.Sprintf("handles: %s is not a stack handle", h))
	}
	return word.UnpackAligned(word.Word(h), tagBits).Address().AsPointer()
}

func (h Handle) String() string {
	switch {
	case h.IsNull():
		return "handle(null)"
	case h.Kind() == Stack:
		return fmt.Sprintf("handle(stack %s)", h.StackAddress())
	}
	return fmt.Sprintf("handle(%s %d)", h.Kind(), h.Index())
}
