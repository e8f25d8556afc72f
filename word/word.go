// Package word provides the machine-word value types that the native-call
// boundary is built on.
//
// A Word is an opaque platform-width value. It can only be compared against
// zero and reinterpreted as one of the more specific views:
//
//   - Address: unsigned, with arithmetic, alignment and unsigned comparison
//   - Offset:  signed two's-complement displacement
//   - Pointer: an Address with typed memory access
//
// Collector-visible object references are deliberately not words; they are
// carried by Reference and only ever moved through Pointer.ReadReference and
// Pointer.WriteReference.
package word

import (
	"fmt"
	"math/bits"
	"unsafe"
)

// Word is an opaque machine word.
type Word uintptr

// Size is the width of a Word in bytes.
const Size = int(unsafe.Sizeof(uintptr(0)))

// Bits is the width of a Word in bits.
const Bits = bits.UintSize

// Zero returns the all-zero word.
func Zero() Word { return 0 }

// AllOnes returns the word with every bit set.
func AllOnes() Word { return ^Word(0) }

// IsZero reports whether every bit of w is clear.
func (w Word) IsZero() bool { return w == 0 }

// IsAllOnes reports whether every bit of w is set.
func (w Word) IsAllOnes() bool { return w == ^Word(0) }

// AsAddress reinterprets w as an unsigned address.
func (w Word) AsAddress() Address { return Address(w) }

// AsOffset reinterprets w as a signed offset.
func (w Word) AsOffset() Offset { return Offset(w) }

// AsPointer reinterprets w as a pointer.
func (w Word) AsPointer() Pointer { return Pointer(w) }

// String formats w as a zero-padded hex string.
func (w Word) String() string {
	return fmt.Sprintf("0x%0*x", Size*2, uintptr(w))
}

// FromInt sign-extends a 32-bit value to the platform width.
func FromInt(v int32) Word { return Word(int(v)) }

// FromUnsignedInt zero-extends a 32-bit value to the platform width.
func FromUnsignedInt(v uint32) Word { return Word(uintptr(v)) }

// FromLong truncates a 64-bit value to the platform width.
func FromLong(v int64) Word { return Word(uintptr(v)) }
