package word

import "unsafe"

// Reference is a collector-visible object reference. It is never a Word: it
// cannot be reinterpreted as an address, and it can only be placed in memory
// through Pointer.WriteReference into a Reference-typed cell, so the collector
// always sees it.
type Reference struct {
	target any
}

// ReferenceSize is the in-memory size of a Reference cell.
const ReferenceSize = int(unsafe.Sizeof(Reference{}))

// Null is the null reference.
var Null = Reference{}

// RefOf wraps target in a Reference. A nil target yields Null.
func RefOf(target any) Reference { return Reference{target: target} }

// Target returns the referenced object, or nil for Null.
func (r Reference) Target() any { return r.target }

// IsNull reports whether r refers to nothing.
func (r Reference) IsNull() bool { return r.target == nil }

// Same reports whether r and other refer to the identical object.
func (r Reference) Same(other Reference) bool { return r.target == other.target }
