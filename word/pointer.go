package word

import (
	"math"
	"unsafe"
)

// Pointer is an Address with typed memory access. A Pointer never owns the
// memory it addresses; keeping that memory alive (and, for Go memory, pinned)
// is the caller's responsibility.
type Pointer uintptr

// PointerOf returns the pointer for an unsafe.Pointer.
func PointerOf(p unsafe.Pointer) Pointer { return Pointer(uintptr(p)) }

// PointerTo returns the address of v. The caller must keep v reachable and
// pinned for as long as the pointer is used.
func PointerTo[T any](v *T) Pointer { return Pointer(uintptr(unsafe.Pointer(v))) }

// Unsafe converts p back into an unsafe.Pointer.
func (p Pointer) Unsafe() unsafe.Pointer { return unsafe.Pointer(uintptr(p)) }

func (p Pointer) AsWord() Word       { return Word(p) }
func (p Pointer) AsAddress() Address { return Address(p) }
func (p Pointer) IsZero() bool       { return p == 0 }
func (p Pointer) ToLong() int64      { return int64(uint64(p)) }

func (p Pointer) String() string { return "^" + Word(p).String() }

// ---------------------------------------------------------------------------
// Arithmetic (delegates to Address)
// ---------------------------------------------------------------------------

func (p Pointer) Plus(n int) Pointer            { return Address(p).Plus(n).AsPointer() }
func (p Pointer) PlusOffset(o Offset) Pointer   { return Address(p).PlusOffset(o).AsPointer() }
func (p Pointer) PlusWords(n int) Pointer       { return Address(p).PlusWords(n).AsPointer() }
func (p Pointer) Minus(n int) Pointer           { return Address(p).Minus(n).AsPointer() }
func (p Pointer) MinusOffset(o Offset) Pointer  { return Address(p).MinusOffset(o).AsPointer() }
func (p Pointer) MinusWords(n int) Pointer      { return Address(p).MinusWords(n).AsPointer() }
func (p Pointer) AlignUp(n int) Pointer         { return Address(p).AlignUp(n).AsPointer() }
func (p Pointer) AlignDown(n int) Pointer       { return Address(p).AlignDown(n).AsPointer() }
func (p Pointer) IsAligned(n int) bool          { return Address(p).IsAligned(n) }
func (p Pointer) RoundedUpBy(n int) Pointer     { return Address(p).RoundedUpBy(n).AsPointer() }
func (p Pointer) RoundedDownBy(n int) Pointer   { return Address(p).RoundedDownBy(n).AsPointer() }
func (p Pointer) And(a Address) Pointer         { return Address(p).And(a).AsPointer() }
func (p Pointer) Or(a Address) Pointer          { return Address(p).Or(a).AsPointer() }
func (p Pointer) BitCleared(index uint) Pointer { return Address(p).BitCleared(index).AsPointer() }

// Diff returns the signed distance p - q.
func (p Pointer) Diff(q Pointer) Offset { return Offset(p - q) }

// ---------------------------------------------------------------------------
// Typed access
// ---------------------------------------------------------------------------

func load[T any](p Pointer, offset int) T {
	return *(*T)(unsafe.Pointer(uintptr(p) + uintptr(offset)))
}

func store[T any](p Pointer, offset int, v T) {
	*(*T)(unsafe.Pointer(uintptr(p) + uintptr(offset))) = v
}

func (p Pointer) ReadInt8(offset int) int8       { return load[int8](p, offset) }
func (p Pointer) ReadBool(offset int) bool       { return load[uint8](p, offset) != 0 }
func (p Pointer) ReadInt16(offset int) int16     { return load[int16](p, offset) }
func (p Pointer) ReadChar(offset int) uint16     { return load[uint16](p, offset) }
func (p Pointer) ReadInt32(offset int) int32     { return load[int32](p, offset) }
func (p Pointer) ReadInt64(offset int) int64     { return load[int64](p, offset) }
func (p Pointer) ReadFloat32(offset int) float32 { return math.Float32frombits(load[uint32](p, offset)) }
func (p Pointer) ReadFloat64(offset int) float64 { return math.Float64frombits(load[uint64](p, offset)) }
func (p Pointer) ReadWord(offset int) Word       { return load[Word](p, offset) }

func (p Pointer) WriteInt8(offset int, v int8)   { store(p, offset, v) }
func (p Pointer) WriteInt16(offset int, v int16) { store(p, offset, v) }
func (p Pointer) WriteChar(offset int, v uint16) { store(p, offset, v) }
func (p Pointer) WriteInt32(offset int, v int32) { store(p, offset, v) }
func (p Pointer) WriteInt64(offset int, v int64) { store(p, offset, v) }
func (p Pointer) WriteWord(offset int, v Word)   { store(p, offset, v) }

func (p Pointer) WriteBool(offset int, v bool) {
	var b uint8
	if v {
		b = 1
	}
	store(p, offset, b)
}

func (p Pointer) WriteFloat32(offset int, v float32) {
	store(p, offset, math.Float32bits(v))
}

func (p Pointer) WriteFloat64(offset int, v float64) {
	store(p, offset, math.Float64bits(v))
}

// Scaled access: the element lives at displacement + index*size.

func (p Pointer) GetInt8(displacement, index int) int8 { return p.ReadInt8(displacement + index) }
func (p Pointer) GetInt16(displacement, index int) int16 {
	return p.ReadInt16(displacement + index*2)
}
func (p Pointer) GetChar(displacement, index int) uint16 {
	return p.ReadChar(displacement + index*2)
}
func (p Pointer) GetInt32(displacement, index int) int32 {
	return p.ReadInt32(displacement + index*4)
}
func (p Pointer) GetInt64(displacement, index int) int64 {
	return p.ReadInt64(displacement + index*8)
}
func (p Pointer) GetFloat32(displacement, index int) float32 {
	return p.ReadFloat32(displacement + index*4)
}
func (p Pointer) GetFloat64(displacement, index int) float64 {
	return p.ReadFloat64(displacement + index*8)
}
func (p Pointer) GetWord(displacement, index int) Word {
	return p.ReadWord(displacement + index*Size)
}

func (p Pointer) SetInt8(displacement, index int, v int8) { p.WriteInt8(displacement+index, v) }
func (p Pointer) SetInt16(displacement, index int, v int16) {
	p.WriteInt16(displacement+index*2, v)
}
func (p Pointer) SetChar(displacement, index int, v uint16) {
	p.WriteChar(displacement+index*2, v)
}
func (p Pointer) SetInt32(displacement, index int, v int32) {
	p.WriteInt32(displacement+index*4, v)
}
func (p Pointer) SetInt64(displacement, index int, v int64) {
	p.WriteInt64(displacement+index*8, v)
}
func (p Pointer) SetFloat32(displacement, index int, v float32) {
	p.WriteFloat32(displacement+index*4, v)
}
func (p Pointer) SetFloat64(displacement, index int, v float64) {
	p.WriteFloat64(displacement+index*8, v)
}
func (p Pointer) SetWord(displacement, index int, v Word) {
	p.WriteWord(displacement+index*Size, v)
}

// ---------------------------------------------------------------------------
// Collector-visible references
// ---------------------------------------------------------------------------

// ReadReference loads the object reference held in the Reference cell at
// offset. The addressed memory must be a Reference cell, never raw bytes.
func (p Pointer) ReadReference(offset int) Reference { return load[Reference](p, offset) }

// WriteReference stores r into the Reference cell at offset.
func (p Pointer) WriteReference(offset int, r Reference) { store(p, offset, r) }

// GetReference loads the reference at displacement + index*ReferenceSize.
func (p Pointer) GetReference(displacement, index int) Reference {
	return p.ReadReference(displacement + index*ReferenceSize)
}

// SetReference stores the reference at displacement + index*ReferenceSize.
func (p Pointer) SetReference(displacement, index int, r Reference) {
	p.WriteReference(displacement+index*ReferenceSize, r)
}

// ---------------------------------------------------------------------------
// Bulk access
// ---------------------------------------------------------------------------

// Bytes returns a slice aliasing n bytes at p.
func (p Pointer) Bytes(n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p.Unsafe()), n)
}

// ReadBytes copies len(dst) bytes starting at offset into dst.
func (p Pointer) ReadBytes(offset int, dst []byte) {
	copy(dst, p.Plus(offset).Bytes(len(dst)))
}

// WriteBytes copies src to memory starting at offset.
func (p Pointer) WriteBytes(offset int, src []byte) {
	copy(p.Plus(offset).Bytes(len(src)), src)
}

// ReadCString reads a NUL-terminated byte string starting at offset.
func (p Pointer) ReadCString(offset int) []byte {
	var out []byte
	for i := offset; ; i++ {
		b := load[byte](p, i)
		if b == 0 {
			return out
		}
		out = append(out, b)
	}
}

// WriteCString writes s followed by a NUL terminator at offset and returns
// the number of bytes written including the terminator.
func (p Pointer) WriteCString(offset int, s []byte) int {
	p.WriteBytes(offset, s)
	store[byte](p, offset+len(s), 0)
	return len(s) + 1
}
