package word

// Address is an unsigned machine word. It owns no memory; it is a pure value
// whose comparisons, division and remainder are always unsigned.
type Address uintptr

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// AsWord reinterprets a as an opaque word.
func (a Address) AsWord() Word { return Word(a) }

// AsOffset reinterprets a as a signed offset.
func (a Address) AsOffset() Offset { return Offset(a) }

// AsPointer reinterprets a as a pointer.
func (a Address) AsPointer() Pointer { return Pointer(a) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == 0 }

// ToLong returns a zero-extended to 64 bits.
func (a Address) ToLong() int64 { return int64(uint64(a)) }

// ToInt truncates a to its low 32 bits.
func (a Address) ToInt() int32 { return int32(uint32(a)) }

func (a Address) String() string { return Word(a).String() }

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// Plus adds a signed byte count, wrapping at the platform width.
func (a Address) Plus(n int) Address { return a + Address(n) }

// PlusAddress adds another address.
func (a Address) PlusAddress(b Address) Address { return a + b }

// PlusOffset adds a signed displacement.
func (a Address) PlusOffset(o Offset) Address { return a + Address(o) }

// PlusWords adds n words.
func (a Address) PlusWords(n int) Address { return a + Address(n*Size) }

// Minus subtracts a signed byte count.
func (a Address) Minus(n int) Address { return a - Address(n) }

// MinusAddress subtracts another address.
func (a Address) MinusAddress(b Address) Address { return a - b }

// MinusOffset subtracts a signed displacement.
func (a Address) MinusOffset(o Offset) Address { return a - Address(o) }

// MinusWords subtracts n words.
func (a Address) MinusWords(n int) Address { return a - Address(n*Size) }

// Times multiplies by an unsigned factor.
func (a Address) Times(factor Address) Address { return a * factor }

// DividedBy performs unsigned division. Panics with *ArithmeticError when
// divisor is zero.
func (a Address) DividedBy(divisor Address) Address {
	checkDivisor("divide", divisor)
	return a / divisor
}

// Remainder performs unsigned remainder. Panics with *ArithmeticError when
// divisor is zero.
func (a Address) Remainder(divisor Address) Address {
	checkDivisor("remainder", divisor)
	return a % divisor
}

// ---------------------------------------------------------------------------
// Bitwise
// ---------------------------------------------------------------------------

func (a Address) And(b Address) Address              { return a & b }
func (a Address) Or(b Address) Address               { return a | b }
func (a Address) Not() Address                       { return ^a }
func (a Address) ShiftedLeft(n uint) Address         { return a << n }
func (a Address) UnsignedShiftedRight(n uint) Address { return a >> n }

// BitSet returns a with bit index set.
func (a Address) BitSet(index uint) Address { return a | (1 << index) }

// BitCleared returns a with bit index cleared.
func (a Address) BitCleared(index uint) Address { return a &^ (1 << index) }

// IsBitSet reports whether bit index is set.
func (a Address) IsBitSet(index uint) bool { return a&(1<<index) != 0 }

// ---------------------------------------------------------------------------
// Alignment
// ---------------------------------------------------------------------------

// RoundedUpBy rounds a up to the next multiple of n:
// a + (n - a%n) when a%n != 0, else a.
func (a Address) RoundedUpBy(n int) Address {
	checkDivisor("round", n)
	rem := a % Address(n)
	if rem == 0 {
		return a
	}
	return a + (Address(n) - rem)
}

// RoundedDownBy rounds a down to a multiple of n.
func (a Address) RoundedDownBy(n int) Address {
	checkDivisor("round", n)
	return a - a%Address(n)
}

// AlignUp rounds a up to a multiple of n. Power-of-two boundaries use a mask;
// any other boundary falls back to remainder rounding.
func (a Address) AlignUp(n int) Address {
	if isPowerOfTwo(n) {
		mask := Address(n - 1)
		return (a + mask) &^ mask
	}
	return a.RoundedUpBy(n)
}

// AlignDown rounds a down to a multiple of n.
func (a Address) AlignDown(n int) Address {
	if isPowerOfTwo(n) {
		return a &^ Address(n-1)
	}
	return a.RoundedDownBy(n)
}

// IsAligned reports whether a is a multiple of n.
func (a Address) IsAligned(n int) bool {
	checkDivisor("align", n)
	return a%Address(n) == 0
}

// Aligned rounds a up to word alignment.
func (a Address) Aligned() Address { return a.AlignUp(Size) }

// IsWordAligned reports whether a is word aligned.
func (a Address) IsWordAligned() bool { return a.IsAligned(Size) }

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// ---------------------------------------------------------------------------
// Unsigned comparison
// ---------------------------------------------------------------------------

func (a Address) LessThan(b Address) bool     { return a < b }
func (a Address) LessEqual(b Address) bool    { return a <= b }
func (a Address) GreaterThan(b Address) bool  { return a > b }
func (a Address) GreaterEqual(b Address) bool { return a >= b }

// Compare returns -1, 0 or 1 using unsigned ordering.
func (a Address) Compare(b Address) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
