package word

// Offset is a signed machine word used for relative displacements.
// Comparison and division follow two's-complement semantics.
type Offset int

func (o Offset) AsWord() Word       { return Word(o) }
func (o Offset) AsAddress() Address { return Address(o) }
func (o Offset) IsZero() bool       { return o == 0 }
func (o Offset) IsNegative() bool   { return o < 0 }
func (o Offset) ToLong() int64      { return int64(o) }
func (o Offset) ToInt() int32       { return int32(o) }
func (o Offset) String() string     { return Word(o).String() }

func (o Offset) Plus(n int) Offset           { return o + Offset(n) }
func (o Offset) PlusOffset(p Offset) Offset  { return o + p }
func (o Offset) Minus(n int) Offset          { return o - Offset(n) }
func (o Offset) MinusOffset(p Offset) Offset { return o - p }
func (o Offset) Times(n int) Offset          { return o * Offset(n) }
func (o Offset) Negate() Offset              { return -o }

// DividedBy performs signed division, truncating toward zero.
func (o Offset) DividedBy(n int) Offset {
	checkDivisor("divide", n)
	return o / Offset(n)
}

// Remainder performs signed remainder; the result has the sign of o.
func (o Offset) Remainder(n int) Offset {
	checkDivisor("remainder", n)
	return o % Offset(n)
}

func (o Offset) And(p Offset) Offset      { return o & p }
func (o Offset) Or(p Offset) Offset       { return o | p }
func (o Offset) Not() Offset              { return ^o }
func (o Offset) ShiftedLeft(n uint) Offset { return o << n }

// ShiftedRight is an arithmetic (sign-propagating) shift.
func (o Offset) ShiftedRight(n uint) Offset { return o >> n }

// RoundedUpBy rounds o up to the next multiple of n using the same
// remainder rule as Address.
func (o Offset) RoundedUpBy(n int) Offset {
	checkDivisor("round", n)
	rem := o % Offset(n)
	if rem == 0 {
		return o
	}
	if rem < 0 {
		return o - rem
	}
	return o + (Offset(n) - rem)
}

// IsAligned reports whether o is a multiple of n.
func (o Offset) IsAligned(n int) bool {
	checkDivisor("align", n)
	return o%Offset(n) == 0
}

func (o Offset) LessThan(p Offset) bool     { return o < p }
func (o Offset) LessEqual(p Offset) bool    { return o <= p }
func (o Offset) GreaterThan(p Offset) bool  { return o > p }
func (o Offset) GreaterEqual(p Offset) bool { return o >= p }
