package word

import "fmt"

// Tag is a small kind value carried in the low bits of a tagged word.
type Tag uint8

// Tagged is either a raw address or an address paired with a tag. The packed
// bit pattern only exists at the boundary (Pack / Unpack); everything else
// sees the untagged address and the tag separately.
type Tagged struct {
	addr   Address
	tag    Tag
	tagged bool
}

// Raw wraps an untagged address.
func Raw(a Address) Tagged { return Tagged{addr: a} }

// WithTag pairs an address with a tag.
func WithTag(a Address, t Tag) Tagged { return Tagged{addr: a, tag: t, tagged: true} }

// Address returns the untagged address.
func (t Tagged) Address() Address { return t.addr }

// Tag returns the tag and whether one is present.
func (t Tagged) Tag() (Tag, bool) { return t.tag, t.tagged }

// IsTagged reports whether t carries a tag.
func (t Tagged) IsTagged() bool { return t.tagged }

// Pack encodes t into a single word, placing the tag in the low tagBits bits
// and the address above them. Raw values encode with tag zero. Panics if the
// tag does not fit or the address would lose bits.
func (t Tagged) Pack(tagBits uint) Word {
	if uint64(t.tag) >= 1<<tagBits {
		panic(fmt.Sprintf("word: tag %d does not fit in %d bits", t.tag, tagBits))
	}
	if t.addr>>(uint(Bits)-tagBits) != 0 {
		panic(fmt.Sprintf("word: address %s too wide for %d tag bits", t.addr, tagBits))
	}
	return Word(t.addr<<tagBits) | Word(t.tag)
}

// PackAligned encodes t by or-ing the tag into the low bits of an address
// that is already aligned so those bits are zero.
func (t Tagged) PackAligned(tagBits uint) Word {
	mask := Address(1)<<tagBits - 1
	if t.addr&mask != 0 {
		panic(fmt.Sprintf("word: address %s not aligned for %d tag bits", t.addr, tagBits))
	}
	if uint64(t.tag) >= 1<<tagBits {
		panic(fmt.Sprintf("word: tag %d does not fit in %d bits", t.tag, tagBits))
	}
	return Word(t.addr) | Word(t.tag)
}

// Unpack decodes a word produced by Pack.
func Unpack(w Word, tagBits uint) Tagged {
	mask := Word(1)<<tagBits - 1
	return WithTag(Address(w>>tagBits), Tag(w&mask))
}

// UnpackAligned decodes a word produced by PackAligned.
func UnpackAligned(w Word, tagBits uint) Tagged {
	mask := Word(1)<<tagBits - 1
	return WithTag(Address(w&^mask), Tag(w&mask))
}

func (t Tagged) String() string {
	if !t.tagged {
		return "raw(" + t.addr.String() + ")"
	}
	return fmt.Sprintf("tagged(%s, %d)", t.addr, t.tag)
}
