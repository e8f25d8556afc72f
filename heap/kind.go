package heap

import (
	"fmt"
	"strings"

	"github.com/chazu/boundary/word"
)

// Kind classifies a value by its storage shape.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindWord
	KindReference
)

// PrimitiveKinds lists the Java primitive kinds in function-table order.
var PrimitiveKinds = []Kind{
	KindBoolean, KindByte, KindChar, KindShort, KindInt, KindLong, KindFloat, KindDouble,
}

var kindNames = [...]string{
	KindVoid:      "Void",
	KindBoolean:   "Boolean",
	KindByte:      "Byte",
	KindChar:      "Char",
	KindShort:     "Short",
	KindInt:       "Int",
	KindLong:      "Long",
	KindFloat:     "Float",
	KindDouble:    "Double",
	KindWord:      "Word",
	KindReference: "Object",
}

var kindChars = [...]byte{
	KindVoid:      'V',
	KindBoolean:   'Z',
	KindByte:      'B',
	KindChar:      'C',
	KindShort:     'S',
	KindInt:       'I',
	KindLong:      'J',
	KindFloat:     'F',
	KindDouble:    'D',
	KindWord:      'W',
	KindReference: 'L',
}

// String returns the name used in function-table entries (Int, Object, ...).
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Char returns the descriptor character for k.
func (k Kind) Char() byte { return kindChars[k] }

// IsPrimitive reports whether k is one of the eight Java primitive kinds.
func (k Kind) IsPrimitive() bool { return k >= KindBoolean && k <= KindDouble }

// IsReference reports whether k holds an object reference.
func (k Kind) IsReference() bool { return k == KindReference }

// Size returns the storage size in bytes of one k element.
func (k Kind) Size() int {
	switch k {
	case KindBoolean, KindByte:
		return 1
	case KindChar, KindShort:
		return 2
	case KindInt, KindFloat:
		return 4
	case KindLong, KindDouble:
		return 8
	case KindWord:
		return word.Size
	case KindReference:
		return word.ReferenceSize
	}
	return 0
}

// KindOf returns the kind for a type descriptor's leading character.
func KindOf(c byte) (Kind, error) {
	switch c {
	case 'V':
		return KindVoid, nil
	case 'Z':
		return KindBoolean, nil
	case 'B':
		return KindByte, nil
	case 'C':
		return KindChar, nil
	case 'S':
		return KindShort, nil
	case 'I':
		return KindInt, nil
	case 'J':
		return KindLong, nil
	case 'F':
		return KindFloat, nil
	case 'D':
		return KindDouble, nil
	case 'W':
		return KindWord, nil
	case 'L', '[':
		return KindReference, nil
	}
	return KindVoid, fmt.Errorf("heap: invalid type descriptor character %q", c)
}

// ---------------------------------------------------------------------------
// Descriptors
// ---------------------------------------------------------------------------

// Signature is a parsed method descriptor.
type Signature struct {
	Descriptor string
	Params     []string
	ParamKinds []Kind
	Return     string
	ReturnKind Kind
}

// NumParams returns the number of declared parameters.
func (s Signature) NumParams() int { return len(s.Params) }

// ParseSignature parses a method descriptor such as "(IJLjava/lang/String;)V".
func ParseSignature(desc string) (Signature, error) {
	sig := Signature{Descriptor: desc}
	if len(desc) == 0 || desc[0] != '(' {
		return sig, fmt.Errorf("heap: method descriptor %q must start with '('", desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		end, err := scanType(desc, i)
		if err != nil {
			return sig, err
		}
		t := desc[i:end]
		if t == "V" {
			return sig, fmt.Errorf("heap: void parameter in %q", desc)
		}
		k, _ := KindOf(t[0])
		sig.Params = append(sig.Params, t)
		sig.ParamKinds = append(sig.ParamKinds, k)
		i = end
	}
	if i >= len(desc) {
		return sig, fmt.Errorf("heap: unterminated parameter list in %q", desc)
	}
	i++
	end, err := scanType(desc, i)
	if err != nil {
		return sig, err
	}
	if end != len(desc) {
		return sig, fmt.Errorf("heap: trailing characters in %q", desc)
	}
	sig.Return = desc[i:end]
	sig.ReturnKind, _ = KindOf(sig.Return[0])
	return sig, nil
}

// ParseField parses a single field descriptor.
func ParseField(desc string) (Kind, error) {
	end, err := scanType(desc, 0)
	if err != nil {
		return KindVoid, err
	}
	if end != len(desc) || desc == "V" {
		return KindVoid, fmt.Errorf("heap: invalid field descriptor %q", desc)
	}
	return KindOf(desc[0])
}

// scanType returns the end index of the type descriptor starting at i.
func scanType(desc string, i int) (int, error) {
	if i >= len(desc) {
		return 0, fmt.Errorf("heap: truncated descriptor %q", desc)
	}
	switch desc[i] {
	case 'V', 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D', 'W':
		return i + 1, nil
	case 'L':
		semi := strings.IndexByte(desc[i:], ';')
		if semi < 2 {
			return 0, fmt.Errorf("heap: malformed class type in %q", desc)
		}
		return i + semi + 1, nil
	case '[':
		end, err := scanType(desc, i+1)
		if err != nil {
			return 0, err
		}
		if desc[i+1] == 'V' {
			return 0, fmt.Errorf("heap: array of void in %q", desc)
		}
		return end, nil
	}
	return 0, fmt.Errorf("heap: invalid character %q at %d in %q", desc[i], i, desc)
}

// ClassNameOf converts a reference type descriptor to an internal class name:
// "Ljava/lang/String;" becomes "java/lang/String", array descriptors are
// returned unchanged.
func ClassNameOf(desc string) string {
	if len(desc) > 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		return desc[1 : len(desc)-1]
	}
	return desc
}
