package native

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// layoutEncMode encodes layouts canonically so equal layouts produce equal
// bytes.
var layoutEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("native: failed to create CBOR enc mode: %v", err))
	}
	layoutEncMode = em
}

// MarshalLayout serializes a Layout to canonical CBOR.
func MarshalLayout(l *Layout) ([]byte, error) {
	return layoutEncMode.Marshal(l)
}

// UnmarshalLayout deserializes a Layout from CBOR bytes.
func UnmarshalLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := cbor.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("native: unmarshal layout: %w", err)
	}
	return &l, nil
}

// CheckLayout reports the first difference between a layout native code was
// built against and the running one.
func CheckLayout(want, have *Layout) error {
	if want.Version > have.Version {
		return fmt.Errorf("native: layout version %#x is newer than runtime %#x", want.Version, have.Version)
	}
	if len(want.Slots) > len(have.Slots) {
		return fmt.Errorf("native: layout has %d slots, runtime has %d", len(want.Slots), len(have.Slots))
	}
	for i, s := range want.Slots {
		h := have.Slots[i]
		if s.Index != h.Index || s.Name != h.Name {
			return fmt.Errorf("native: slot %d is %s, runtime has %s", i, s.Name, h.Name)
		}
	}
	return nil
}
