package native

import "fmt"

// Modified UTF-8 is the string encoding of the function table: NUL is
// encoded as two bytes and supplementary characters as two 3-byte surrogate
// encodings, so no encoded string contains a zero byte.

// utfLength returns the modified UTF-8 length of chars.
func utfLength(chars []uint16) int {
	n := 0
	for _, c := range chars {
		switch {
		case c != 0 && c < 0x80:
			n++
		case c < 0x800:
			n += 2
		default:
			n += 3
		}
	}
	return n
}

// encodeUTF appends the modified UTF-8 encoding of chars to dst.
func encodeUTF(dst []byte, chars []uint16) []byte {
	for _, c := range chars {
		switch {
		case c != 0 && c < 0x80:
			dst = append(dst, byte(c))
		case c < 0x800:
			dst = append(dst, 0xC0|byte(c>>6), 0x80|byte(c&0x3F))
		default:
			dst = append(dst, 0xE0|byte(c>>12), 0x80|byte((c>>6)&0x3F), 0x80|byte(c&0x3F))
		}
	}
	return dst
}

// decodeUTF decodes modified UTF-8. Standard 4-byte sequences are accepted
// and produce a surrogate pair.
func decodeUTF(b []byte) ([]uint16, error) {
	out := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			out = append(out, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return nil, fmt.Errorf("malformed modified UTF-8 at byte %d", i)
			}
			out = append(out, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return nil, fmt.Errorf("malformed modified UTF-8 at byte %d", i)
			}
			out = append(out, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		case c&0xF8 == 0xF0:
			if i+3 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 || b[i+3]&0xC0 != 0x80 {
				return nil, fmt.Errorf("malformed modified UTF-8 at byte %d", i)
			}
			r := rune(c&0x07)<<18 | rune(b[i+1]&0x3F)<<12 | rune(b[i+2]&0x3F)<<6 | rune(b[i+3]&0x3F)
			r -= 0x10000
			out = append(out, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
			i += 4
		default:
			return nil, fmt.Errorf("malformed modified UTF-8 at byte %d", i)
		}
	}
	return out, nil
}
