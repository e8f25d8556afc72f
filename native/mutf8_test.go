package native

import (
	"bytes"
	"testing"
	"unicode/utf16"
)

func TestModifiedUTF8Encoding(t *testing.T) {
	tests := []struct {
		name string
		in   []uint16
		want []byte
	}{
		{"ascii", []uint16{'J', 'N', 'I'}, []byte("JNI")},
		{"nul", []uint16{0}, []byte{0xC0, 0x80}},
		{"two byte", []uint16{0xE9}, []byte{0xC3, 0xA9}},
		{"three byte", []uint16{0x20AC}, []byte{0xE2, 0x82, 0xAC}},
		{"surrogate pair", utf16.Encode([]rune{0x1F600}), []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encodeUTF(nil, tt.in)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("encodeUTF = % x, want % x", got, tt.want)
			}
			if n := utfLength(tt.in); n != len(tt.want) {
				t.Errorf("utfLength = %d, want %d", n, len(tt.want))
			}
			if bytes.IndexByte(got, 0) >= 0 {
				t.Error("encoding contains a zero byte")
			}
			back, err := decodeUTF(got)
			if err != nil {
				t.Fatalf("decodeUTF: %v", err)
			}
			if !equalChars(back, tt.in) {
				t.Errorf("decodeUTF = %x, want %x", back, tt.in)
			}
		})
	}
}

func TestDecodeStandardSupplementary(t *testing.T) {
	got, err := decodeUTF([]byte("x\U0001F600"))
	if err != nil {
		t.Fatal(err)
	}
	if want := []uint16{'x', 0xD83D, 0xDE00}; !equalChars(got, want) {
		t.Errorf("decodeUTF = %x, want %x", got, want)
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, in := range [][]byte{
		{0xC3},
		{0xE2, 0x82},
		{0xE2, 0x28, 0xAC},
		{0xF0, 0x9F, 0x98},
		{0x80},
		{0xFF},
	} {
		if _, err := decodeUTF(in); err == nil {
			t.Errorf("decodeUTF(% x) accepted malformed input", in)
		}
	}
}
