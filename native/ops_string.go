package native

import (
	"encoding/binary"

	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

func registerStringOps(ops opTable) {
	ops.add("NewString", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return handleWord(e.NewString(args.ptr(0), args.i32(1)))
	})
	ops.add("GetStringLength", func(e *Env, a []word.Word) word.Word {
		return intWord(e.GetStringLength(argv(a).handle(0)))
	})
	ops.add("GetStringChars", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return e.GetStringChars(args.handle(0), args.ptr(1)).AsWord()
	})
	ops.add("ReleaseStringChars", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		e.ReleaseStringChars(args.handle(0), args.ptr(1))
		return 0
	})
	ops.add("NewStringUTF", func(e *Env, a []word.Word) word.Word {
		return handleWord(e.NewStringUTF(argv(a).ptr(0)))
	})
	ops.add("GetStringUTFLength", func(e *Env, a []word.Word) word.Word {
		return intWord(e.GetStringUTFLength(argv(a).handle(0)))
	})
	ops.add("GetStringUTFChars", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return e.GetStringUTFChars(args.handle(0), args.ptr(1)).AsWord()
	})
	ops.add("ReleaseStringUTFChars", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		e.ReleaseStringUTFChars(args.handle(0), args.ptr(1))
		return 0
	})
	ops.add("GetStringRegion", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		e.GetStringRegion(args.handle(0), args.i32(1), args.i32(2), args.ptr(3))
		return 0
	})
	ops.add("GetStringUTFRegion", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		e.GetStringUTFRegion(args.handle(0), args.i32(1), args.i32(2), args.ptr(3))
		return 0
	})
	ops.add("GetStringCritical", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return e.GetStringCritical(args.handle(0), args.ptr(1)).AsWord()
	})
	ops.add("ReleaseStringCritical", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		e.ReleaseStringCritical(args.handle(0), args.ptr(1))
		return 0
	})
}

func (e *Env) stringOf(h handles.Handle) (*heap.Object, error) {
	o, err := e.nonNull(h, "string")
	if err != nil {
		return nil, err
	}
	if !o.Class().IsString() {
		u := e.vm.universe
		return nil, u.Throw(u.IllegalArgumentException, "%s is not a string", o.Class().SourceName())
	}
	return o, nil
}

// copyOut places a copy of b in native memory.
func (e *Env) copyOut(b []byte) (word.Pointer, error) {
	return e.vm.mem.AllocateBytes(b)
}

func (e *Env) free(p word.Pointer) error {
	if p.IsZero() {
		return nil
	}
	return e.vm.mem.Free(p)
}

func charBytes(chars []uint16) []byte {
	b := make([]byte, 2*len(chars)+2)
	for i, c := range chars {
		binary.NativeEndian.PutUint16(b[2*i:], c)
	}
	return b
}

func stringBounds(u *heap.Universe, s *heap.Object, start, n int32) error {
	if start < 0 || n < 0 || int(start)+int(n) > s.Length() {
		return u.Throw(u.StringIndexOutOfBoundsException, "region %d+%d out of bounds for length %d", start, n, s.Length())
	}
	return nil
}

// NewString creates a string from n UTF-16 units at chars.
func (e *Env) NewString(chars word.Pointer, n int32) handles.Handle {
	return upcall(e, "NewString", handles.Null, func() (handles.Handle, error) {
		u := e.vm.universe
		if n < 0 {
			return handles.Null, u.Throw(u.NegativeArraySizeException, "%d", n)
		}
		if n > 0 && chars.IsZero() {
			return handles.Null, u.Throw(u.NullPointerException, "characters are null")
		}
		text := make([]uint16, n)
		for i := range text {
			text[i] = chars.GetChar(0, i)
		}
		return e.NewLocal(u.NewStringUTF16(text))
	})
}

// GetStringLength returns the length of a string in UTF-16 units.
func (e *Env) GetStringLength(str handles.Handle) int32 {
	return upcall(e, "GetStringLength", int32(0), func() (int32, error) {
		s, err := e.stringOf(str)
		if err != nil {
			return 0, err
		}
		return int32(s.Length()), nil
	})
}

// GetStringChars returns a copy of a string's UTF-16 units. The copy is
// released by ReleaseStringChars.
func (e *Env) GetStringChars(str handles.Handle, isCopy word.Pointer) word.Pointer {
	return upcall(e, "GetStringChars", word.Pointer(0), func() (word.Pointer, error) {
		s, err := e.stringOf(str)
		if err != nil {
			return 0, err
		}
		p, err := e.copyOut(charBytes(s.Chars()))
		if err != nil {
			return 0, err
		}
		setIsCopy(isCopy, true)
		return p, nil
	})
}

// ReleaseStringChars frees a copy returned by GetStringChars.
func (e *Env) ReleaseStringChars(str handles.Handle, chars word.Pointer) {
	upcallVoid(e, "ReleaseStringChars", func() error {
		return e.free(chars)
	})
}

// NewStringUTF creates a string from NUL-terminated modified UTF-8. A null
// pointer yields the null handle.
func (e *Env) NewStringUTF(utf word.Pointer) handles.Handle {
	return upcall(e, "NewStringUTF", handles.Null, func() (handles.Handle, error) {
		if utf.IsZero() {
			return handles.Null, nil
		}
		chars, err := decodeUTF(utf.ReadCString(0))
		if err != nil {
			u := e.vm.universe
			return handles.Null, u.Throw(u.IllegalArgumentException, "%v", err)
		}
		return e.NewLocal(e.vm.universe.NewStringUTF16(chars))
	})
}

// GetStringUTFLength returns the modified UTF-8 length of a string, without
// the terminator.
func (e *Env) GetStringUTFLength(str handles.Handle) int32 {
	return upcall(e, "GetStringUTFLength", int32(0), func() (int32, error) {
		s, err := e.stringOf(str)
		if err != nil {
			return 0, err
		}
		return int32(utfLength(s.Chars())), nil
	})
}

// GetStringUTFChars returns a NUL-terminated modified UTF-8 copy of a
// string.
func (e *Env) GetStringUTFChars(str handles.Handle, isCopy word.Pointer) word.Pointer {
	return upcall(e, "GetStringUTFChars", word.Pointer(0), func() (word.Pointer, error) {
		s, err := e.stringOf(str)
		if err != nil {
			return 0, err
		}
		b := encodeUTF(make([]byte, 0, utfLength(s.Chars())+1), s.Chars())
		p, err := e.copyOut(append(b, 0))
		if err != nil {
			return 0, err
		}
		setIsCopy(isCopy, true)
		return p, nil
	})
}

// ReleaseStringUTFChars frees a copy returned by GetStringUTFChars.
func (e *Env) ReleaseStringUTFChars(str handles.Handle, utf word.Pointer) {
	upcallVoid(e, "ReleaseStringUTFChars", func() error {
		return e.free(utf)
	})
}

// GetStringRegion copies n UTF-16 units starting at start into buf.
func (e *Env) GetStringRegion(str handles.Handle, start, n int32, buf word.Pointer) {
	upcallVoid(e, "GetStringRegion", func() error {
		s, err := e.stringOf(str)
		if err != nil {
			return err
		}
		if err := stringBounds(e.vm.universe, s, start, n); err != nil {
			return err
		}
		for i, c := range s.Chars()[start : start+n] {
			buf.SetChar(0, i, c)
		}
		return nil
	})
}

// GetStringUTFRegion encodes n UTF-16 units starting at start into buf as
// modified UTF-8, followed by a NUL.
func (e *Env) GetStringUTFRegion(str handles.Handle, start, n int32, buf word.Pointer) {
	upcallVoid(e, "GetStringUTFRegion", func() error {
		s, err := e.stringOf(str)
		if err != nil {
			return err
		}
		if err := stringBounds(e.vm.universe, s, start, n); err != nil {
			return err
		}
		buf.WriteCString(0, encodeUTF(nil, s.Chars()[start:start+n]))
		return nil
	})
}

// GetStringCritical returns a copy of a string's UTF-16 units. Strings are
// immutable, so a copy is as good as direct access.
func (e *Env) GetStringCritical(str handles.Handle, isCopy word.Pointer) word.Pointer {
	return upcall(e, "GetStringCritical", word.Pointer(0), func() (word.Pointer, error) {
		s, err := e.stringOf(str)
		if err != nil {
			return 0, err
		}
		p, err := e.copyOut(charBytes(s.Chars()))
		if err != nil {
			return 0, err
		}
		setIsCopy(isCopy, true)
		return p, nil
	})
}

// ReleaseStringCritical frees a copy returned by GetStringCritical.
func (e *Env) ReleaseStringCritical(str handles.Handle, chars word.Pointer) {
	upcallVoid(e, "ReleaseStringCritical", func() error {
		return e.free(chars)
	})
}
