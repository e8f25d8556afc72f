package native

import "github.com/chazu/boundary/heap"

// Status codes returned by status-returning operations.
const (
	OK        = 0
	Err       = -1 // unknown error; the sentinel for status results
	EDetached = -2 // thread not attached
	EVersion  = -3
	ENoMem    = -4
	EExist    = -5
	EInval    = -6
)

// Release modes for Release<Kind>ArrayElements and the critical variants.
const (
	ReleaseCopyFree = 0 // copy back and free the buffer
	Commit          = 1 // copy back, keep the buffer
	Abort           = 2 // free the buffer without copying back
)

// Reference types reported by GetObjectRefType.
const (
	InvalidRefType    = 0
	LocalRefType      = 1
	GlobalRefType     = 2
	WeakGlobalRefType = 3
)

// Interface versions reported by GetVersion.
const (
	Version1_1 = 0x00010001
	Version1_2 = 0x00010002
	Version1_4 = 0x00010004
	Version1_6 = 0x00010006
	Version1_8 = 0x00010008
)

// JValueSize is the stride of a jvalue argument array: every slot is as wide
// as the widest primitive.
const JValueSize = 8

// Kind codes exchanged with native bootstrap code by GetKindsOfArguments.
const (
	KindCodeByte byte = iota
	KindCodeBoolean
	KindCodeShort
	KindCodeChar
	KindCodeInt
	KindCodeFloat
	KindCodeLong
	KindCodeDouble
	KindCodeWord
	KindCodeReference
	KindCodeVoid
)

var kindCodes = map[heap.Kind]byte{
	heap.KindByte:      KindCodeByte,
	heap.KindBoolean:   KindCodeBoolean,
	heap.KindShort:     KindCodeShort,
	heap.KindChar:      KindCodeChar,
	heap.KindInt:       KindCodeInt,
	heap.KindFloat:     KindCodeFloat,
	heap.KindLong:      KindCodeLong,
	heap.KindDouble:    KindCodeDouble,
	heap.KindWord:      KindCodeWord,
	heap.KindReference: KindCodeReference,
	heap.KindVoid:      KindCodeVoid,
}

// KindCode returns the wire code of k.
func KindCode(k heap.Kind) byte { return kindCodes[k] }

// KindOfCode is the inverse of KindCode.
func KindOfCode(c byte) (heap.Kind, bool) {
	for k, code := range kindCodes {
		if code == c {
			return k, true
		}
	}
	return heap.KindVoid, false
}
