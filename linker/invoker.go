package linker

import "github.com/chazu/boundary/word"

// Flags passed to the platform open function.
const (
	RTLDLazy   = 0x00001
	RTLDNow    = 0x00002
	RTLDGlobal = 0x00100
)

// Bootstrap holds the addresses of the platform loader entry points. They
// are supplied by native startup code before any symbol can be resolved.
type Bootstrap struct {
	Open  word.Address // dlopen
	Sym   word.Address // dlsym
	Error word.Address // dlerror
}

// Invoker calls loader entry points by address. C-string arguments and
// results are passed as pointers to NUL-terminated bytes.
type Invoker interface {
	// Open calls fn(path, flags). A zero path opens the main program image.
	Open(fn word.Address, path word.Pointer, flags int) word.Address
	// Sym calls fn(handle, name).
	Sym(fn word.Address, handle word.Address, name word.Pointer) word.Address
	// Error calls fn() and returns the diagnostic string, or zero if none.
	Error(fn word.Address) word.Pointer
	// Close calls fn(handle) and returns its status.
	Close(fn word.Address, handle word.Address) int
}
