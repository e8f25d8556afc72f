package linker

import (
	"fmt"
	"sync"

	"github.com/chazu/boundary/word"
)

// Fake is an in-memory platform loader. Libraries are registered with
// AddLibrary and "opened" by path; symbols resolve to the addresses they
// were registered with. It behaves like the real loader as far as the
// Linker can observe, including the sticky error string.
type Fake struct {
	mu       sync.Mutex
	main     map[string]word.Address
	libs     map[string]map[string]word.Address
	open     map[word.Address]string
	nextH    word.Address
	errText  []byte
	closeErr map[string]bool

	Calls struct {
		Open, Sym, Error, Close int
	}
}

const (
	fakeOpen  word.Address = 0xd1000
	fakeSym   word.Address = 0xd1010
	fakeError word.Address = 0xd1020
	fakeClose word.Address = 0xd1030
	fakeMain  word.Address = 0x10000
)

// NewFake creates a loader whose main image exports dlclose plus the given
// symbols.
func NewFake(mainSymbols map[string]word.Address) *Fake {
	f := &Fake{
		main:     map[string]word.Address{"dlclose": fakeClose},
		libs:     make(map[string]map[string]word.Address),
		open:     make(map[word.Address]string),
		nextH:    fakeMain,
		closeErr: make(map[string]bool),
	}
	for k, v := range mainSymbols {
		f.main[k] = v
	}
	return f
}

// Bootstrap returns the fake entry-point addresses.
func (f *Fake) Bootstrap() Bootstrap {
	return Bootstrap{Open: fakeOpen, Sym: fakeSym, Error: fakeError}
}

// AddLibrary registers a library file at path.
func (f *Fake) AddLibrary(path string, symbols map[string]word.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.libs[path] = symbols
}

// FailClose makes closing the library at path report failure.
func (f *Fake) FailClose(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr[path] = true
}

// IsOpen reports whether a handle is currently open.
func (f *Fake) IsOpen(h word.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.open[h]
	return ok
}

func (f *Fake) setError(format string, args ...any) {
	// The text is only read back by Go code and stays reachable through f.
	f.errText = append([]byte(fmt.Sprintf(format, args...)), 0)
}

func (f *Fake) Open(fn word.Address, path word.Pointer, flags int) word.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.Open++
	if fn != fakeOpen {
		panic(fmt.Sprintf("linker: fake open called through %s", fn))
	}
	if path.IsZero() {
		f.open[fakeMain] = ""
		return fakeMain
	}
	p := string(path.ReadCString(0))
	if _, ok := f.libs[p]; !ok {
		f.setError("%s: cannot open shared object file: No such file or directory", p)
		return 0
	}
	for h, open := range f.open {
		if open == p {
			return h
		}
	}
	f.nextH += 0x1000
	f.open[f.nextH] = p
	return f.nextH
}

func (f *Fake) Sym(fn word.Address, handle word.Address, name word.Pointer) word.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.Sym++
	if fn != fakeSym {
		panic(fmt.Sprintf("linker: fake dlsym called through %s", fn))
	}
	n := string(name.ReadCString(0))
	path, ok := f.open[handle]
	if !ok {
		f.setError("invalid handle %s", handle)
		return 0
	}
	syms := f.main
	if path != "" {
		syms = f.libs[path]
	}
	if a, ok := syms[n]; ok {
		return a
	}
	if path == "" {
		path = "main program"
	}
	f.setError("%s: undefined symbol: %s", path, n)
	return 0
}

func (f *Fake) Error(fn word.Address) word.Pointer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.Error++
	if f.errText == nil {
		return 0
	}
	// Cleared on read; the bytes stay pinned until the next error.
	p := word.PointerTo(&f.errText[0])
	f.errText = nil
	return p
}

func (f *Fake) Close(fn word.Address, handle word.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls.Close++
	if fn != fakeClose {
		panic(fmt.Sprintf("linker: fake dlclose called through %s", fn))
	}
	path, ok := f.open[handle]
	if !ok {
		f.setError("invalid handle %s", handle)
		return -1
	}
	if f.closeErr[path] {
		f.setError("%s: library is still in use", path)
		return -1
	}
	if handle != fakeMain {
		delete(f.open, handle)
	}
	return 0
}
