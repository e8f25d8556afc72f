// Package linker resolves native symbols for native methods. It drives the
// platform loader through three entry points supplied at startup, so the
// lookup function can be located without calling itself.
package linker

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/memory"
	"github.com/chazu/boundary/word"
)

var log = commonlog.GetLogger("boundary.linker")

// Names of the bootstrap symbols. Looking them up returns the addresses
// captured by Initialize.
const (
	SymOpen  = "dlopen"
	SymSym   = "dlsym"
	SymError = "dlerror"
	SymClose = "dlclose"
)

// Options configure a Linker.
type Options struct {
	Image       BootImage // pre-linked symbols, may be nil
	SearchPaths []string  // directories searched by LoadLibrary
	Trace       bool
}

// Linker loads native libraries and resolves symbols in them.
type Linker struct {
	inv     Invoker
	scratch *memory.Scratch
	opts    Options

	mu          sync.RWMutex
	ready       bool
	boot        Bootstrap
	closeFn     word.Address
	main        word.Address
	support     word.Address
	supportPath string
}

// New creates an uninitialized linker. Every C string it passes to the
// loader is built in scratch.
func New(inv Invoker, scratch *memory.Scratch, opts Options) *Linker {
	return &Linker{inv: inv, scratch: scratch, opts: opts}
}

// Initialize captures the loader entry points and opens the main program
// image. dlclose is then found through the main image.
func (l *Linker) Initialize(boot Bootstrap) error {
	if boot.Open == 0 || boot.Sym == 0 || boot.Error == 0 {
		return errors.New("linker: bootstrap entry points must be non-zero")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return errors.New("linker: already initialized")
	}
	l.boot = boot

	main := l.inv.Open(boot.Open, 0, RTLDLazy|RTLDGlobal)
	if main == 0 {
		return &LinkError{Op: "open", Name: "main program", Detail: l.lastError()}
	}
	closeFn, detail, err := l.sym(main, SymClose)
	if err != nil {
		return err
	}
	if closeFn == 0 {
		return &LinkError{Op: "lookup", Name: SymClose, Detail: detail}
	}
	l.main = main
	l.closeFn = closeFn
	l.ready = true
	if l.opts.Trace {
		log.Infof("initialized: main image %s, dlclose at %s", main, closeFn)
	}
	return nil
}

// IsInitialized reports whether Initialize has succeeded.
func (l *Linker) IsInitialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// Main returns the handle of the main program image.
func (l *Linker) Main() word.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.main
}

// Share marks the runtime as multithreaded; scratch use becomes exclusive.
func (l *Linker) Share() { l.scratch.Share() }

// Shutdown unmaps the scratch buffer. Loaded libraries stay open; every
// later call fails with ErrNotInitialized.
func (l *Linker) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = false
	return l.scratch.Close()
}

func (l *Linker) check() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.ready {
		return ErrNotInitialized
	}
	return nil
}

// lastError reads and clears the loader's diagnostic string.
func (l *Linker) lastError() string {
	p := l.inv.Error(l.boot.Error)
	if p.IsZero() {
		return ""
	}
	return string(p.ReadCString(0))
}

// sym looks name up in handle. A zero address with a nil error means the
// loader did not find it; detail is its diagnostic.
func (l *Linker) sym(handle word.Address, name string) (addr word.Address, detail string, err error) {
	err = l.scratch.WithCString(name, func(p word.Pointer) error {
		addr = l.inv.Sym(l.boot.Sym, handle, p)
		if addr == 0 {
			detail = l.lastError()
		}
		return nil
	})
	return addr, detail, err
}

// ---------------------------------------------------------------------------
// Libraries
// ---------------------------------------------------------------------------

// Load opens the shared library at path. An empty path returns the main
// program handle.
func (l *Linker) Load(path string) (word.Address, error) {
	if err := l.check(); err != nil {
		return 0, err
	}
	if path == "" {
		return l.Main(), nil
	}
	var h word.Address
	var detail string
	err := l.scratch.WithCString(path, func(p word.Pointer) error {
		h = l.inv.Open(l.boot.Open, p, RTLDLazy)
		if h == 0 {
			detail = l.lastError()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if h == 0 {
		return 0, &LinkError{Op: "open", Name: path, Detail: detail}
	}
	if l.opts.Trace {
		log.Infof("opened %s as %s", path, h)
	}
	return h, nil
}

// Close releases a library opened by Load. Closing the main image or a
// zero handle does nothing.
func (l *Linker) Close(handle word.Address) error {
	if err := l.check(); err != nil {
		return err
	}
	if handle == 0 || handle == l.Main() {
		return nil
	}
	if rc := l.inv.Close(l.closeFn, handle); rc != 0 {
		return &LinkError{Op: "close", Name: handle.String(), Detail: l.lastError()}
	}
	if l.opts.Trace {
		log.Infof("closed %s", handle)
	}
	return nil
}

// LookupSymbol returns the address of name in the library handle. A zero
// handle searches the main program image. The bootstrap symbol names always
// resolve to the captured entry points.
func (l *Linker) LookupSymbol(handle word.Address, name string) (word.Address, error) {
	if err := l.check(); err != nil {
		return 0, err
	}
	switch name {
	case SymOpen:
		return l.boot.Open, nil
	case SymSym:
		return l.boot.Sym, nil
	case SymError:
		return l.boot.Error, nil
	}
	if handle == 0 {
		handle = l.Main()
	}
	addr, detail, err := l.sym(handle, name)
	if err != nil {
		return 0, err
	}
	if addr == 0 {
		return 0, &LinkError{Op: "lookup", Name: name, Detail: detail}
	}
	return addr, nil
}

// LoadSupportLibrary opens the library searched for boot-loader natives
// that are not in the base image.
func (l *Linker) LoadSupportLibrary(path string) error {
	h, err := l.Load(path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.support, l.supportPath = h, path
	l.mu.Unlock()
	return nil
}

// SupportLibrary returns the support library handle and path, if loaded.
func (l *Linker) SupportLibrary() (word.Address, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.support, l.supportPath
}

// LoadLibrary loads a library for loader, as System.loadLibrary does. A
// bare name is mapped to a file name and searched for in the configured
// paths, then left to the platform loader's own search.
func (l *Linker) LoadLibrary(loader *heap.ClassLoader, name string) (heap.Library, error) {
	path := name
	if !strings.ContainsRune(name, filepath.Separator) {
		if found, ok := FindLibrary(name, l.opts.SearchPaths); ok {
			path = found
		} else {
			path = MapLibraryName(name)
		}
	}
	for _, lib := range loader.Libraries() {
		if lib.Path == path {
			return lib, nil
		}
	}
	h, err := l.Load(path)
	if err != nil {
		return heap.Library{}, err
	}
	lib := heap.Library{Handle: h, Path: path}
	loader.AddLibrary(lib)
	return lib, nil
}

// ---------------------------------------------------------------------------
// Native method resolution
// ---------------------------------------------------------------------------

// Lookup finds symbol for the native method m. The search order is the
// base image, the support library (boot loader methods only), the libraries
// of m's defining loader, then the system loader's libraries and the main
// image. The first hit wins.
func (l *Linker) Lookup(m *heap.Method, symbol string) (word.Address, error) {
	if err := l.check(); err != nil {
		return 0, err
	}
	if l.opts.Image != nil {
		if addr, ok := l.opts.Image.Lookup(symbol); ok {
			l.traceHit(symbol, "base image", addr)
			return addr, nil
		}
	}

	var loader *heap.ClassLoader
	if m != nil && m.Holder != nil {
		loader = m.Holder.Loader
	}

	if loader != nil && loader.IsBoot() {
		if support, path := l.SupportLibrary(); support != 0 {
			if addr, err := l.find(support, symbol); err != nil || addr != 0 {
				l.traceHit(symbol, path, addr)
				return addr, err
			}
		}
	}

	if loader != nil {
		for _, lib := range loader.Libraries() {
			if addr, err := l.find(lib.Handle, symbol); err != nil || addr != 0 {
				l.traceHit(symbol, lib.Path, addr)
				return addr, err
			}
		}
	}

	if loader != nil {
		if system := loader.Universe().System; system != loader {
			for _, lib := range system.Libraries() {
				if addr, err := l.find(lib.Handle, symbol); err != nil || addr != 0 {
					l.traceHit(symbol, lib.Path, addr)
					return addr, err
				}
			}
		}
	}
	if addr, err := l.find(l.Main(), symbol); err != nil || addr != 0 {
		l.traceHit(symbol, "main program", addr)
		return addr, err
	}

	e := &UnresolvedSymbolError{Symbol: symbol}
	if m != nil {
		e.Method = m.String()
	}
	return 0, e
}

func (l *Linker) find(handle word.Address, symbol string) (word.Address, error) {
	addr, _, err := l.sym(handle, symbol)
	return addr, err
}

func (l *Linker) traceHit(symbol, where string, addr word.Address) {
	if l.opts.Trace && addr != 0 {
		log.Debugf("resolved %s in %s at %s", symbol, where, addr)
	}
}

// Link resolves and binds the native function of m, trying the short
// mangled name before the long one.
func (l *Linker) Link(m *heap.Method) (word.Address, error) {
	if !m.IsNative() {
		return 0, fmt.Errorf("linker: %s is not native", m)
	}
	if addr := m.NativeEntry(); addr != 0 {
		return addr, nil
	}
	short := MangleName(m.Holder.Name, m.Name, m.Descriptor, false)
	addr, err := l.Lookup(m, short)
	var unresolved *UnresolvedSymbolError
	if errors.As(err, &unresolved) {
		addr, err = l.Lookup(m, MangleName(m.Holder.Name, m.Name, m.Descriptor, true))
	}
	if err != nil {
		return 0, err
	}
	if err := m.Bind(addr); err != nil {
		return 0, err
	}
	if l.opts.Trace {
		log.Infof("linked %s to %s", m, addr)
	}
	return addr, nil
}
