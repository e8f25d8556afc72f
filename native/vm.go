// Package native implements the boundary native code crosses to reach the
// managed heap: the function table, the per-thread environment, the
// transition protocol that wraps every table operation, and the downcall
// path managed code takes into bound native methods.
package native

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sys/unix"

	"github.com/chazu/boundary/config"
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/linker"
	"github.com/chazu/boundary/memory"
	"github.com/chazu/boundary/word"
)

var log = commonlog.GetLogger("boundary.native")

// NativeSource supplies the entries of the native-only slots.
type NativeSource func(vm *VM) (map[string]word.Address, error)

// VM is one managed runtime as seen from native code.
type VM struct {
	cfg       *config.Config
	universe  *heap.Universe
	linker    *linker.Linker
	globals   *handles.Globals
	code      *CodeSpace
	mem       *memory.Heap
	table     *Table
	collector *heap.Collector
	cell      word.Pointer // the JavaVM pointer native code receives
	diag      io.Writer

	// emptyCritical stands in for the elements of empty arrays so critical
	// access never returns a null pointer on success.
	emptyCritical word.Pointer

	// Threads executing managed code hold safepoint for reading; Collect
	// takes it for writing.
	safepoint sync.RWMutex

	mu      sync.Mutex
	threads map[int]*Env

	// critical counts the pins GetPrimitiveArrayCritical holds per array.
	criticalMu sync.Mutex
	critical   map[*heap.Object]int
	closed     bool
}

// NewVM builds the function table and installs the VM as u's native
// invoker. A nil cfg means config.Default(); a nil natives means
// GoBootstrap. l may be nil when no libraries will be loaded.
func NewVM(cfg *config.Config, u *heap.Universe, l *linker.Linker, natives NativeSource) (*VM, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if natives == nil {
		natives = GoBootstrap
	}
	vm := &VM{
		cfg:       cfg,
		universe:  u,
		linker:    l,
		code:      NewCodeSpace(),
		mem:       memory.NewHeap(0),
		collector: heap.NewCollector(u),
		threads:   make(map[int]*Env),
		critical:  make(map[*heap.Object]int),
		diag:      os.Stderr,
		globals: handles.NewGlobals(u.Weak, handles.GlobalsConfig{
			Capacity: cfg.Handles.GlobalCapacity,
			Max:      cfg.Handles.MaxGlobal,
		}),
	}
	fail := func(err error) (*VM, error) {
		vm.code.Close()
		vm.mem.Close()
		return nil, err
	}
	cell, err := vm.mem.Allocate(word.Size)
	if err != nil {
		return fail(err)
	}
	vm.cell = cell
	if vm.emptyCritical, err = vm.mem.Allocate(word.Size); err != nil {
		return fail(err)
	}

	managed, err := vm.registerManaged()
	if err != nil {
		return fail(err)
	}
	nat, err := natives(vm)
	if err != nil {
		return fail(fmt.Errorf("native: bootstrap entries: %w", err))
	}
	vm.table = BuildTable(vm.mem, managed, nat)
	cell.WriteWord(0, vm.table.Base().AsWord())
	u.NativeInvoker = vm.invokeNative

	log.Infof("function table ready: %d slots, version %#x", vm.table.Len(), cfg.VM.Version)
	return vm, nil
}

// registerManaged gives every managed operation a code address.
func (vm *VM) registerManaged() (map[string]word.Address, error) {
	ops := managedOps()
	out := make(map[string]word.Address, len(ops))
	for _, name := range slotNames {
		fn, ok := ops[name]
		if !ok {
			continue
		}
		addr, err := vm.code.Register(name, fn)
		if err != nil {
			return nil, err
		}
		out[name] = addr
	}
	return out, nil
}

// Config returns the runtime configuration.
func (vm *VM) Config() *config.Config { return vm.cfg }

// Universe returns the managed heap the VM operates on.
func (vm *VM) Universe() *heap.Universe { return vm.universe }

// Linker returns the dynamic linker, or nil.
func (vm *VM) Linker() *linker.Linker { return vm.linker }

// Globals returns the shared GLOBAL and WEAK_GLOBAL pools.
func (vm *VM) Globals() *handles.Globals { return vm.globals }

// Code returns the code space holding the VM's Go entry points.
func (vm *VM) Code() *CodeSpace { return vm.code }

// Table returns the function table.
func (vm *VM) Table() *Table { return vm.table }

// Pointer returns the address native code receives as its VM pointer.
func (vm *VM) Pointer() word.Pointer { return vm.cell }

// SetDiagnosticOutput sets where ExceptionDescribe writes. The default is
// standard error.
func (vm *VM) SetDiagnosticOutput(w io.Writer) { vm.diag = w }

// Version returns the interface version GetVersion reports.
func (vm *VM) Version() int32 { return int32(vm.cfg.VM.Version) }

// Layout returns the layout of the running table.
func (vm *VM) Layout() *Layout { return vm.table.Layout(vm.Version()) }

// ---------------------------------------------------------------------------
// Threads
// ---------------------------------------------------------------------------

// AttachCurrentThread locks the calling goroutine to its OS thread and gives
// the thread an environment. Attaching an attached thread returns its
// existing environment.
func (vm *VM) AttachCurrentThread(name string) (*Env, int) {
	runtime.LockOSThread()
	tid := unix.Gettid()

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if e, ok := vm.threads[tid]; ok {
		runtime.UnlockOSThread()
		return e, OK
	}
	e, err := newEnv(vm, name, tid)
	if err != nil {
		runtime.UnlockOSThread()
		log.Errorf("attach %q: %v", name, err)
		return nil, ENoMem
	}
	vm.threads[tid] = e
	if len(vm.threads) > 1 && vm.linker != nil {
		vm.linker.Share()
	}
	log.Debugf("attached thread %q (tid %d)", name, tid)
	return e, OK
}

// DetachCurrentThread removes e. A thread still inside a native method
// cannot detach.
func (vm *VM) DetachCurrentThread(e *Env) int {
	if e == nil || e.detached {
		return EDetached
	}
	if e.anchor == nil || e.anchor.Prev != nil {
		return Err
	}
	vm.mu.Lock()
	delete(vm.threads, e.tid)
	vm.mu.Unlock()

	vm.release(e)
	runtime.UnlockOSThread()
	log.Debugf("detached thread %q (tid %d)", e.name, e.tid)
	return OK
}

// release drops e's per-thread state and frees its environment cell.
func (vm *VM) release(e *Env) {
	if err := vm.mem.Free(e.cell); err != nil {
		log.Errorf("detach %q: free env cell: %v", e.name, err)
	}
	e.cell = 0
	e.anchor = nil
	e.pending = nil
	e.detached = true
}

// Close tears the VM down. Threads still attached are detached, arrays
// left pinned by critical access are unpinned, and the function table, the
// VM and thread cells and every code address are freed. A linker passed
// to NewVM is shut down. Close must not race with threads using the VM,
// and the VM and its pointers must not be used afterwards.
func (vm *VM) Close() error {
	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return nil
	}
	vm.closed = true
	threads := vm.threads
	vm.threads = make(map[int]*Env)
	vm.mu.Unlock()

	self := unix.Gettid()
	for tid, e := range threads {
		vm.release(e)
		if tid == self {
			runtime.UnlockOSThread()
		}
	}

	vm.criticalMu.Lock()
	for o, n := range vm.critical {
		for range n {
			o.Unpin()
		}
	}
	clear(vm.critical)
	vm.criticalMu.Unlock()

	vm.universe.NativeInvoker = nil
	vm.code.Close()
	if n := vm.mem.Close(); n > 0 {
		log.Debugf("close: released %d native blocks", n)
	}

	var errs []error
	if vm.linker != nil {
		if err := vm.linker.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("native: shut down linker: %w", err))
		}
	}
	log.Infof("closed VM (%d threads detached)", len(threads))
	return errors.Join(errs...)
}

// pinCritical pins o for critical access and counts the pin.
func (vm *VM) pinCritical(o *heap.Object) word.Pointer {
	vm.criticalMu.Lock()
	defer vm.criticalMu.Unlock()
	vm.critical[o]++
	return o.Pin()
}

// unpinCritical releases one critical pin of o. It reports false when o
// holds none.
func (vm *VM) unpinCritical(o *heap.Object) bool {
	vm.criticalMu.Lock()
	defer vm.criticalMu.Unlock()
	n := vm.critical[o]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(vm.critical, o)
	} else {
		vm.critical[o] = n - 1
	}
	o.Unpin()
	return true
}

// GetEnv returns the environment of the calling thread.
func (vm *VM) GetEnv(version int32) (*Env, int) {
	if version > vm.Version() {
		return nil, EVersion
	}
	e := vm.CurrentEnv()
	if e == nil {
		return nil, EDetached
	}
	return e, OK
}

// CurrentEnv returns the environment of the calling thread, or nil.
func (vm *VM) CurrentEnv() *Env {
	tid := unix.Gettid()
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.threads[tid]
}

// Threads returns the attached environments.
func (vm *VM) Threads() []*Env {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]*Env, 0, len(vm.threads))
	for _, e := range vm.threads {
		out = append(out, e)
	}
	return out
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// Collect stops every thread at its next transition and runs one
// collection over all local pools, the global pool and class statics.
// Weak global handles to unreachable objects resolve to null afterwards.
// Collect must not be called from a thread executing managed code.
func (vm *VM) Collect() *heap.CollectStats {
	vm.safepoint.Lock()
	defer vm.safepoint.Unlock()

	roots := []heap.RootSet{vm.globals}
	for _, e := range vm.Threads() {
		roots = append(roots, e)
	}
	stats := vm.collector.Collect(roots...)
	log.Debugf("collection: %d roots, %d marked, %d weak cleared in %s",
		stats.Roots, stats.Marked, stats.WeakCleared, stats.Duration)
	return stats
}

// ---------------------------------------------------------------------------
// Native methods
// ---------------------------------------------------------------------------

// RegisterNative binds a Go function to a native method and returns the
// address it was given.
func (vm *VM) RegisterNative(m *heap.Method, fn Func) (word.Address, error) {
	if !m.IsNative() {
		u := vm.universe
		return 0, u.Throw(u.NoSuchMethodError, "%s is not native", m)
	}
	addr, err := vm.code.Register(m.String(), fn)
	if err != nil {
		return 0, err
	}
	return addr, m.Bind(addr)
}

// LoadLibrary loads a native library on behalf of loader.
func (vm *VM) LoadLibrary(loader *heap.ClassLoader, name string) (heap.Library, error) {
	if vm.linker == nil {
		return heap.Library{}, linker.ErrNotInitialized
	}
	return vm.linker.LoadLibrary(loader, name)
}

// invokeNative is the universe's native invoker: managed code calling a
// native method arrives here.
func (vm *VM) invokeNative(m *heap.Method, receiver *heap.Object, args []heap.Value) (heap.Value, error) {
	e := vm.CurrentEnv()
	if e == nil {
		u := vm.universe
		return heap.Void, u.Throw(u.InternalError, "native method %s called on a thread that is not attached", m)
	}
	return e.Downcall(m, receiver, args)
}
