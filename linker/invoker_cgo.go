//go:build cgo

package linker

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>

typedef void* (*bd_open_fn)(const char*, int);
typedef void* (*bd_sym_fn)(void*, const char*);
typedef char* (*bd_error_fn)(void);
typedef int (*bd_close_fn)(void*);

static void* bd_call_open(uintptr_t f, const char* path, int flags) {
	return ((bd_open_fn)f)(path, flags);
}
static void* bd_call_sym(uintptr_t f, void* h, const char* name) {
	return ((bd_sym_fn)f)(h, name);
}
static char* bd_call_error(uintptr_t f) {
	return ((bd_error_fn)f)();
}
static int bd_call_close(uintptr_t f, void* h) {
	return ((bd_close_fn)f)(h);
}

static uintptr_t bd_addr_dlopen(void)  { return (uintptr_t)&dlopen; }
static uintptr_t bd_addr_dlsym(void)   { return (uintptr_t)&dlsym; }
static uintptr_t bd_addr_dlerror(void) { return (uintptr_t)&dlerror; }
*/
import "C"

import (
	"unsafe"

	"github.com/chazu/boundary/word"
)

// Native calls the platform loader through C trampolines.
type Native struct{}

// NativeBootstrap returns the addresses of the process's own dlopen, dlsym
// and dlerror, as native startup code would pass them in.
func NativeBootstrap() Bootstrap {
	return Bootstrap{
		Open:  word.Address(C.bd_addr_dlopen()),
		Sym:   word.Address(C.bd_addr_dlsym()),
		Error: word.Address(C.bd_addr_dlerror()),
	}
}

func (Native) Open(fn word.Address, path word.Pointer, flags int) word.Address {
	h := C.bd_call_open(C.uintptr_t(fn), (*C.char)(path.Unsafe()), C.int(flags))
	return word.Address(uintptr(h))
}

func (Native) Sym(fn word.Address, handle word.Address, name word.Pointer) word.Address {
	p := C.bd_call_sym(C.uintptr_t(fn), unsafe.Pointer(uintptr(handle)), (*C.char)(name.Unsafe()))
	return word.Address(uintptr(p))
}

func (Native) Error(fn word.Address) word.Pointer {
	return word.PointerOf(unsafe.Pointer(C.bd_call_error(C.uintptr_t(fn))))
}

func (Native) Close(fn word.Address, handle word.Address) int {
	return int(C.bd_call_close(C.uintptr_t(fn), unsafe.Pointer(uintptr(handle))))
}
