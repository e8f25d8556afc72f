package native

import (
	"errors"
	"fmt"

	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/linker"
	"github.com/chazu/boundary/word"
)

// GoBootstrap supplies the native-only slots from Go. The variadic call
// entries work the way a native support library does: they ask the table
// for the callee's parameter kinds, pack the variadic words into a jvalue
// array and call the A variant through the table.
func GoBootstrap(vm *VM) (map[string]word.Address, error) {
	out := make(map[string]word.Address, len(nativeSlots))
	var errs []error
	reg := func(name string, fn Func) {
		addr, err := vm.code.Register(name, fn)
		if err != nil {
			errs = append(errs, err)
			return
		}
		out[name] = addr
	}

	for i := range 4 {
		reg(fmt.Sprintf("reserved%d", i), func(*Env, []word.Word) word.Word { return 0 })
	}
	reg("GetVersion", func(*Env, []word.Word) word.Word {
		return intWord(vm.Version())
	})
	reg("GetJavaVM", func(_ *Env, a []word.Word) word.Word {
		pp := argv(a).ptr(0)
		if pp.IsZero() {
			return intWord(Err)
		}
		pp.WriteWord(0, vm.cell.AsWord())
		return intWord(OK)
	})

	reg("NewObject", func(e *Env, a []word.Word) word.Word {
		return e.variadic("NewObjectA", a[:min(2, len(a))], argv(a).word(1), a[min(2, len(a)):], 0, false)
	})
	reg("NewObjectV", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return e.variadic("NewObjectA", a[:min(2, len(a))], args.word(1), nil, args.ptr(2), true)
	})
	for _, v := range []struct {
		prefix string
		fixed  int // arguments before the method ID
	}{{"Call", 1}, {"CallNonvirtual", 2}, {"CallStatic", 1}} {
		for _, name := range callKinds {
			target := v.prefix + name + "MethodA"
			n := v.fixed + 1
			reg(v.prefix+name+"Method", func(e *Env, a []word.Word) word.Word {
				head := a[:min(n, len(a))]
				return e.variadic(target, head, argv(a).word(n-1), a[len(head):], 0, false)
			})
			reg(v.prefix+name+"MethodV", func(e *Env, a []word.Word) word.Word {
				args := argv(a)
				return e.variadic(target, a[:min(n, len(a))], args.word(n-1), nil, args.ptr(n), true)
			})
		}
	}
	return out, errors.Join(errs...)
}

// variadic packs the arguments of method mid into a jvalue array and calls
// target with head followed by the array. The arguments are either the
// variadic words or, when fromList is set, a va_list.
func (e *Env) variadic(target string, head []word.Word, mid word.Word, varargs []word.Word, list word.Pointer, fromList bool) word.Word {
	n := int32(e.Call("GetNumberOfArguments", mid))
	if n == Err || e.pending != nil {
		return 0
	}
	kinds, err := e.argumentKinds(mid, int(n))
	if err != nil {
		e.pending = e.throwableFor(err)
		return 0
	}
	if e.pending != nil {
		return 0
	}

	var (
		p    word.Pointer
		done func()
	)
	if fromList {
		p, done, err = e.vm.PackArgumentList(kinds, list)
	} else {
		p, done, err = e.vm.PackArguments(kinds, varargs)
	}
	if err != nil {
		e.pending = e.throwableFor(err)
		return 0
	}
	defer done()

	args := append(append(make([]word.Word, 0, len(head)+1), head...), p.AsWord())
	return e.Call(target, args...)
}

// argumentKinds asks the table for the parameter kinds of mid.
func (e *Env) argumentKinds(mid word.Word, n int) ([]heap.Kind, error) {
	if n == 0 {
		return nil, nil
	}
	buf, err := e.vm.mem.Allocate(n)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := e.vm.mem.Free(buf); err != nil {
			log.Errorf("argument kinds of %s: %s", mid, err)
		}
	}()
	e.Call("GetKindsOfArguments", mid, buf.AsWord())
	kinds := make([]heap.Kind, n)
	for i := range kinds {
		k, ok := KindOfCode(byte(buf.ReadInt8(i)))
		if !ok {
			return nil, fmt.Errorf("native: parameter %d has unknown kind code %d", i, buf.ReadInt8(i))
		}
		kinds[i] = k
	}
	return kinds, nil
}

// GetVersion returns the interface version through the function table.
func (e *Env) GetVersion() int32 { return int32(e.Call("GetVersion")) }

// GetJavaVM stores the VM pointer at pp through the function table.
func (e *Env) GetJavaVM(pp word.Pointer) int32 {
	return int32(e.Call("GetJavaVM", pp.AsWord()))
}

// BootstrapFromLinker resolves the native-only slots from the symbols a
// native support library exports. Slot X is exported as jni_X.
func BootstrapFromLinker(l *linker.Linker) NativeSource {
	return func(*VM) (map[string]word.Address, error) {
		out := make(map[string]word.Address, len(nativeSlots))
		var errs []error
		for _, name := range NativeSlotNames() {
			addr, err := l.LookupSymbol(0, "jni_"+name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out[name] = addr
		}
		return out, errors.Join(errs...)
	}
}
