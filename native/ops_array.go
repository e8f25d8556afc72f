package native

import (
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

func registerArrayOps(ops opTable) {
	ops.add("GetArrayLength", func(e *Env, a []word.Word) word.Word {
		return intWord(e.GetArrayLength(argv(a).handle(0)))
	})
	ops.add("NewObjectArray", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return handleWord(e.NewObjectArray(args.i32(0), args.handle(1), args.handle(2)))
	})
	ops.add("GetObjectArrayElement", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return handleWord(e.GetObjectArrayElement(args.handle(0), args.i32(1)))
	})
	ops.add("SetObjectArrayElement", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		e.SetObjectArrayElement(args.handle(0), args.i32(1), args.handle(2))
		return 0
	})
	for _, name := range primKinds {
		k := kindOfName(name)
		ops.add("New"+name+"Array", func(e *Env, a []word.Word) word.Word {
			return handleWord(e.NewPrimitiveArray(k, argv(a).i32(0)))
		})
		ops.add("Get"+name+"ArrayElements", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			return e.GetArrayElements(k, args.handle(0), args.ptr(1)).AsWord()
		})
		ops.add("Release"+name+"ArrayElements", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			e.ReleaseArrayElements(k, args.handle(0), args.ptr(1), args.i32(2))
			return 0
		})
		ops.add("Get"+name+"ArrayRegion", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			e.GetArrayRegion(k, args.handle(0), args.i32(1), args.i32(2), args.ptr(3))
			return 0
		})
		ops.add("Set"+name+"ArrayRegion", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			e.SetArrayRegion(k, args.handle(0), args.i32(1), args.i32(2), args.ptr(3))
			return 0
		})
	}
	ops.add("GetPrimitiveArrayCritical", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		return e.GetPrimitiveArrayCritical(args.handle(0), args.ptr(1)).AsWord()
	})
	ops.add("ReleasePrimitiveArrayCritical", func(e *Env, a []word.Word) word.Word {
		args := argv(a)
		e.ReleasePrimitiveArrayCritical(args.handle(0), args.ptr(1), args.i32(2))
		return 0
	})
}

func (e *Env) arrayOf(h handles.Handle) (*heap.Object, error) {
	o, err := e.nonNull(h, "array")
	if err != nil {
		return nil, err
	}
	if !o.IsArray() {
		u := e.vm.universe
		return nil, u.Throw(u.IllegalArgumentException, "%s is not an array", o.Class().SourceName())
	}
	return o, nil
}

// primitiveArray resolves h to an array of kind k.
func (e *Env) primitiveArray(k heap.Kind, h handles.Handle) (*heap.Object, error) {
	o, err := e.arrayOf(h)
	if err != nil {
		return nil, err
	}
	if o.ElementKind() != k {
		u := e.vm.universe
		return nil, u.Throw(u.IllegalArgumentException, "%s is not a %s array", o.Class().Name, k)
	}
	return o, nil
}

func regionBounds(u *heap.Universe, arr *heap.Object, start, n int32) error {
	if start < 0 || n < 0 || int(start)+int(n) > arr.Length() {
		return u.Throw(u.ArrayIndexOutOfBoundsException, "region %d+%d out of bounds for length %d", start, n, arr.Length())
	}
	return nil
}

// GetArrayLength returns the length of an array.
func (e *Env) GetArrayLength(arr handles.Handle) int32 {
	return upcall(e, "GetArrayLength", int32(0), func() (int32, error) {
		o, err := e.arrayOf(arr)
		if err != nil {
			return 0, err
		}
		return int32(o.Length()), nil
	})
}

// NewObjectArray creates an array of n elements of class elem, each set to
// the object init refers to.
func (e *Env) NewObjectArray(n int32, elem, init handles.Handle) handles.Handle {
	return upcall(e, "NewObjectArray", handles.Null, func() (handles.Handle, error) {
		c, err := e.classOf(elem)
		if err != nil {
			return handles.Null, err
		}
		o, err := e.Resolve(init)
		if err != nil {
			return handles.Null, err
		}
		arr, err := e.vm.universe.NewObjectArray(c, int(n), o)
		if err != nil {
			return handles.Null, err
		}
		return e.NewLocal(arr)
	})
}

// GetObjectArrayElement returns a local handle to element i.
func (e *Env) GetObjectArrayElement(arr handles.Handle, i int32) handles.Handle {
	return upcall(e, "GetObjectArrayElement", handles.Null, func() (handles.Handle, error) {
		o, err := e.primitiveArray(heap.KindReference, arr)
		if err != nil {
			return handles.Null, err
		}
		el, err := o.Element(int(i))
		if err != nil {
			return handles.Null, err
		}
		return e.NewLocal(el)
	})
}

// SetObjectArrayElement stores element i.
func (e *Env) SetObjectArrayElement(arr handles.Handle, i int32, val handles.Handle) {
	upcallVoid(e, "SetObjectArrayElement", func() error {
		o, err := e.primitiveArray(heap.KindReference, arr)
		if err != nil {
			return err
		}
		v, err := e.Resolve(val)
		if err != nil {
			return err
		}
		return o.SetElement(int(i), v)
	})
}

// NewPrimitiveArray creates a zeroed array of n elements of kind k.
func (e *Env) NewPrimitiveArray(k heap.Kind, n int32) handles.Handle {
	return upcall(e, "New"+k.String()+"Array", handles.Null, func() (handles.Handle, error) {
		arr, err := e.vm.universe.NewPrimitiveArray(k, int(n))
		if err != nil {
			return handles.Null, err
		}
		return e.NewLocal(arr)
	})
}

// GetArrayElements returns a native copy of an array's elements. The copy
// is written back and released by ReleaseArrayElements.
func (e *Env) GetArrayElements(k heap.Kind, arr handles.Handle, isCopy word.Pointer) word.Pointer {
	return upcall(e, "Get"+k.String()+"ArrayElements", word.Pointer(0), func() (word.Pointer, error) {
		o, err := e.primitiveArray(k, arr)
		if err != nil {
			return 0, err
		}
		p, err := e.copyOut(o.Data())
		if err != nil {
			return 0, err
		}
		setIsCopy(isCopy, true)
		return p, nil
	})
}

// ReleaseArrayElements ends access to a copy from GetArrayElements. Mode 0
// copies back and frees, Commit copies back and keeps the copy, Abort frees
// without copying back.
func (e *Env) ReleaseArrayElements(k heap.Kind, arr handles.Handle, elems word.Pointer, mode int32) {
	upcallVoid(e, "Release"+k.String()+"ArrayElements", func() error {
		o, err := e.primitiveArray(k, arr)
		if err != nil {
			return err
		}
		if mode != ReleaseCopyFree && mode != Commit && mode != Abort {
			u := e.vm.universe
			return u.Throw(u.IllegalArgumentException, "invalid release mode %d", mode)
		}
		if mode == ReleaseCopyFree || mode == Commit {
			elems.ReadBytes(0, o.Data())
		}
		if mode == ReleaseCopyFree || mode == Abort {
			return e.free(elems)
		}
		return nil
	})
}

// GetArrayRegion copies n elements starting at start into buf.
func (e *Env) GetArrayRegion(k heap.Kind, arr handles.Handle, start, n int32, buf word.Pointer) {
	upcallVoid(e, "Get"+k.String()+"ArrayRegion", func() error {
		o, err := e.primitiveArray(k, arr)
		if err != nil {
			return err
		}
		if err := regionBounds(e.vm.universe, o, start, n); err != nil {
			return err
		}
		size := k.Size()
		buf.WriteBytes(0, o.Data()[int(start)*size:int(start+n)*size])
		return nil
	})
}

// SetArrayRegion copies n elements from buf into the array starting at
// start.
func (e *Env) SetArrayRegion(k heap.Kind, arr handles.Handle, start, n int32, buf word.Pointer) {
	upcallVoid(e, "Set"+k.String()+"ArrayRegion", func() error {
		o, err := e.primitiveArray(k, arr)
		if err != nil {
			return err
		}
		if err := regionBounds(e.vm.universe, o, start, n); err != nil {
			return err
		}
		size := k.Size()
		buf.ReadBytes(0, o.Data()[int(start)*size:int(start+n)*size])
		return nil
	})
}

// GetPrimitiveArrayCritical pins an array and returns the address of its
// elements. The array stays pinned until ReleasePrimitiveArrayCritical.
func (e *Env) GetPrimitiveArrayCritical(arr handles.Handle, isCopy word.Pointer) word.Pointer {
	return upcall(e, "GetPrimitiveArrayCritical", word.Pointer(0), func() (word.Pointer, error) {
		o, err := e.arrayOf(arr)
		if err != nil {
			return 0, err
		}
		if !o.Class().IsPrimitiveArray() {
			u := e.vm.universe
			return 0, u.Throw(u.IllegalArgumentException, "%s is not a primitive array", o.Class().Name)
		}
		p := e.vm.pinCritical(o)
		if p.IsZero() {
			p = e.vm.emptyCritical
		}
		setIsCopy(isCopy, false)
		return p, nil
	})
}

// ReleasePrimitiveArrayCritical unpins an array pinned by
// GetPrimitiveArrayCritical. The elements were accessed in place, so the
// mode has no effect.
func (e *Env) ReleasePrimitiveArrayCritical(arr handles.Handle, elems word.Pointer, mode int32) {
	upcallVoid(e, "ReleasePrimitiveArrayCritical", func() error {
		o, err := e.arrayOf(arr)
		if err != nil {
			return err
		}
		e.vm.unpinCritical(o)
		return nil
	})
}
