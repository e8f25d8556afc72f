package native

import (
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

func registerFieldOps(ops opTable) {
	for _, name := range fieldKinds {
		k := kindOfName(name)
		ops.add("Get"+name+"Field", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			return e.GetField(k, args.handle(0), args.word(1))
		})
		ops.add("Set"+name+"Field", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			e.SetField(k, args.handle(0), args.word(1), args.word(2))
			return 0
		})
		ops.add("GetStatic"+name+"Field", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			return e.GetStaticField(k, args.handle(0), args.word(1))
		})
		ops.add("SetStatic"+name+"Field", func(e *Env, a []word.Word) word.Word {
			args := argv(a)
			e.SetStaticField(k, args.handle(0), args.word(1), args.word(2))
			return 0
		})
	}
}

func (e *Env) instanceField(obj handles.Handle, fid word.Word) (*heap.Object, *heap.Field, error) {
	u := e.vm.universe
	f, err := e.fieldOf(fid)
	if err != nil {
		return nil, nil, err
	}
	if f.Static {
		return nil, nil, u.Throw(u.IllegalArgumentException, "%s is static", f)
	}
	o, err := e.nonNull(obj, "object")
	if err != nil {
		return nil, nil, err
	}
	if !f.Holder.IsAssignableFrom(o.Class()) {
		return nil, nil, u.Throw(u.IllegalArgumentException, "%s has no field %s", o.Class().SourceName(), f)
	}
	return o, f, nil
}

func (e *Env) staticField(cls handles.Handle, fid word.Word) (*heap.Class, *heap.Field, error) {
	u := e.vm.universe
	c, err := e.classOf(cls)
	if err != nil {
		return nil, nil, err
	}
	f, err := e.fieldOf(fid)
	if err != nil {
		return nil, nil, err
	}
	if !f.Static {
		return nil, nil, u.Throw(u.IllegalArgumentException, "%s is not static", f)
	}
	if err := f.Holder.Initialize(); err != nil {
		return nil, nil, err
	}
	return c, f, nil
}

// storable converts the word a setter received to a value for f, checking
// reference stores against the field's declared class.
func (e *Env) storable(k heap.Kind, f *heap.Field, w word.Word) (heap.Value, error) {
	v, err := e.fromWord(k, w)
	if err != nil {
		return heap.Void, err
	}
	if k == heap.KindReference && !v.IsNull() {
		declared, err := f.Holder.Loader.LoadClass(heap.ClassNameOf(f.Descriptor))
		if err == nil && !declared.IsInstance(v.AsObject()) {
			u := e.vm.universe
			return heap.Void, u.Throw(u.IllegalArgumentException, "%s cannot be stored in %s", v.AsObject().Class().SourceName(), f)
		}
	}
	return v, nil
}

// GetField reads an instance field as kind k in table representation.
func (e *Env) GetField(k heap.Kind, obj handles.Handle, fid word.Word) word.Word {
	return upcall(e, "Get"+k.String()+"Field", word.Word(0), func() (word.Word, error) {
		o, f, err := e.instanceField(obj, fid)
		if err != nil {
			return 0, err
		}
		return e.resultWord(k, o.Field(f))
	})
}

// SetField stores w, a kind k value in table representation, into an
// instance field.
func (e *Env) SetField(k heap.Kind, obj handles.Handle, fid word.Word, w word.Word) {
	upcallVoid(e, "Set"+k.String()+"Field", func() error {
		o, f, err := e.instanceField(obj, fid)
		if err != nil {
			return err
		}
		v, err := e.storable(k, f, w)
		if err != nil {
			return err
		}
		return o.SetField(f, v)
	})
}

// GetStaticField reads a static field, initializing its class first.
func (e *Env) GetStaticField(k heap.Kind, cls handles.Handle, fid word.Word) word.Word {
	return upcall(e, "GetStatic"+k.String()+"Field", word.Word(0), func() (word.Word, error) {
		c, f, err := e.staticField(cls, fid)
		if err != nil {
			return 0, err
		}
		return e.resultWord(k, c.Static(f))
	})
}

// SetStaticField stores a static field, initializing its class first.
func (e *Env) SetStaticField(k heap.Kind, cls handles.Handle, fid word.Word, w word.Word) {
	upcallVoid(e, "SetStatic"+k.String()+"Field", func() error {
		c, f, err := e.staticField(cls, fid)
		if err != nil {
			return err
		}
		v, err := e.storable(k, f, w)
		if err != nil {
			return err
		}
		return c.SetStatic(f, v)
	})
}
