package native

import (
	"github.com/chazu/boundary/handles"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

// localFrameCapacity is the number of local handles every native method
// may create without calling EnsureLocalCapacity.
const localFrameCapacity = 16

// Downcall runs native method m on e's thread. Reference parameters, the
// receiver or, for static methods, the class mirror are passed as STACK
// handles into a pinned parameter frame; every local handle the method
// creates is released when it returns, even in frames it left open. An exception left pending by the native
// code is returned as a *heap.Throwable and cleared.
func (e *Env) Downcall(m *heap.Method, receiver *heap.Object, args []heap.Value) (heap.Value, error) {
	if e.anchor == nil {
		fatal("downcall to %s on thread %q: no anchor", m, e.name)
	}
	fn, entry, err := e.entryOf(m)
	if err != nil {
		return heap.Void, err
	}

	nrefs := 1
	for _, k := range m.Sig.ParamKinds {
		if k == heap.KindReference {
			nrefs++
		}
	}
	scope, err := e.local.Enter(localFrameCapacity)
	if err != nil {
		return heap.Void, err
	}
	params := handles.NewStackFrame(nrefs)
	e.stacks = append(e.stacks, params)
	prev := e.anchor
	defer func() {
		e.anchor = prev
		e.stacks = e.stacks[:len(e.stacks)-1]
		params.Release()
		if d := e.local.Depth() - scope.Depth(); d > 1 {
			log.Warningf("downcall %s: %d local frames left open", m, d-1)
		}
		e.local.Leave(scope)
	}()

	self := receiver
	if m.IsStatic() {
		self = m.Holder.Mirror()
	}
	words := make([]word.Word, 0, len(args)+1)
	words = append(words, params.Push(self).Word())
	for i, a := range args {
		if m.Sig.ParamKinds[i] == heap.KindReference {
			words = append(words, params.Push(a.AsObject()).Word())
		} else {
			words = append(words, word.Word(a.Raw()))
		}
	}

	e.anchor = &Anchor{Prev: prev, PC: entry, Method: m}
	if e.vm.cfg.Trace.Invocations {
		log.Infof("[Thread %q --> downcall: %s]", e.name, m)
	}
	ret := e.callNative(fn, words)
	if e.vm.cfg.Trace.Invocations {
		log.Infof("[Thread %q <-- downcall: %s]", e.name, m)
	}

	// The result handle may live in the scope the deferred Leave releases.
	result, rerr := e.fromWord(m.Sig.ReturnKind, ret)
	if t := e.TakePending(); t != nil {
		return heap.Void, &heap.Throwable{Object: t}
	}
	if rerr != nil {
		return heap.Void, rerr
	}
	return result, nil
}

// entryOf returns the function bound to m, linking it on first use.
func (e *Env) entryOf(m *heap.Method) (Func, word.Address, error) {
	u := e.vm.universe
	entry := m.NativeEntry()
	if entry == 0 {
		if e.vm.linker == nil {
			return nil, 0, u.Throw(u.UnsatisfiedLinkError, "%s", m)
		}
		addr, err := e.vm.linker.Link(m)
		if err != nil {
			return nil, 0, u.Throw(u.UnsatisfiedLinkError, "%s: %v", m, err)
		}
		entry = addr
	}
	fn, _, ok := e.vm.code.Lookup(entry)
	if !ok {
		return nil, 0, u.Throw(u.UnsatisfiedLinkError, "%s is bound to %s, which this runtime cannot call", m, entry)
	}
	return fn, entry, nil
}

// callNative runs fn with the thread counted as native.
func (e *Env) callNative(fn Func, args []word.Word) word.Word {
	if e.state == StateManaged {
		e.state = StateNative
		e.vm.safepoint.RUnlock()
		defer func() {
			e.vm.safepoint.RLock()
			e.state = StateManaged
		}()
	}
	return fn(e, args)
}

// Call invokes a function-table entry by name the way native code does:
// it reads the entry from the flat table and calls it.
func (e *Env) Call(name string, args ...word.Word) word.Word {
	i, ok := SlotIndex(name)
	if !ok {
		fatal("no function table slot named %s", name)
	}
	return e.CallSlot(i, args...)
}

// CallSlot invokes function-table entry i.
func (e *Env) CallSlot(i int, args ...word.Word) word.Word {
	entry := e.vm.table.Entry(i)
	fn, _, ok := e.vm.code.Lookup(entry)
	if !ok {
		fatal("function table slot %d (%s) holds %s, which this runtime cannot call", i, slotNames[i], entry)
	}
	return fn(e, args)
}
