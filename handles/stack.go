package handles

import (
	"runtime"

	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

// StackFrame is the block of reference cells a downcall passes its object
// parameters in. Each non-null parameter occupies one pinned cell and is
// handed to native code as a STACK handle carrying the cell's address.
type StackFrame struct {
	cells  []word.Reference
	n      int
	pinner runtime.Pinner
}

// NewStackFrame reserves n cells.
func NewStackFrame(n int) *StackFrame {
	f := &StackFrame{cells: make([]word.Reference, max(n, 1))}
	f.pinner.Pin(&f.cells[0])
	return f
}

// Push stores o in the next cell and returns its STACK handle. A nil object
// yields Null without consuming a cell.
func (f *StackFrame) Push(o *heap.Object) Handle {
	if o == nil {
		return Null
	}
	if f.n == len(f.cells) {
		invariant("stack frame of %d cells overflowed", len(f.cells))
	}
	cell := word.PointerTo(&f.cells[f.n])
	cell.WriteReference(0, word.RefOf(o))
	f.n++
	return EncodeStack(cell)
}

// Len returns the number of cells in use.
func (f *StackFrame) Len() int { return f.n }

// Release clears the cells and unpins them. Handles into the frame must not
// be used afterwards.
func (f *StackFrame) Release() {
	clear(f.cells)
	f.n = 0
	f.pinner.Unpin()
}

// VisitRoots reports every object held in the frame.
func (f *StackFrame) VisitRoots(fn func(*heap.Object)) {
	for i := 0; i < f.n; i++ {
		if o := objectOf(f.cells[i]); o != nil {
			fn(o)
		}
	}
}
