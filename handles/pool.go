package handles

import (
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/tliron/commonlog"

	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/word"
)

var log = commonlog.GetLogger("boundary.handles")

// ErrCapacityExhausted is returned when a pool cannot grow any further.
var ErrCapacityExhausted = errors.New("handles: pool capacity exhausted")

// ErrInvalidHandle is returned when a handle does not name a live slot.
var ErrInvalidHandle = errors.New("handles: invalid handle")

// InvariantError reports a broken pool invariant. It is raised by panic: it
// indicates a bug in the boundary itself, not bad input.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "handles: invariant violated: " + e.Msg }

func invariant(format string, args ...any) {
	panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
}

// DefaultLocalCapacity is the initial size of a thread's local pool.
const DefaultLocalCapacity = 32

// DefaultGlobalCapacity is the initial size of each shared pool.
const DefaultGlobalCapacity = 64

// ---------------------------------------------------------------------------
// Pool: indexed reference storage with a free set
// ---------------------------------------------------------------------------

// Pool maps indices to references. Every slot at or above top is empty;
// every index in the free set is below top and empty; every other slot below
// top is live.
type Pool struct {
	name      string
	slots     []word.Reference
	free      *bitset.BitSet
	top       int
	lastFreed int
	max       int
}

func newPool(name string, capacity, max int) Pool {
	if capacity <= 0 {
		capacity = 1
	}
	if max > 0 && capacity > max {
		capacity = max
	}
	return Pool{
		name:      name,
		slots:     make([]word.Reference, capacity),
		free:      bitset.New(uint(capacity)),
		lastFreed: -1,
		max:       max,
	}
}

// Top returns the high-water mark.
func (p *Pool) Top() int { return p.top }

// Capacity returns the number of slots in the backing array.
func (p *Pool) Capacity() int { return len(p.slots) }

// FreeCount returns the number of freed slots below top.
func (p *Pool) FreeCount() int { return int(p.free.Count()) }

// Live returns the number of occupied slots.
func (p *Pool) Live() int { return p.top - p.FreeCount() }

// allocate stores r in a slot and returns its index: the slot at top if the
// array has room, else the first free slot after the last one freed
// (wrapping), else a slot in a doubled array.
func (p *Pool) allocate(r word.Reference) (int, error) {
	for {
		if p.top < len(p.slots) {
			i := p.top
			p.top++
			p.slots[i] = r
			return i, nil
		}
		if i, ok := p.nextFree(); ok {
			p.free.Clear(uint(i))
			p.slots[i] = r
			return i, nil
		}
		if err := p.grow(len(p.slots) * 2); err != nil {
			return 0, err
		}
	}
}

func (p *Pool) nextFree() (int, bool) {
	if p.free.None() {
		return 0, false
	}
	if i, ok := p.free.NextSet(uint(p.lastFreed + 1)); ok && int(i) < p.top {
		return int(i), true
	}
	if i, ok := p.free.NextSet(0); ok && int(i) < p.top {
		return int(i), true
	}
	return 0, false
}

func (p *Pool) grow(want int) error {
	if p.max > 0 && want > p.max {
		want = p.max
	}
	if want <= len(p.slots) {
		return fmt.Errorf("%s pool at %d slots: %w", p.name, len(p.slots), ErrCapacityExhausted)
	}
	slots := make([]word.Reference, want)
	copy(slots, p.slots)
	p.slots = slots
	log.Debugf("%s pool grown to %d slots", p.name, want)
	return nil
}

func (p *Pool) get(i int) (word.Reference, error) {
	if i < 0 || i >= p.top || p.free.Test(uint(i)) {
		return word.Null, fmt.Errorf("%s pool index %d: %w", p.name, i, ErrInvalidHandle)
	}
	return p.slots[i], nil
}

func (p *Pool) release(i int) error {
	if i < 0 || i >= p.top || p.free.Test(uint(i)) {
		return fmt.Errorf("%s pool free of index %d: %w", p.name, i, ErrInvalidHandle)
	}
	p.slots[i] = word.Null
	p.free.Set(uint(i))
	p.lastFreed = i
	return nil
}

// ensureCapacity grows the array so that n more allocations succeed without
// growth.
func (p *Pool) ensureCapacity(n int) error {
	avail := len(p.slots) - p.top + p.FreeCount()
	if avail >= n {
		return nil
	}
	want := len(p.slots)
	for want-p.top+p.FreeCount() < n {
		want *= 2
	}
	if p.max > 0 && want > p.max {
		if p.max-p.top+p.FreeCount() < n {
			return fmt.Errorf("%s pool cannot reserve %d slots: %w", p.name, n, ErrCapacityExhausted)
		}
		want = p.max
	}
	return p.grow(want)
}

// resetTop empties every slot from t up to top. Raising top is an invariant
// violation.
func (p *Pool) resetTop(t int) {
	if t > p.top || t < 0 {
		invariant("%s pool reset to %d above top %d", p.name, t, p.top)
	}
	for i := t; i < p.top; i++ {
		p.slots[i] = word.Null
		p.free.Clear(uint(i))
	}
	p.top = t
}

// visit calls fn for every live slot.
func (p *Pool) visit(fn func(i int, r word.Reference)) {
	for i := 0; i < p.top; i++ {
		if !p.slots[i].IsNull() {
			fn(i, p.slots[i])
		}
	}
}

func objectOf(r word.Reference) *heap.Object {
	if r.IsNull() {
		return nil
	}
	return r.Target().(*heap.Object)
}
