package native

import (
	"fmt"
	"sync"

	"github.com/chazu/boundary/memory"
	"github.com/chazu/boundary/word"
)

// Func is a function reachable through a code address: a function-table
// entry or a native method implementation. Arguments and the result are
// machine words; references travel as handles and floating-point values as
// their raw bits.
type Func func(env *Env, args []word.Word) word.Word

// stubSize is the size of the block backing each code address.
const stubSize = 16

type codeEntry struct {
	name string
	fn   Func
}

// CodeSpace hands out distinct addresses for Go functions so they can sit in
// the function table and be bound to native methods like any other entry
// point.
type CodeSpace struct {
	mem *memory.Heap

	mu      sync.RWMutex
	entries map[word.Address]codeEntry
}

// NewCodeSpace creates an empty code space.
func NewCodeSpace() *CodeSpace {
	return &CodeSpace{
		mem:     memory.NewHeap(0),
		entries: make(map[word.Address]codeEntry),
	}
}

// Register assigns an address to fn.
func (c *CodeSpace) Register(name string, fn Func) (word.Address, error) {
	p, err := c.mem.Allocate(stubSize)
	if err != nil {
		return 0, fmt.Errorf("native: code space: %w", err)
	}
	addr := p.AsAddress()
	c.mu.Lock()
	c.entries[addr] = codeEntry{name: name, fn: fn}
	c.mu.Unlock()
	return addr, nil
}

// MustRegister is Register for startup code that cannot continue without
// the entry.
func (c *CodeSpace) MustRegister(name string, fn Func) word.Address {
	addr, err := c.Register(name, fn)
	if err != nil {
		fatal("%v", err)
	}
	return addr
}

// Lookup returns the function at addr.
func (c *CodeSpace) Lookup(addr word.Address) (Func, string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[addr]
	return e.fn, e.name, ok
}

// NameOf returns the name registered for addr, or "".
func (c *CodeSpace) NameOf(addr word.Address) string {
	_, name, _ := c.Lookup(addr)
	return name
}

// Len returns the number of registered functions.
func (c *CodeSpace) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close drops every registered function and releases the addresses.
func (c *CodeSpace) Close() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	c.mem.Close()
}
