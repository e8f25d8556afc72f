// Package memory provides native memory that lives outside the collector's
// view: pinned blocks handed to native code (string and array copies) and the
// shared scratch buffer used for marshalling C strings into loader calls.
package memory

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/chazu/boundary/word"
)

// ErrExhausted is returned when an allocation would exceed the heap limit.
var ErrExhausted = errors.New("memory: native heap exhausted")

// ErrUnknownBlock is returned by Free for an address the heap never handed out.
var ErrUnknownBlock = errors.New("memory: unknown block")

// ErrClosed is returned by Allocate after Close.
var ErrClosed = errors.New("memory: heap closed")

type block struct {
	buf []byte
	pin runtime.Pinner
}

// Heap hands out pinned byte blocks addressed by word.Pointer. A block stays
// at a fixed address until it is freed.
type Heap struct {
	mu     sync.Mutex
	blocks map[word.Address]*block
	used   int
	limit  int
	closed bool
}

// NewHeap creates a heap. A limit of zero or less means unbounded.
func NewHeap(limit int) *Heap {
	return &Heap{
		blocks: make(map[word.Address]*block),
		limit:  limit,
	}
}

// Allocate returns a zeroed block of n bytes. Zero-byte requests still get a
// distinct one-byte block so the result is never the zero pointer.
func (h *Heap) Allocate(n int) (word.Pointer, error) {
	if n < 0 {
		return 0, fmt.Errorf("memory: negative allocation size %d", n)
	}
	size := max(n, 1)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, ErrClosed
	}
	if h.limit > 0 && h.used+size > h.limit {
		return 0, fmt.Errorf("allocate %d bytes (%d in use): %w", size, h.used, ErrExhausted)
	}

	b := &block{buf: make([]byte, size)}
	b.pin.Pin(&b.buf[0])
	p := word.PointerTo(&b.buf[0])
	h.blocks[p.AsAddress()] = b
	h.used += size
	return p, nil
}

// AllocateBytes allocates a block and copies src into it.
func (h *Heap) AllocateBytes(src []byte) (word.Pointer, error) {
	p, err := h.Allocate(len(src))
	if err != nil {
		return 0, err
	}
	p.WriteBytes(0, src)
	return p, nil
}

// Free releases a block previously returned by Allocate.
func (h *Heap) Free(p word.Pointer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.blocks[p.AsAddress()]
	if !ok {
		return fmt.Errorf("free %s: %w", p, ErrUnknownBlock)
	}
	b.pin.Unpin()
	delete(h.blocks, p.AsAddress())
	h.used -= len(b.buf)
	return nil
}

// Size returns the size of the block at p, or false if p is not a block start.
func (h *Heap) Size(p word.Pointer) (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.blocks[p.AsAddress()]
	if !ok {
		return 0, false
	}
	return len(b.buf), true
}

// Live returns the number of blocks not yet freed.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.blocks)
}

// Used returns the number of bytes currently allocated.
func (h *Heap) Used() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

// Close unpins and drops every block still live. Pointers into the heap are
// invalid afterwards. Close returns the number of blocks it released.
func (h *Heap) Close() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.blocks)
	for _, b := range h.blocks {
		b.pin.Unpin()
	}
	clear(h.blocks)
	h.used = 0
	h.closed = true
	return n
}
