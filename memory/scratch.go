package memory

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/chazu/boundary/word"
)

// DefaultScratchSize is the scratch buffer size used when none is configured.
const DefaultScratchSize = 4096

// Scratch is a fixed-size buffer mapped outside the Go heap. Every loader call
// that needs a C string borrows it. Before the runtime goes multithreaded the
// buffer is used without locking; after Share it is a critical section.
type Scratch struct {
	mem    []byte
	mu     sync.Mutex
	shared atomic.Bool
}

// NewScratch maps an anonymous buffer of size bytes.
func NewScratch(size int) (*Scratch, error) {
	if size <= 0 {
		size = DefaultScratchSize
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("memory: map scratch buffer: %w", err)
	}
	return &Scratch{mem: mem}, nil
}

// Size returns the buffer capacity in bytes.
func (s *Scratch) Size() int { return len(s.mem) }

// Share switches the buffer to locked use. It cannot be undone.
func (s *Scratch) Share() { s.shared.Store(true) }

// IsShared reports whether borrowing takes the lock.
func (s *Scratch) IsShared() bool { return s.shared.Load() }

// Acquire borrows the buffer and returns its base pointer and a release
// function. The release function must be called exactly once.
func (s *Scratch) Acquire() (word.Pointer, func()) {
	if !s.shared.Load() {
		return word.PointerTo(&s.mem[0]), func() {}
	}
	s.mu.Lock()
	return word.PointerTo(&s.mem[0]), s.mu.Unlock
}

// PutCString writes str NUL-terminated at the start of a borrowed buffer.
// The caller must hold the buffer via Acquire.
func (s *Scratch) PutCString(p word.Pointer, str string) error {
	if len(str)+1 > len(s.mem) {
		return fmt.Errorf("memory: string of %d bytes does not fit scratch buffer of %d", len(str), len(s.mem))
	}
	p.WriteCString(0, []byte(str))
	return nil
}

// WithCString borrows the buffer, writes str into it and calls fn with the
// pointer. The buffer is released when fn returns.
func (s *Scratch) WithCString(str string, fn func(word.Pointer) error) error {
	p, release := s.Acquire()
	defer release()
	if err := s.PutCString(p, str); err != nil {
		return err
	}
	return fn(p)
}

// Close unmaps the buffer.
func (s *Scratch) Close() error {
	if s.mem == nil {
		return nil
	}
	err := unix.Munmap(s.mem)
	s.mem = nil
	return err
}
