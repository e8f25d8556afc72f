package linker

import (
	"sort"
	"sync"

	"github.com/chazu/boundary/word"
)

// BootImage is the set of native symbols linked into the pre-built base
// image. It is searched before any loaded library.
type BootImage interface {
	Lookup(symbol string) (word.Address, bool)
}

// MapImage is a BootImage backed by a symbol table.
type MapImage struct {
	mu      sync.RWMutex
	symbols map[string]word.Address
}

// NewMapImage returns an image holding a copy of symbols.
func NewMapImage(symbols map[string]word.Address) *MapImage {
	m := &MapImage{symbols: make(map[string]word.Address, len(symbols))}
	for k, v := range symbols {
		m.symbols[k] = v
	}
	return m
}

func (m *MapImage) Lookup(symbol string) (word.Address, bool) {
	if m == nil {
		return 0, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.symbols[symbol]
	return a, ok && a != 0
}

// Add links symbol at addr.
func (m *MapImage) Add(symbol string, addr word.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols[symbol] = addr
}

// Symbols returns the linked symbol names in sorted order.
func (m *MapImage) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.symbols))
	for k := range m.symbols {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
