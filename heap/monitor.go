package heap

import (
	"errors"
	"sync"
)

// ErrNotOwner is returned by Monitor.Exit when the caller does not own the
// monitor.
var ErrNotOwner = errors.New("heap: current thread does not own the monitor")

// Monitor is a reentrant object lock. Owners are compared by identity; the
// native boundary uses the per-thread environment as the owner.
type Monitor struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner any
	count int
}

// NewMonitor creates an unowned monitor.
func NewMonitor() *Monitor {
	m := &Monitor{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Enter acquires the monitor for owner, blocking while another owner holds it.
func (m *Monitor) Enter(owner any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.count > 0 && m.owner != owner {
		m.cond.Wait()
	}
	m.owner = owner
	m.count++
}

// Exit releases one level of ownership.
func (m *Monitor) Exit(owner any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 || m.owner != owner {
		return ErrNotOwner
	}
	m.count--
	if m.count == 0 {
		m.owner = nil
		m.cond.Signal()
	}
	return nil
}

// Owner returns the current owner and entry count.
func (m *Monitor) Owner() (any, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner, m.count
}
