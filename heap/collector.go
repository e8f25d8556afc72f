package heap

import "time"

// RootSet is a source of strong roots for a collection: a handle pool, a
// thread's parameter frames, class statics.
type RootSet interface {
	VisitRoots(fn func(*Object))
}

// RootFunc adapts a function to RootSet.
type RootFunc func(fn func(*Object))

func (f RootFunc) VisitRoots(fn func(*Object)) { f(fn) }

// CollectStats holds statistics from one collection.
type CollectStats struct {
	Roots       int
	Marked      int
	WeakCleared int
	Duration    time.Duration
	Timestamp   time.Time
}

// Collector marks everything reachable from the given roots and clears weak
// references to everything else. Memory itself is reclaimed by the Go
// runtime once nothing references it; the collector's job is deciding weak
// reachability the way the managed heap defines it.
type Collector struct {
	universe *Universe
}

// NewCollector creates a collector for u.
func NewCollector(u *Universe) *Collector {
	return &Collector{universe: u}
}

// Collect runs one collection. The caller must have stopped every mutator
// that could touch the root sets.
func (c *Collector) Collect(roots ...RootSet) *CollectStats {
	start := time.Now()
	stats := &CollectStats{Timestamp: start}

	marked := make(map[*Object]struct{})
	var stack []*Object
	push := func(o *Object) {
		if _, seen := marked[o]; seen {
			return
		}
		marked[o] = struct{}{}
		stack = append(stack, o)
	}

	for _, rs := range roots {
		rs.VisitRoots(func(o *Object) {
			stats.Roots++
			push(o)
		})
	}
	for _, l := range c.universe.Loaders() {
		for _, cls := range l.Classes() {
			cls.visitStatics(push)
		}
	}

	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		o.visit(push)
	}

	stats.Marked = len(marked)
	stats.WeakCleared = c.universe.Weak.ProcessGC(marked)
	stats.Duration = time.Since(start)
	return stats
}
