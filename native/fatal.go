package native

import (
	"fmt"
	"os"
	"sync"
)

// FatalError is an unrecoverable violation of a boundary invariant: a
// missing anchor, a gap in the function table, a corrupted handle pool.
type FatalError struct {
	Msg string
}

func (e *FatalError) Error() string { return "fatal: " + e.Msg }

// AbortHandler is called with every fatal error. The default handler logs
// the error and exits the process.
type AbortHandler func(*FatalError)

var (
	abortMu sync.RWMutex
	abort   AbortHandler = defaultAbort
)

func defaultAbort(e *FatalError) {
	log.Criticalf("%s", e.Msg)
	os.Exit(134)
}

// SetAbortHandler replaces the abort handler and returns the previous one.
// If the handler returns, the fatal error unwinds the calling goroutine as
// a panic that no upcall converts into a pending exception.
func SetAbortHandler(h AbortHandler) AbortHandler {
	abortMu.Lock()
	defer abortMu.Unlock()
	prev := abort
	if h == nil {
		h = defaultAbort
	}
	abort = h
	return prev
}

func fatal(format string, args ...any) {
	e := &FatalError{Msg: fmt.Sprintf(format, args...)}
	abortMu.RLock()
	h := abort
	abortMu.RUnlock()
	h(e)
	panic(e)
}
