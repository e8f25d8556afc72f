package linker

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by every operation before Initialize.
var ErrNotInitialized = errors.New("linker: not initialized")

// LinkError reports a library or symbol the platform loader could not
// provide. Detail is the loader's diagnostic string when it gave one.
type LinkError struct {
	Op     string // "open", "lookup" or "close"
	Name   string
	Detail string
}

func (e *LinkError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("linker: %s %s failed", e.Op, e.Name)
	}
	return fmt.Sprintf("linker: %s %s failed: %s", e.Op, e.Name, e.Detail)
}

// UnresolvedSymbolError reports a native method symbol found in no search
// scope.
type UnresolvedSymbolError struct {
	Symbol string
	Method string
}

func (e *UnresolvedSymbolError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("linker: unresolved symbol %s", e.Symbol)
	}
	return fmt.Sprintf("linker: unresolved symbol %s for native method %s", e.Symbol, e.Method)
}
