//go:build cgo

package main

import (
	"github.com/chazu/boundary/config"
	"github.com/chazu/boundary/linker"
	"github.com/chazu/boundary/memory"
)

// newPlatformLinker returns a linker bound to the process's own dlopen.
func newPlatformLinker(cfg *config.Config) (*linker.Linker, error) {
	scratch, err := memory.NewScratch(cfg.Linker.ScratchSize)
	if err != nil {
		return nil, err
	}
	l := linker.New(linker.Native{}, scratch, linker.Options{
		SearchPaths: cfg.LibraryPaths(),
		Trace:       cfg.Trace.Linker,
	})
	if err := l.Initialize(linker.NativeBootstrap()); err != nil {
		scratch.Close()
		return nil, err
	}
	if cfg.Linker.SupportLibrary != "" {
		if err := l.LoadSupportLibrary(cfg.Linker.SupportLibrary); err != nil {
			return nil, err
		}
	}
	return l, nil
}
