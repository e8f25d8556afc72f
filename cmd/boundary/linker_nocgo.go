//go:build !cgo

package main

import (
	"errors"

	"github.com/chazu/boundary/config"
	"github.com/chazu/boundary/linker"
)

func newPlatformLinker(*config.Config) (*linker.Linker, error) {
	return nil, errors.New("symbol resolution needs a cgo build")
}
