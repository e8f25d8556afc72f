package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// Validate checks c against the embedded CUE schema.
func Validate(c *Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := ctx.Encode(c)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return err
	}

	h := c.Handles
	if h.MaxLocal > 0 && h.MaxLocal < h.LocalCapacity {
		return fmt.Errorf("handles.max-local %d is below local-capacity %d", h.MaxLocal, h.LocalCapacity)
	}
	if h.MaxGlobal > 0 && h.MaxGlobal < h.GlobalCapacity {
		return fmt.Errorf("handles.max-global %d is below global-capacity %d", h.MaxGlobal, h.GlobalCapacity)
	}
	return nil
}
