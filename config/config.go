// Package config handles boundary.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("boundary.config")

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "boundary.toml"

// Version values native code may request.
const (
	Version1_1 = 0x00010001
	Version1_2 = 0x00010002
	Version1_4 = 0x00010004
	Version1_6 = 0x00010006
	Version1_8 = 0x00010008
)

// Config represents a boundary.toml file.
type Config struct {
	VM      VMConfig      `toml:"vm" json:"vm"`
	Trace   TraceConfig   `toml:"trace" json:"trace"`
	Handles HandlesConfig `toml:"handles" json:"handles"`
	Linker  LinkerConfig  `toml:"linker" json:"linker"`

	// Dir is the directory containing the boundary.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// VMConfig holds process-wide settings.
type VMConfig struct {
	Version int `toml:"version" json:"version"`
}

// TraceConfig gates diagnostic output.
type TraceConfig struct {
	Upcalls     bool `toml:"upcalls" json:"upcalls"`
	Invocations bool `toml:"invocations" json:"invocations"`
	Linker      bool `toml:"linker" json:"linker"`
	Verbosity   int  `toml:"verbosity" json:"verbosity"`
}

// HandlesConfig sizes the handle pools. A zero maximum means unbounded.
type HandlesConfig struct {
	LocalCapacity  int `toml:"local-capacity" json:"local-capacity"`
	GlobalCapacity int `toml:"global-capacity" json:"global-capacity"`
	MaxLocal       int `toml:"max-local" json:"max-local"`
	MaxGlobal      int `toml:"max-global" json:"max-global"`
}

// LinkerConfig configures native library loading.
type LinkerConfig struct {
	SupportLibrary string   `toml:"support-library" json:"support-library"`
	LibraryPath    []string `toml:"library-path" json:"library-path"`
	ScratchSize    int      `toml:"scratch-size" json:"scratch-size"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.VM.Version == 0 {
		c.VM.Version = Version1_6
	}
	if c.Handles.LocalCapacity == 0 {
		c.Handles.LocalCapacity = 32
	}
	if c.Handles.GlobalCapacity == 0 {
		c.Handles.GlobalCapacity = 64
	}
	if c.Linker.ScratchSize == 0 {
		c.Linker.ScratchSize = 4096
	}
	if c.Linker.LibraryPath == nil {
		c.Linker.LibraryPath = []string{}
	}
}

// Parse decodes and validates configuration text. name is used in errors.
func Parse(name string, data []byte) (*Config, error) {
	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", name, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", name, key)
	}

	// Defaults
	c.applyDefaults()

	if err := Validate(&c); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &c, nil
}

// Load parses a boundary.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a boundary.toml file and loads
// it. Returns the default configuration if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// LibraryPaths returns the configured search path, resolving relative
// entries against the configuration directory.
func (c *Config) LibraryPaths() []string {
	var paths []string
	for _, p := range c.Linker.LibraryPath {
		if !filepath.IsAbs(p) && c.Dir != "" {
			p = filepath.Join(c.Dir, p)
		}
		paths = append(paths, p)
	}
	return paths
}
