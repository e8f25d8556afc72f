// boundary CLI - inspect the native function table and resolve symbols
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/boundary/config"
	"github.com/chazu/boundary/heap"
	"github.com/chazu/boundary/linker"
	"github.com/chazu/boundary/native"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	configDir := flag.String("config", ".", "Directory to search upward for boundary.toml")
	showLayout := flag.Bool("layout", false, "Print the function table layout")
	cborOut := flag.String("cbor", "", "Write the canonical CBOR layout to `file`")
	checkIn := flag.String("check", "", "Check a CBOR layout `file` against this runtime")
	resolve := flag.String("resolve", "", "Resolve `lib:symbol` through the platform loader")
	verbose := flag.Int("v", -1, "Log verbosity (0 = warnings, 1 = info, 2 = debug); defaults to [trace] verbosity")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: boundary [options]\n\n")
		fmt.Fprintf(os.Stderr, "Builds the native function table and reports on it.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  boundary -layout                 # List every slot\n")
		fmt.Fprintf(os.Stderr, "  boundary -cbor table.cbor        # Save the layout\n")
		fmt.Fprintf(os.Stderr, "  boundary -check table.cbor       # Compare a saved layout\n")
		fmt.Fprintf(os.Stderr, "  boundary -resolve libm.so.6:cos  # Look up a symbol\n")
	}
	flag.Parse()

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose < 0 {
		*verbose = cfg.Trace.Verbosity
	}
	commonlog.Configure(*verbose, nil)

	var l *linker.Linker
	if *resolve != "" {
		if l, err = newPlatformLinker(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	u := heap.NewUniverse()
	vm, err := native.NewVM(cfg, u, l, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	env, rc := vm.AttachCurrentThread("main")
	if rc != native.OK {
		fmt.Fprintf(os.Stderr, "Error: attach failed with status %d\n", rc)
		os.Exit(1)
	}

	err = run(vm, env, *showLayout, *cborOut, *checkIn, *resolve)
	vm.DetachCurrentThread(env)
	if cerr := vm.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(vm *native.VM, env *native.Env, showLayout bool, cborOut, checkIn, resolve string) error {
	layout := vm.Layout()
	fmt.Printf("function table: %d slots, version %#x\n", len(layout.Slots), env.GetVersion())

	if showLayout {
		for _, s := range layout.Slots {
			fmt.Printf("%4d  %-8s %s\n", s.Index, s.Source, s.Name)
		}
	}

	if cborOut != "" {
		data, err := native.MarshalLayout(layout)
		if err != nil {
			return err
		}
		if err := os.WriteFile(cborOut, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", cborOut, len(data))
	}

	if checkIn != "" {
		data, err := os.ReadFile(checkIn)
		if err != nil {
			return err
		}
		want, err := native.UnmarshalLayout(data)
		if err != nil {
			return err
		}
		if err := native.CheckLayout(want, layout); err != nil {
			return err
		}
		fmt.Printf("%s: compatible with this runtime\n", checkIn)
	}

	if resolve != "" {
		lib, sym, ok := strings.Cut(resolve, ":")
		if !ok || sym == "" {
			return fmt.Errorf("-resolve wants lib:symbol, got %q", resolve)
		}
		loaded, err := vm.LoadLibrary(vm.Universe().System, lib)
		if err != nil {
			return err
		}
		addr, err := vm.Linker().LookupSymbol(loaded.Handle, sym)
		if err != nil {
			return err
		}
		fmt.Printf("%s in %s: %s\n", sym, loaded.Path, addr)
	}
	return nil
}
