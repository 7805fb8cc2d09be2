// Command hivm loads one or more hivm source modules, links them into a
// single Machine, and runs a named entry function. It mirrors teacher
// main.go's file-list-via-os.Args convention and vm/run.go's GOGC handling,
// generalized from a single monolithic CPU program image to many modules
// loaded in sequence.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"hivm/compiler"
	"hivm/parser"
	"hivm/vm"
)

var (
	debugFlag = flag.Bool("debug", false, "enter single-step debug mode once the entry function starts")
	entryFlag = flag.String("entry", "", "qualified entry function to run, e.g. main.main (defaults to the last loaded module's \"main\" function)")
)

func main() {
	flag.Parse()

	// Like teacher main.go, anything left over after flag parsing is read
	// as the list of source files to load, in order.
	files := flag.Args()
	if len(files) == 0 {
		fmt.Println("Usage: hivm [-debug] [-entry module.function] <file 1> [file 2] ... [file N]")
		os.Exit(1)
	}

	machine := vm.NewMachine(os.Stdout)
	machine.RegisterStandardPrimitives()

	var lastModule string
	for _, path := range files {
		src, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("hivm: reading %s: %v", path, err)
		}

		mod, err := parser.Parse(string(src))
		if err != nil {
			log.Fatalf("hivm: parsing %s: %v", path, err)
		}
		if err := mod.Validate(); err != nil {
			log.Fatalf("hivm: %s: %v", path, err)
		}

		cm, err := compiler.Compile(mod)
		if err != nil {
			log.Fatalf("hivm: compiling %s: %v", path, err)
		}
		if err := vm.Load(machine, cm); err != nil {
			log.Fatalf("hivm: loading %s: %v", path, err)
		}
		lastModule = cm.Name
		log.Printf("hivm: loaded %s (%d functions, %d consts, %d statics)",
			cm.Name, len(cm.Functions), len(cm.Consts), len(cm.Statics))
	}

	entry := *entryFlag
	if entry == "" {
		if lastModule == "" {
			log.Fatal("hivm: no modules loaded")
		}
		entry = lastModule + ".main"
	}

	symbol, ok := machine.Symbols.Lookup(entry)
	if !ok {
		log.Fatalf("hivm: entry point %q not found", entry)
	}
	if symbol.Kind != vm.SymbolDefn {
		log.Fatalf("hivm: entry point %q is a %s, not a function", entry, symbol.Kind)
	}

	var err error
	if *debugFlag {
		err = machine.RunDebug(symbol.DefnAddr)
	} else {
		err = machine.Run(symbol.DefnAddr)
	}
	if err != nil {
		log.Fatalf("hivm: %v", err)
	}
}
