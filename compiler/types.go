// Package compiler lowers a validated ir.Module into a CompiledModule: a flat
// byte stream plus the side tables (functions, consts, statics, relocations)
// the vm package's loader needs to splice it into a running machine.
package compiler

import "hivm/ir"

// ConstEntry is one entry of a CompiledModule's consts table: a local name
// bound to whatever a primitive constructor produces at load time.
type ConstEntry struct {
	Name        ir.Name
	Constructor string
	Argument    ir.Literal // nil if the const takes no argument
}

// FunctionEntry names a Defn's entry point, already qualified as
// "module.name" at compile time.
type FunctionEntry struct {
	Name   string
	Offset int
}

// RelocationTarget is what a Relocation resolves to once it leaves the
// compiler. InternalAddress is already a module-local byte offset; the other
// two carry an unresolved name for the loader's symbol table lookup.
type RelocationTarget interface {
	isRelocationTarget()
}

type InternalAddress struct{ Offset uint64 }
type ExternalFunctionPath struct{ Path string }
type ConstPath struct{ Path string }

func (InternalAddress) isRelocationTarget()      {}
func (ExternalFunctionPath) isRelocationTarget() {}
func (ConstPath) isRelocationTarget()            {}

// Relocation names a byte offset within CompiledModule.Code, at the start of
// an address-typed operand, along with what should be written there.
type Relocation struct {
	SiteOffset int
	Target     RelocationTarget
}

// CompiledModule is the output of Compile: a module's code plus everything
// the loader needs to splice it into a vm.Machine.
type CompiledModule struct {
	Name        string
	Code        []byte
	Functions   []FunctionEntry
	Consts      []ConstEntry
	Statics     []string
	Relocations []Relocation
}
