package vm

import (
	"errors"
	"fmt"
)

var (
	ErrStackUnderflow              = errors.New("vm: stack underflow")
	ErrUnknownOpcode                = errors.New("vm: unknown opcode")
	ErrLocalIndexOutOfRange        = errors.New("vm: local index out of range")
	ErrArgIndexOutOfRange          = errors.New("vm: argument index out of range")
	ErrReturnWithEmptyCallStack    = errors.New("vm: return with empty call stack")
	ErrUnresolvedSymbol            = errors.New("vm: unresolved symbol")
	ErrWrongSymbolKind             = errors.New("vm: symbol resolved to the wrong kind")
	ErrConstructorDidNotProduceValue = errors.New("vm: constructor did not produce exactly one value")
)

// UnresolvedSymbolError names the path a relocation or constructor lookup
// could not find in the symbol table.
type UnresolvedSymbolError struct {
	Path string
}

func (e *UnresolvedSymbolError) Error() string {
	return fmt.Sprintf("vm: unresolved symbol %q", e.Path)
}
func (e *UnresolvedSymbolError) Unwrap() error { return ErrUnresolvedSymbol }

// WrongSymbolKindError reports a symbol that resolved, but not to the kind
// the caller needed (e.g. a constant constructor path that names a Defn).
type WrongSymbolKindError struct {
	Path             string
	Expected, Actual SymbolKind
}

func (e *WrongSymbolKindError) Error() string {
	return fmt.Sprintf("vm: symbol %q is a %s, want %s", e.Path, e.Actual, e.Expected)
}
func (e *WrongSymbolKindError) Unwrap() error { return ErrWrongSymbolKind }

// RuntimeError wraps a sentinel run-time error with the instruction pointer
// at which it was detected, so callers can inspect the failing machine state.
type RuntimeError struct {
	IP  uint64
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("vm: at ip=%d: %v", e.IP, e.Err)
}
func (e *RuntimeError) Unwrap() error { return e.Err }
