package compiler

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateLocal       = errors.New("compiler: duplicate local")
	ErrUnknownLocal         = errors.New("compiler: unknown local")
	ErrUnsupportedValueForm = errors.New("compiler: unsupported value form")
	ErrModRedefinition      = errors.New("compiler: module redefined")
	ErrBreakOutsideLoop     = errors.New("compiler: break outside loop")
)

// DuplicateLocalError reports the name a locals scan found declared twice
// within one function.
type DuplicateLocalError struct{ Name string }

func (e *DuplicateLocalError) Error() string {
	return fmt.Sprintf("compiler: duplicate local %q", e.Name)
}
func (e *DuplicateLocalError) Unwrap() error { return ErrDuplicateLocal }

// UnknownLocalError reports a name that resolves to neither a discovered
// local nor a declared parameter.
type UnknownLocalError struct{ Name string }

func (e *UnknownLocalError) Error() string {
	return fmt.Sprintf("compiler: unknown local %q", e.Name)
}
func (e *UnknownLocalError) Unwrap() error { return ErrUnknownLocal }
