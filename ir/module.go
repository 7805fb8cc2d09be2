package ir

import "errors"

// Module is an ordered sequence of top-level statements.
type Module struct {
	Stmts []Statement
}

var (
	// ErrInvalidTopLevelStatement is returned when a top-level statement is
	// anything other than Mod, Extern, Const, Static, or Defn.
	ErrInvalidTopLevelStatement = errors.New("ir: invalid top-level statement")
	// ErrMissingModStatement is returned when a module has no Mod statement.
	ErrMissingModStatement = errors.New("ir: module has no mod statement")
	// ErrMoreThanOneModStatement is returned when a module has more than one Mod statement.
	ErrMoreThanOneModStatement = errors.New("ir: module has more than one mod statement")
)

// Validate checks the top-level shape required by spec: exactly one Mod
// statement, and every top-level statement is one of Mod, Extern, Const,
// Static, or Defn.
func (m Module) Validate() error {
	seenMod := false
	for _, stmt := range m.Stmts {
		switch stmt.(type) {
		case StatementMod:
			if seenMod {
				return ErrMoreThanOneModStatement
			}
			seenMod = true
		case StatementExtern, StatementConst, StatementStatic, StatementDefn:
			// allowed
		default:
			return ErrInvalidTopLevelStatement
		}
	}
	if !seenMod {
		return ErrMissingModStatement
	}
	return nil
}

// ModPath returns the module's declared path. Validate should be called first;
// ModPath panics if no Mod statement is present.
func (m Module) ModPath() Path {
	for _, stmt := range m.Stmts {
		if mod, ok := stmt.(StatementMod); ok {
			return mod.Path
		}
	}
	panic("ir: Module.ModPath called on a module with no mod statement")
}
