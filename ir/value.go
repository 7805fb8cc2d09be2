package ir

// Value is what appears on the right of an assignment, or as a call's return
// payload: a bare Name, a Path, an anonymous function literal, or a call.
type Value interface {
	isValue()
}

// ValueName is a reference to a local or parameter by bare, unsigiled name.
type ValueName struct {
	Name Name
}

// ValuePath is a reference by dotted path. The compiler accepts it only when
// the final segment is a constant (@name); call targets are ValueCall paths.
type ValuePath struct {
	Path Path
}

// ValueFn is an anonymous function literal; its address is pushed for later use.
type ValueFn struct {
	Params []Name
	Body   BasicBlock
}

// ValueCall invokes the function named by Path, passing the named arguments in order.
type ValueCall struct {
	Path Path
	Args []Name
}

func (ValueName) isValue() {}
func (ValuePath) isValue() {}
func (ValueFn) isValue()   {}
func (ValueCall) isValue() {}

// Literal is a constant-constructor argument: a string, an integer, or null.
type Literal interface {
	isLiteral()
}

type LiteralString struct{ Value string }
type LiteralInt struct{ Value int64 }
type LiteralNull struct{}

func (LiteralString) isLiteral() {}
func (LiteralInt) isLiteral()    {}
func (LiteralNull) isLiteral()   {}
