package compiler

import (
	"fmt"

	"hivm/ir"
)

// handle is a compile-time identity for an instruction whose address operand
// (or whose own entry point, for a function) can't be known until the rest
// of the module has been emitted. Handles are small monotonic integers
// rather than Go pointer identity, so they survive being stored in slices
// and maps without == surprises.
type handle uint64

type pendingFunction struct {
	handle handle
	name   string // "" for an anonymous Fn literal
	params []ir.Name
	body   ir.BasicBlock
}

type pendingTarget interface{ isPendingTarget() }

type pendingInternal struct{ h handle }
type pendingExternalPath struct{ path string }
type pendingConstPath struct{ path string }

func (pendingInternal) isPendingTarget()      {}
func (pendingExternalPath) isPendingTarget()  {}
func (pendingConstPath) isPendingTarget()     {}

type pendingReloc struct {
	siteOffset int
	target     pendingTarget
}

// compiler accumulates state across the whole module: one shared code
// buffer that every function's bytecode is appended to in discovery order,
// a worklist of functions still to compile (named Defns seeded up front,
// anonymous Fn literals appended as their enclosing body is compiled), and
// the relocation list in its pre-resolution form.
type compiler struct {
	moduleName string

	code      []byte
	functions []FunctionEntry
	consts    []ConstEntry
	statics   []string

	nextHandle   handle
	handleOffset map[handle]uint64
	pendingRelocs []pendingReloc

	worklist []pendingFunction
}

func (c *compiler) newHandle() handle {
	h := c.nextHandle
	c.nextHandle++
	return h
}

// Compile lowers a validated module into a CompiledModule. m must already
// satisfy ir.Module.Validate; Compile re-checks it anyway since a caller
// skipping that step is a programming error, not something worth a silent
// partial compile.
func Compile(m ir.Module) (*CompiledModule, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	c := &compiler{handleOffset: make(map[handle]uint64)}
	c.moduleName = m.ModPath().String()

	for _, st := range m.Stmts {
		switch s := st.(type) {
		case ir.StatementMod:
			// captured above via m.ModPath(); nothing to emit.
		case ir.StatementExtern:
			// informative only at this stage; resolution happens at load time.
		case ir.StatementConst:
			c.consts = append(c.consts, ConstEntry{
				Name:        s.Name,
				Constructor: s.Constructor.String(),
				Argument:    s.Argument,
			})
		case ir.StatementStatic:
			c.statics = append(c.statics, string(s.Name))
		case ir.StatementDefn:
			h := c.newHandle()
			c.worklist = append(c.worklist, pendingFunction{
				handle: h,
				name:   c.moduleName + "." + string(s.Name),
				params: s.Params,
				body:   s.Body,
			})
		}
	}

	for len(c.worklist) > 0 {
		pf := c.worklist[0]
		c.worklist = c.worklist[1:]
		if err := c.compileFunction(pf); err != nil {
			return nil, err
		}
	}

	relocations, err := c.resolveRelocations()
	if err != nil {
		return nil, err
	}

	return &CompiledModule{
		Name:        c.moduleName,
		Code:        c.code,
		Functions:   c.functions,
		Consts:      c.consts,
		Statics:     c.statics,
		Relocations: relocations,
	}, nil
}

func (c *compiler) resolveRelocations() ([]Relocation, error) {
	relocations := make([]Relocation, 0, len(c.pendingRelocs))
	for _, pr := range c.pendingRelocs {
		switch t := pr.target.(type) {
		case pendingInternal:
			off, ok := c.handleOffset[t.h]
			if !ok {
				return nil, fmt.Errorf("compiler: internal handle %d never resolved", t.h)
			}
			relocations = append(relocations, Relocation{SiteOffset: pr.siteOffset, Target: InternalAddress{Offset: off}})
		case pendingExternalPath:
			relocations = append(relocations, Relocation{SiteOffset: pr.siteOffset, Target: ExternalFunctionPath{Path: t.path}})
		case pendingConstPath:
			relocations = append(relocations, Relocation{SiteOffset: pr.siteOffset, Target: ConstPath{Path: t.path}})
		}
	}
	return relocations, nil
}

func (c *compiler) compileFunction(pf pendingFunction) error {
	locals, localIndex, err := discoverLocals(pf.body)
	if err != nil {
		return err
	}
	paramIndex := make(map[ir.Name]int, len(pf.params))
	for i, p := range pf.params {
		paramIndex[p] = i
	}

	c.handleOffset[pf.handle] = uint64(len(c.code))
	if pf.name != "" {
		c.functions = append(c.functions, FunctionEntry{Name: pf.name, Offset: len(c.code)})
	}

	fc := &funcCtx{c: c, localIndex: localIndex, paramIndex: paramIndex, numLocals: len(locals)}
	fc.emitFnEntry(len(locals))
	return fc.compileBlock(pf.body)
}

// discoverLocals walks a function body once, in source order, collecting
// every name introduced by a `local` statement or a `:=` assignment. The
// walk descends into If/Then/Else and While/Do bodies (they share the
// enclosing function's locals) but never into a nested Fn literal's body,
// which gets its own independent locals scan when it is compiled.
func discoverLocals(body ir.BasicBlock) ([]ir.Name, map[ir.Name]int, error) {
	locals := make([]ir.Name, 0)
	index := make(map[ir.Name]int)

	add := func(name ir.Name) error {
		if _, ok := index[name]; ok {
			return &DuplicateLocalError{Name: string(name)}
		}
		index[name] = len(locals)
		locals = append(locals, name)
		return nil
	}

	var walk func(ir.BasicBlock) error
	walk = func(b ir.BasicBlock) error {
		for _, st := range b.Stmts {
			switch s := st.(type) {
			case ir.StatementLocal:
				if err := add(s.Name); err != nil {
					return err
				}
			case ir.StatementAssignment:
				if s.Op == ir.OpAllocateAndAssign {
					if err := add(s.LValue); err != nil {
						return err
					}
				}
			case ir.StatementIf:
				if err := walk(s.Condition); err != nil {
					return err
				}
				if err := walk(s.Then.Body); err != nil {
					return err
				}
				if s.Then.Else != nil {
					if err := walk(s.Then.Else.Body); err != nil {
						return err
					}
				}
			case ir.StatementWhile:
				if err := walk(s.Condition); err != nil {
					return err
				}
				if s.Do != nil {
					if err := walk(s.Do.Body); err != nil {
						return err
					}
				}
			case ir.StatementDo:
				if err := walk(s.Body); err != nil {
					return err
				}
				if s.While != nil {
					if err := walk(s.While.Condition); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	if err := walk(body); err != nil {
		return nil, nil, err
	}
	return locals, index, nil
}
