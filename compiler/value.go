package compiler

import (
	"fmt"

	"hivm/bytecode"
	"hivm/ir"
)

// funcCtx holds the state needed while lowering one function body: its
// locals/params name→slot maps and the stack of enclosing loops' loopEnd
// handles, consulted by Break.
type funcCtx struct {
	c          *compiler
	localIndex map[ir.Name]int
	paramIndex map[ir.Name]int
	numLocals  int
	loopEnds   []handle
}

func (fc *funcCtx) emit(instr bytecode.Instr) {
	fc.c.code = bytecode.Encode(fc.c.code, instr)
}

func (fc *funcCtx) emitFnEntry(numLocals int) {
	fc.emit(bytecode.Instr{Op: bytecode.FnEntry, Locals: uint16(numLocals)})
}

// markHandle records h as resolving to the offset of the next instruction
// about to be emitted. Used for branch targets (a Noop) and loop tops.
func (fc *funcCtx) markHandle(h handle) {
	fc.c.handleOffset[h] = uint64(len(fc.c.code))
}

func (fc *funcCtx) recordReloc(siteOffset int, target pendingTarget) {
	fc.c.pendingRelocs = append(fc.c.pendingRelocs, pendingReloc{siteOffset: siteOffset, target: target})
}

func (fc *funcCtx) emitBranchIfNotTo(h handle) {
	site := len(fc.c.code) + bytecode.BranchIfNot.AddrFieldOffset(0)
	fc.recordReloc(site, pendingInternal{h})
	fc.emit(bytecode.Instr{Op: bytecode.BranchIfNot, Addr: 0})
}

func (fc *funcCtx) emitPushAddressFn(h handle) {
	site := len(fc.c.code) + bytecode.PushAddress.AddrFieldOffset(0)
	fc.recordReloc(site, pendingInternal{h})
	fc.emit(bytecode.Instr{Op: bytecode.PushAddress, Addr: 0})
}

func (fc *funcCtx) emitLoadConst(path string) {
	site := len(fc.c.code) + bytecode.LoadConst.AddrFieldOffset(0)
	fc.recordReloc(site, pendingConstPath{path})
	fc.emit(bytecode.Instr{Op: bytecode.LoadConst, Addr: 0})
}

func (fc *funcCtx) emitCall(path string, numArgs uint8) {
	site := len(fc.c.code) + bytecode.Call.AddrFieldOffset(0)
	fc.recordReloc(site, pendingExternalPath{path})
	fc.emit(bytecode.Instr{Op: bytecode.Call, Addr: 0, NumArgs: numArgs})
}

func (fc *funcCtx) emitInvoke(numArgs uint8) {
	fc.emit(bytecode.Instr{Op: bytecode.Invoke, NumArgs: numArgs})
}

// localCallTarget reports whether path is a bare, single-segment, unsigiled
// name bound to a local or parameter in the enclosing function — i.e. a
// previously-assigned fn value (see ir.ValueFn) rather than a module-level
// function reached by a relocatable path. Per spec.md §4.5, such a call must
// lower to Invoke: the callee address is only known at run time, popped off
// the stack rather than baked into the instruction as a Call relocation.
func (fc *funcCtx) localCallTarget(p ir.Path) (ir.Name, bool) {
	segs := p.Segments()
	if len(segs) != 1 || segs[0].Sigil() != ir.SigilNone {
		return "", false
	}
	name := segs[0]
	if _, ok := fc.localIndex[name]; ok {
		return name, true
	}
	if _, ok := fc.paramIndex[name]; ok {
		return name, true
	}
	return "", false
}

// compileCall lowers a call-shaped path/args pair, picking Invoke over Call
// when the target resolves to a local/param holding a function value.
func (fc *funcCtx) compileCall(path ir.Path, args []ir.Name) error {
	if target, ok := fc.localCallTarget(path); ok {
		if err := fc.emitNameRef(target); err != nil {
			return err
		}
		for _, arg := range args {
			if err := fc.emitNameRef(arg); err != nil {
				return err
			}
		}
		fc.emitInvoke(uint8(len(args)))
		return nil
	}
	for _, arg := range args {
		if err := fc.emitNameRef(arg); err != nil {
			return err
		}
	}
	fc.emitCall(path.String(), uint8(len(args)))
	return nil
}

// emitJump realizes an unconditional control transfer. There is no bytecode
// op named Jmp: a freshly-pushed, never-patched address box is always a
// non-null pointer, so pushing one and following it with BranchIfNot
// (which transfers on a non-null pop) always takes the branch.
func (fc *funcCtx) emitJump(h handle) {
	fc.emit(bytecode.Instr{Op: bytecode.PushAddress, Addr: 1})
	fc.emitBranchIfNotTo(h)
}

func (fc *funcCtx) emitNameRef(name ir.Name) error {
	if idx, ok := fc.localIndex[name]; ok {
		fc.emit(bytecode.Instr{Op: bytecode.GetLocal, Idx: uint16(idx)})
		return nil
	}
	if idx, ok := fc.paramIndex[name]; ok {
		fc.emit(bytecode.Instr{Op: bytecode.GetArg, ArgIdx: uint8(idx)})
		return nil
	}
	return &UnknownLocalError{Name: string(name)}
}

func (fc *funcCtx) compileValue(v ir.Value) error {
	switch val := v.(type) {
	case ir.ValueName:
		return fc.emitNameRef(val.Name)
	case ir.ValuePath:
		if !val.Path.IsConstRef() {
			return fmt.Errorf("%w: path %q does not reference a constant", ErrUnsupportedValueForm, val.Path.String())
		}
		fc.emitLoadConst(val.Path.String())
		return nil
	case ir.ValueFn:
		h := fc.c.newHandle()
		fc.c.worklist = append(fc.c.worklist, pendingFunction{handle: h, params: val.Params, body: val.Body})
		fc.emitPushAddressFn(h)
		return nil
	case ir.ValueCall:
		return fc.compileCall(val.Path, val.Args)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedValueForm, v)
	}
}

func (fc *funcCtx) compileBlock(b ir.BasicBlock) error {
	for _, st := range b.Stmts {
		if err := fc.compileStatement(st); err != nil {
			return err
		}
	}
	return nil
}

func (fc *funcCtx) compileStatement(st ir.Statement) error {
	switch s := st.(type) {
	case ir.StatementMod, ir.StatementExtern, ir.StatementConst, ir.StatementStatic, ir.StatementDefn:
		return fmt.Errorf("compiler: %T is not valid inside a function body", st)
	case ir.StatementLocal:
		return nil
	case ir.StatementAssignment:
		if err := fc.compileValue(s.RValue); err != nil {
			return err
		}
		idx, ok := fc.localIndex[s.LValue]
		if !ok {
			return &UnknownLocalError{Name: string(s.LValue)}
		}
		fc.emit(bytecode.Instr{Op: bytecode.SetLocal, Idx: uint16(idx)})
		return nil
	case ir.StatementReturn:
		if s.Value != nil {
			if err := fc.compileValue(s.Value); err != nil {
				return err
			}
		}
		fc.emit(bytecode.Instr{Op: bytecode.Return})
		return nil
	case ir.StatementCall:
		if err := fc.compileCall(s.Path, s.Args); err != nil {
			return err
		}
		fc.emit(bytecode.Instr{Op: bytecode.Pop})
		return nil
	case ir.StatementTest:
		return fc.emitNameRef(s.Name)
	case ir.StatementIf:
		return fc.compileIf(s)
	case ir.StatementThen, ir.StatementElse:
		return nil
	case ir.StatementWhile:
		return fc.compileWhile(s)
	case ir.StatementDo:
		if s.While != nil {
			return fc.compileDoPostTest(s)
		}
		return fc.compileDoOnce(s)
	case ir.StatementBreak:
		return fc.compileBreak()
	default:
		return fmt.Errorf("compiler: unhandled statement %T", st)
	}
}
