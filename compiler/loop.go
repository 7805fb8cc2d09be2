package compiler

import (
	"hivm/bytecode"
	"hivm/ir"
)

// compileIf lowers If/Then[/Else] per §4.3: the condition block, a
// BranchIfNot to the else branch (or straight to the end, if there is no
// else), the then-body, and a trailing Noop as the stable branch target.
func (fc *funcCtx) compileIf(st ir.StatementIf) error {
	if err := fc.compileBlock(st.Condition); err != nil {
		return err
	}

	end := fc.c.newHandle()

	if st.Then.Else != nil {
		elseLabel := fc.c.newHandle()
		fc.emitBranchIfNotTo(elseLabel)
		if err := fc.compileBlock(st.Then.Body); err != nil {
			return err
		}
		fc.emitJump(end)
		fc.markHandle(elseLabel)
		fc.emit(bytecode.Instr{Op: bytecode.Noop})
		if err := fc.compileBlock(st.Then.Else.Body); err != nil {
			return err
		}
	} else {
		fc.emitBranchIfNotTo(end)
		if err := fc.compileBlock(st.Then.Body); err != nil {
			return err
		}
	}

	fc.markHandle(end)
	fc.emit(bytecode.Instr{Op: bytecode.Noop})
	return nil
}

// compileWhile lowers a pre-test loop: the condition is (re-)evaluated at
// loopTop, BranchIfNot exits to loopEnd, the body (if any) runs, and an
// unconditional jump returns to loopTop.
func (fc *funcCtx) compileWhile(st ir.StatementWhile) error {
	loopTop := fc.c.newHandle()
	fc.markHandle(loopTop)
	if err := fc.compileBlock(st.Condition); err != nil {
		return err
	}

	loopEnd := fc.c.newHandle()
	fc.emitBranchIfNotTo(loopEnd)

	fc.loopEnds = append(fc.loopEnds, loopEnd)
	var bodyErr error
	if st.Do != nil {
		bodyErr = fc.compileBlock(st.Do.Body)
	}
	fc.loopEnds = fc.loopEnds[:len(fc.loopEnds)-1]
	if bodyErr != nil {
		return bodyErr
	}

	fc.emitJump(loopTop)
	fc.markHandle(loopEnd)
	fc.emit(bytecode.Instr{Op: bytecode.Noop})
	return nil
}

// compileDoPostTest lowers a post-test loop: the body runs first, then the
// condition, then a direct BranchIfNot back to loopTop repeats the loop
// while the condition holds.
func (fc *funcCtx) compileDoPostTest(st ir.StatementDo) error {
	loopTop := fc.c.newHandle()
	fc.markHandle(loopTop)

	loopEnd := fc.c.newHandle()
	fc.loopEnds = append(fc.loopEnds, loopEnd)
	bodyErr := fc.compileBlock(st.Body)
	fc.loopEnds = fc.loopEnds[:len(fc.loopEnds)-1]
	if bodyErr != nil {
		return bodyErr
	}

	if err := fc.compileBlock(st.While.Condition); err != nil {
		return err
	}
	fc.emitBranchIfNotTo(loopTop)

	fc.markHandle(loopEnd)
	fc.emit(bytecode.Instr{Op: bytecode.Noop})
	return nil
}

// compileDoOnce lowers a bare Do with no trailing While: its body runs once,
// unconditionally, with no branch at all.
func (fc *funcCtx) compileDoOnce(st ir.StatementDo) error {
	return fc.compileBlock(st.Body)
}

func (fc *funcCtx) compileBreak() error {
	if len(fc.loopEnds) == 0 {
		return ErrBreakOutsideLoop
	}
	fc.emitJump(fc.loopEnds[len(fc.loopEnds)-1])
	return nil
}
