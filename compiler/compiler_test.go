package compiler

import (
	"errors"
	"testing"

	"hivm/bytecode"
	"hivm/ir"
)

func mustPath(t *testing.T, s string) ir.Path {
	t.Helper()
	p, err := ir.PathFromString(s)
	if err != nil {
		t.Fatalf("PathFromString(%q): %v", s, err)
	}
	return p
}

func decodeAll(t *testing.T, code []byte) []bytecode.Instr {
	t.Helper()
	var out []bytecode.Instr
	offset := 0
	for offset < len(code) {
		instr, next, err := bytecode.Decode(code, offset)
		if err != nil {
			t.Fatalf("decode at %d: %v", offset, err)
		}
		out = append(out, instr)
		offset = next
	}
	return out
}

func ops(instrs []bytecode.Instr) []bytecode.Op {
	out := make([]bytecode.Op, len(instrs))
	for i, instr := range instrs {
		out[i] = instr.Op
	}
	return out
}

// Scenario 1: empty defn compiles.
func TestEmptyDefnCompiles(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementDefn{
			Name: "a",
			Body: ir.BasicBlock{Stmts: []ir.Statement{ir.StatementReturn{}}},
		},
	}}

	cm, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(cm.Code) == 0 {
		t.Fatalf("expected non-empty code")
	}
	instrs := decodeAll(t, cm.Code)
	want := []bytecode.Op{bytecode.FnEntry, bytecode.Return}
	if got := ops(instrs); !equalOps(got, want) {
		t.Fatalf("got ops %v, want %v", got, want)
	}
	if instrs[0].Locals != 0 {
		t.Fatalf("FnEntry locals = %d, want 0", instrs[0].Locals)
	}
	if len(cm.Functions) != 1 || cm.Functions[0].Name != "foo.a" || cm.Functions[0].Offset != 0 {
		t.Fatalf("got functions %+v, want [{foo.a 0}]", cm.Functions)
	}
	if len(cm.Relocations) != 0 {
		t.Fatalf("expected no relocations, got %+v", cm.Relocations)
	}
}

// Scenario 2: local assignment, `y` taken via a prior `local y`.
func TestLocalAssignment(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementDefn{
			Name: "a",
			Body: ir.BasicBlock{Stmts: []ir.Statement{
				ir.StatementLocal{Name: "y"},
				ir.StatementAssignment{LValue: "x", Op: ir.OpAllocateAndAssign, RValue: ir.ValueName{Name: "y"}},
			}},
		},
	}}

	cm, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	instrs := decodeAll(t, cm.Code)
	want := []bytecode.Op{bytecode.FnEntry, bytecode.GetLocal, bytecode.SetLocal}
	if got := ops(instrs); !equalOps(got, want) {
		t.Fatalf("got ops %v, want %v", got, want)
	}
	if instrs[0].Locals != 2 {
		t.Fatalf("FnEntry locals = %d, want 2 (y, x)", instrs[0].Locals)
	}
	if instrs[1].Idx != 0 {
		t.Fatalf("GetLocal idx = %d, want 0 (y)", instrs[1].Idx)
	}
	if instrs[2].Idx != 1 {
		t.Fatalf("SetLocal idx = %d, want 1 (x)", instrs[2].Idx)
	}
}

// Scenario 3: cross-function call plus a const reference.
func TestCrossFunctionCallWithConst(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementConst{
			Name:        "@h",
			Constructor: mustPath(t, "_.std.string.new"),
			Argument:    ir.LiteralString{Value: "hi"},
		},
		ir.StatementDefn{
			Name: "main",
			Body: ir.BasicBlock{Stmts: []ir.Statement{
				ir.StatementLocal{Name: "val"},
				ir.StatementAssignment{LValue: "val", Op: ir.OpAssign, RValue: ir.ValuePath{Path: mustPath(t, "@h")}},
				ir.StatementCall{Path: mustPath(t, "bar")},
			}},
		},
		ir.StatementDefn{
			Name: "bar",
			Body: ir.BasicBlock{Stmts: []ir.Statement{ir.StatementReturn{}}},
		},
	}}

	cm, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(cm.Relocations) != 2 {
		t.Fatalf("got %d relocations, want 2: %+v", len(cm.Relocations), cm.Relocations)
	}
	var sawConst, sawCall bool
	for _, r := range cm.Relocations {
		switch target := r.Target.(type) {
		case ConstPath:
			if target.Path != "@h" {
				t.Fatalf("got const path %q, want @h", target.Path)
			}
			sawConst = true
		case ExternalFunctionPath:
			if target.Path != "bar" {
				t.Fatalf("got call path %q, want bar", target.Path)
			}
			sawCall = true
		}
	}
	if !sawConst || !sawCall {
		t.Fatalf("missing expected relocation kind: %+v", cm.Relocations)
	}
}

// Scenario 4: if/then with a noop branch target.
func TestIfThenNoopTarget(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementDefn{
			Name: "p",
			Body: ir.BasicBlock{Stmts: []ir.Statement{
				ir.StatementLocal{Name: "c"},
				ir.StatementIf{
					Condition: ir.BasicBlock{Stmts: []ir.Statement{ir.StatementTest{Name: "c"}}},
					Then:      ir.StatementThen{Body: ir.BasicBlock{Stmts: []ir.Statement{ir.StatementReturn{}}}},
				},
				ir.StatementReturn{},
			}},
		},
	}}

	cm, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	instrs := decodeAll(t, cm.Code)
	want := []bytecode.Op{
		bytecode.FnEntry, bytecode.GetLocal, bytecode.BranchIfNot,
		bytecode.Return, bytecode.Noop, bytecode.Return,
	}
	if got := ops(instrs); !equalOps(got, want) {
		t.Fatalf("got ops %v, want %v", got, want)
	}

	var branchDest uint64
	for _, r := range cm.Relocations {
		if ia, ok := r.Target.(InternalAddress); ok {
			branchDest = ia.Offset
		}
	}
	noopOffset := 0
	offset := 0
	for _, instr := range instrs {
		if instr.Op == bytecode.Noop && offset != 0 {
			noopOffset = offset
			break
		}
		offset += instr.Op.InstrSize()
	}
	if branchDest != uint64(noopOffset) {
		t.Fatalf("branch dest %d != noop offset %d", branchDest, noopOffset)
	}
}

// Scenario 5: duplicate-local rejection.
func TestDuplicateLocalRejection(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementDefn{
			Name: "x",
			Body: ir.BasicBlock{Stmts: []ir.Statement{
				ir.StatementLocal{Name: "a"},
				ir.StatementLocal{Name: "a"},
			}},
		},
	}}

	_, err := Compile(m)
	var dup *DuplicateLocalError
	if !errors.As(err, &dup) {
		t.Fatalf("got %v, want *DuplicateLocalError", err)
	}
	if dup.Name != "a" {
		t.Fatalf("got duplicate name %q, want a", dup.Name)
	}
	if !errors.Is(err, ErrDuplicateLocal) {
		t.Fatalf("expected errors.Is(err, ErrDuplicateLocal)")
	}
}

// Scenario 6: primitive invocation compiles to an external call relocation;
// actual execution (stack/call-stack left empty) is exercised in package vm.
func TestPrimitiveInvocationCompiles(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementDefn{
			Name: "main",
			Body: ir.BasicBlock{Stmts: []ir.Statement{
				ir.StatementLocal{Name: "msg"},
				ir.StatementCall{Path: mustPath(t, "_.std.println"), Args: []ir.Name{"msg"}},
			}},
		},
	}}

	cm, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	instrs := decodeAll(t, cm.Code)
	want := []bytecode.Op{bytecode.FnEntry, bytecode.GetLocal, bytecode.Call, bytecode.Pop}
	if got := ops(instrs); !equalOps(got, want) {
		t.Fatalf("got ops %v, want %v", got, want)
	}
}

func TestLocalsDiscoveryOrderIsOrderPreserving(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementDefn{
			Name: "f",
			Body: ir.BasicBlock{Stmts: []ir.Statement{
				ir.StatementLocal{Name: "first"},
				ir.StatementIf{
					Condition: ir.BasicBlock{Stmts: []ir.Statement{ir.StatementTest{Name: "first"}}},
					Then: ir.StatementThen{Body: ir.BasicBlock{Stmts: []ir.Statement{
						ir.StatementAssignment{LValue: "second", Op: ir.OpAllocateAndAssign, RValue: ir.ValueName{Name: "first"}},
					}}},
				},
				ir.StatementAssignment{LValue: "third", Op: ir.OpAllocateAndAssign, RValue: ir.ValueName{Name: "first"}},
			}},
		},
	}}

	cm, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	instrs := decodeAll(t, cm.Code)
	if instrs[0].Op != bytecode.FnEntry || instrs[0].Locals != 3 {
		t.Fatalf("got FnEntry locals %d, want 3", instrs[0].Locals)
	}
	// second and third are stored, in source order, to slots 1 and 2.
	var setIdx []uint16
	for _, instr := range instrs {
		if instr.Op == bytecode.SetLocal {
			setIdx = append(setIdx, instr.Idx)
		}
	}
	if len(setIdx) != 2 || setIdx[0] != 1 || setIdx[1] != 2 {
		t.Fatalf("got SetLocal slots %v, want [1 2] (second, third)", setIdx)
	}
}

func TestBreakOutsideLoopRejected(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementDefn{
			Name: "f",
			Body: ir.BasicBlock{Stmts: []ir.Statement{ir.StatementBreak{}}},
		},
	}}

	_, err := Compile(m)
	if !errors.Is(err, ErrBreakOutsideLoop) {
		t.Fatalf("got %v, want ErrBreakOutsideLoop", err)
	}
}

func TestWhileDoLowering(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementDefn{
			Name: "loop",
			Body: ir.BasicBlock{Stmts: []ir.Statement{
				ir.StatementLocal{Name: "c"},
				ir.StatementWhile{
					Condition: ir.BasicBlock{Stmts: []ir.Statement{ir.StatementTest{Name: "c"}}},
					Do: &ir.StatementDo{Body: ir.BasicBlock{Stmts: []ir.Statement{
						ir.StatementBreak{},
					}}},
				},
				ir.StatementReturn{},
			}},
		},
	}}

	cm, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	instrs := decodeAll(t, cm.Code)
	want := []bytecode.Op{
		bytecode.FnEntry, bytecode.GetLocal, bytecode.BranchIfNot,
		bytecode.PushAddress, bytecode.BranchIfNot, // Break's unconditional jump
		bytecode.PushAddress, bytecode.BranchIfNot, // loop-back jump
		bytecode.Noop, bytecode.Return,
	}
	if got := ops(instrs); !equalOps(got, want) {
		t.Fatalf("got ops %v, want %v", got, want)
	}
}

// A call through a local holding a fn value lowers to Invoke, not Call: the
// target address is only known at run time, so there is no relocation for it
// (see spec.md §4.5's Invoke frame-construction rule and the GLOSSARY's
// "Fn (anonymous)" entry).
func TestCallThroughLocalFnValueLowersToInvoke(t *testing.T) {
	m := ir.Module{Stmts: []ir.Statement{
		ir.StatementMod{Path: mustPath(t, "foo")},
		ir.StatementDefn{
			Name: "main",
			Body: ir.BasicBlock{Stmts: []ir.Statement{
				ir.StatementLocal{Name: "f"},
				ir.StatementLocal{Name: "y"},
				ir.StatementLocal{Name: "x"},
				ir.StatementAssignment{LValue: "f", Op: ir.OpAssign, RValue: ir.ValueFn{
					Params: []ir.Name{"a"},
					Body:   ir.BasicBlock{Stmts: []ir.Statement{ir.StatementReturn{Value: ir.ValueName{Name: "a"}}}},
				}},
				ir.StatementAssignment{LValue: "x", Op: ir.OpAssign, RValue: ir.ValueCall{
					Path: mustPath(t, "f"),
					Args: []ir.Name{"y"},
				}},
				ir.StatementCall{Path: mustPath(t, "f"), Args: []ir.Name{"y"}},
			}},
		},
	}}

	cm, err := Compile(m)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, r := range cm.Relocations {
		if ext, ok := r.Target.(ExternalFunctionPath); ok && ext.Path == "f" {
			t.Fatalf("call through local f should not record an external relocation, got %+v", r)
		}
	}
	instrs := decodeAll(t, cm.Code)
	var sawInvoke int
	for _, instr := range instrs {
		if instr.Op == bytecode.Invoke {
			sawInvoke++
			if instr.NumArgs != 1 {
				t.Fatalf("Invoke NumArgs = %d, want 1", instr.NumArgs)
			}
		}
	}
	if sawInvoke != 2 {
		t.Fatalf("got %d Invoke instructions, want 2 (one per call site)", sawInvoke)
	}
}

func equalOps(a, b []bytecode.Op) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
