package vm

import (
	"os"
	"runtime/debug"
	"strconv"

	"hivm/bytecode"
)

// Run executes from ip until a Return pops the last frame. It mirrors
// teacher vm/exec.go's execNextInstruction fetch-decode-execute shape and
// vm/run.go's GC-disable-during-run trick: GOGC is read once and GC is
// turned off for the duration of the loop, restored via defer exactly as
// the teacher leaves it.
func (m *Machine) Run(ip uint64) (err error) {
	restore := disableGCForRun()
	defer restore()
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{IP: m.IP, Err: panicToError(r)}
		}
	}()

	m.IP = ip
	// Running always starts inside some function's body, so the entry point
	// needs a frame already on the call stack for its FnEntry/GetLocal ops
	// to operate on, the same way a Call would have pushed one. Its
	// ReturnAddr is never consulted: once it is the sole remaining frame,
	// Return pops it and the empty call stack ends the loop.
	m.CallStack = append(m.CallStack, &Frame{})
	for {
		done, stepErr := m.step()
		if stepErr != nil {
			return &RuntimeError{IP: m.IP, Err: stepErr}
		}
		if done {
			return nil
		}
	}
}

// step decodes and executes one instruction, returning done=true once a
// Return has popped the machine's last frame — the explicit termination
// check §4.5's open question calls for, rather than any ip-update ordering
// trick.
func (m *Machine) step() (done bool, err error) {
	instr, nextOff, decErr := bytecode.Decode(m.Code, int(m.IP))
	if decErr != nil {
		return false, decErr
	}
	next := uint64(nextOff)

	switch instr.Op {
	case bytecode.Noop:

	case bytecode.FnEntry:
		frame, ferr := m.currentFrame()
		if ferr != nil {
			return false, ferr
		}
		frame.Slots = make([]*Box, instr.Locals)

	case bytecode.GetLocal:
		frame, ferr := m.currentFrame()
		if ferr != nil {
			return false, ferr
		}
		if int(instr.Idx) >= len(frame.Slots) {
			return false, ErrLocalIndexOutOfRange
		}
		m.push(frame.Slots[instr.Idx])

	case bytecode.SetLocal:
		frame, ferr := m.currentFrame()
		if ferr != nil {
			return false, ferr
		}
		if int(instr.Idx) >= len(frame.Slots) {
			return false, ErrLocalIndexOutOfRange
		}
		v, perr := m.pop()
		if perr != nil {
			return false, perr
		}
		frame.Slots[instr.Idx] = v

	case bytecode.GetArg:
		frame, ferr := m.currentFrame()
		if ferr != nil {
			return false, ferr
		}
		if int(instr.ArgIdx) >= len(frame.Args) {
			return false, ErrArgIndexOutOfRange
		}
		m.push(frame.Args[instr.ArgIdx])

	case bytecode.PushAddress:
		m.push(BoxAddr(instr.Addr))

	case bytecode.LoadConst:
		idx := int(instr.Addr)
		if idx < 0 || idx >= len(m.consts) {
			return false, ErrUnresolvedSymbol
		}
		m.push(m.consts[idx])

	case bytecode.BranchIf:
		v, perr := m.pop()
		if perr != nil {
			return false, perr
		}
		if v == nil {
			next = instr.Addr
		}

	case bytecode.BranchIfNot:
		v, perr := m.pop()
		if perr != nil {
			return false, perr
		}
		if v != nil {
			next = instr.Addr
		}

	case bytecode.Pop:
		if _, perr := m.pop(); perr != nil {
			return false, perr
		}

	case bytecode.Call:
		args, perr := m.popN(int(instr.NumArgs))
		if perr != nil {
			return false, perr
		}
		if dispErr := m.dispatchCall(instr.Addr, args, next, &next); dispErr != nil {
			return false, dispErr
		}

	case bytecode.Invoke:
		args, perr := m.popN(int(instr.NumArgs))
		if perr != nil {
			return false, perr
		}
		targetBox, perr := m.pop()
		if perr != nil {
			return false, perr
		}
		addr, aerr := unboxAddr(targetBox)
		if aerr != nil {
			return false, aerr
		}
		if dispErr := m.dispatchCall(addr, args, next, &next); dispErr != nil {
			return false, dispErr
		}

	case bytecode.Return:
		if len(m.CallStack) == 0 {
			return false, ErrReturnWithEmptyCallStack
		}
		frame := m.CallStack[len(m.CallStack)-1]
		m.CallStack = m.CallStack[:len(m.CallStack)-1]
		next = frame.ReturnAddr
		if len(m.CallStack) == 0 {
			m.IP = next
			return true, nil
		}

	default:
		return false, ErrUnknownOpcode
	}

	m.IP = next
	return false, nil
}

// dispatchCall realizes both Call and Invoke's frame-construction rule once
// a target address is known. A primitive-flagged address is run inline and
// never pushed onto the call stack: control "returns" immediately, the
// interpreter just never diverts ip into it, per §4.5's primitive contract.
// A primitive that pushes no result gets a null pushed in its place, so every
// call leaves exactly one value for the caller (or for its trailing Pop).
func (m *Machine) dispatchCall(addr uint64, args []*Box, fallthroughNext uint64, next *uint64) error {
	frame := &Frame{ReturnAddr: fallthroughNext, Args: args}
	if isPrimitiveAddr(addr) {
		idx := primitiveIndex(addr)
		if idx < 0 || idx >= len(m.primitives) {
			return ErrUnknownOpcode
		}
		depth := len(m.Stack)
		if err := m.primitives[idx](m, frame); err != nil {
			return err
		}
		if len(m.Stack) == depth {
			m.push(nil)
		}
		*next = fallthroughNext
		return nil
	}
	m.CallStack = append(m.CallStack, frame)
	*next = addr
	return nil
}

func (m *Machine) currentFrame() (*Frame, error) {
	if len(m.CallStack) == 0 {
		return nil, ErrReturnWithEmptyCallStack
	}
	return m.CallStack[len(m.CallStack)-1], nil
}

func unboxAddr(b *Box) (uint64, error) {
	if b == nil {
		return 0, ErrUnresolvedSymbol
	}
	addr, ok := b.Data.(uint64)
	if !ok {
		return 0, ErrUnresolvedSymbol
	}
	return addr, nil
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &RuntimeError{Err: ErrStackUnderflow}
}

// disableGCForRun mirrors teacher vm/run.go: read GOGC once, turn the
// collector off for the run loop, and return a closure that restores it.
// An interpreter loop with no allocation-triggering work of its own should
// not pay for a GC pass mid-instruction-stream.
func disableGCForRun() func() {
	prior := 100
	if v := os.Getenv("GOGC"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			prior = parsed
		}
	}
	debug.SetGCPercent(-1)
	return func() {
		debug.SetGCPercent(prior)
	}
}
