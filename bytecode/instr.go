package bytecode

import (
	"errors"
	"fmt"
)

// Instr is a decoded instruction. Only the fields relevant to Op are
// meaningful; the rest are zero. Decode and Encode are exact inverses of
// each other for any Instr produced by Decode.
type Instr struct {
	Op Op

	Locals  uint16 // FnEntry
	Idx     uint16 // GetLocal, SetLocal
	ArgIdx  uint8  // GetArg
	Addr    uint64 // Call, PushAddress, BranchIf, BranchIfNot, LoadConst
	NumArgs uint8  // Call, Invoke
}

var (
	// ErrTruncated is returned when a Decode call runs past the end of the buffer.
	ErrTruncated = errors.New("bytecode: truncated instruction")
	// ErrUnknownOpcode is returned when a Decode call encounters a byte that
	// does not name a known opcode.
	ErrUnknownOpcode = errors.New("bytecode: unknown opcode")
)

// UnknownOpcodeError reports the offending byte value alongside the sentinel
// ErrUnknownOpcode, so callers wanting the value can errors.As for it while
// callers only checking the class can errors.Is ErrUnknownOpcode.
type UnknownOpcodeError struct {
	Byte byte
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("bytecode: unknown opcode byte 0x%02x", e.Byte)
}

func (e *UnknownOpcodeError) Unwrap() error { return ErrUnknownOpcode }

// Encode appends the encoded form of instr to buf and returns the extended slice.
func Encode(buf []byte, instr Instr) []byte {
	buf = append(buf, byte(instr.Op))
	switch instr.Op {
	case Noop, Return, Pop:
		// opcode only
	case GetArg:
		buf = append(buf, instr.ArgIdx)
	case Invoke:
		buf = append(buf, instr.NumArgs)
	case GetLocal, SetLocal:
		buf = appendU16(buf, instr.Idx)
	case FnEntry:
		buf = appendU16(buf, instr.Locals)
	case PushAddress, BranchIf, BranchIfNot, LoadConst:
		buf = appendU64(buf, instr.Addr)
	case Call:
		buf = appendU64(buf, instr.Addr)
		buf = append(buf, instr.NumArgs)
	default:
		panic(fmt.Sprintf("bytecode: Encode called with unknown op %d", instr.Op))
	}
	return buf
}

// Decode reads one instruction from code starting at offset, returning the
// instruction and the offset immediately after it.
func Decode(code []byte, offset int) (Instr, int, error) {
	if offset >= len(code) {
		return Instr{}, offset, ErrTruncated
	}
	op := Op(code[offset])
	if _, ok := opNames[op]; !ok {
		return Instr{}, offset, &UnknownOpcodeError{Byte: code[offset]}
	}
	size := op.InstrSize()
	if offset+size > len(code) {
		return Instr{}, offset, ErrTruncated
	}
	instr := Instr{Op: op}
	body := code[offset+1 : offset+size]
	switch op {
	case Noop, Return, Pop:
	case GetArg:
		instr.ArgIdx = body[0]
	case Invoke:
		instr.NumArgs = body[0]
	case GetLocal, SetLocal:
		instr.Idx = nativeEndian.Uint16(body)
	case FnEntry:
		instr.Locals = nativeEndian.Uint16(body)
	case PushAddress, BranchIf, BranchIfNot, LoadConst:
		instr.Addr = nativeEndian.Uint64(body)
	case Call:
		instr.Addr = nativeEndian.Uint64(body[:8])
		instr.NumArgs = body[8]
	}
	return instr, offset + size, nil
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	nativeEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	nativeEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutU64 writes v in host byte order at the given byte offset within code.
// Unlike PatchAddr, the caller supplies the operand's own offset directly
// rather than an instruction's opcode offset — this is what a relocation's
// SiteOffset already names.
func PutU64(code []byte, offset int, v uint64) {
	nativeEndian.PutUint64(code[offset:offset+8], v)
}

// PatchAddr overwrites the address operand of the instruction at offset with
// addr. It is used by the loader to resolve relocations in place after a
// module's code has been appended to the image. op must be one of the
// address-carrying opcodes (see Op.HasAddressOperand).
func PatchAddr(code []byte, offset int, addr uint64) {
	op := Op(code[offset])
	if !op.HasAddressOperand() {
		panic("bytecode: PatchAddr called on an instruction with no address operand")
	}
	fieldOff := offset + op.AddrFieldOffset(0)
	nativeEndian.PutUint64(code[fieldOff:fieldOff+8], addr)
}
