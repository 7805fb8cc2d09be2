package vm

// Box is the VM's only notion of a heap value: a word-sized opaque token
// the interpreter itself never inspects. A nil *Box is the null pointer;
// everything else — strings, ints, addresses boxed by PushAddress — is
// carried in Data and interpreted only by the primitive that put it there.
type Box struct {
	Data any
}

// BoxString allocates a fresh box holding a Go string.
func BoxString(s string) *Box { return &Box{Data: s} }

// BoxInt allocates a fresh box holding an int64.
func BoxInt(i int64) *Box { return &Box{Data: i} }

// BoxAddr allocates a fresh box holding a raw bytecode address, the payload
// PushAddress produces.
func BoxAddr(addr uint64) *Box { return &Box{Data: addr} }
