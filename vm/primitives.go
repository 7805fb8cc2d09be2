package vm

import "fmt"

// RegisterStandardPrimitives binds the small standard library the calling
// convention's own worked examples assume: boxing constructors for strings
// and ints, and a println that renders a boxed value to m.Stdout. This
// generalizes teacher vm/vm.go's stdout *bufio.Writer field and vm/exec.go's
// Writec/Readc console ops from single runes to boxed values, since this VM
// has no byte-addressable memory to read strings out of directly.
func (m *Machine) RegisterStandardPrimitives() {
	m.RegisterPrimitive("_.std.string.new", primitiveStringNew)
	m.RegisterPrimitive("_.std.int.new", primitiveIntNew)
	m.RegisterPrimitive("_.std.println", primitivePrintln)
}

// primitiveStringNew is a constructor primitive: it must push exactly one
// value. Its argument is the literal passed to `const`, already boxed by
// the loader.
func primitiveStringNew(m *Machine, f *Frame) error {
	if len(f.Args) == 0 {
		m.push(BoxString(""))
		return nil
	}
	switch v := f.Args[0].Data.(type) {
	case string:
		m.push(BoxString(v))
	default:
		m.push(BoxString(fmt.Sprint(v)))
	}
	return nil
}

func primitiveIntNew(m *Machine, f *Frame) error {
	if len(f.Args) == 0 {
		m.push(BoxInt(0))
		return nil
	}
	switch v := f.Args[0].Data.(type) {
	case int64:
		m.push(BoxInt(v))
	default:
		m.push(BoxInt(0))
	}
	return nil
}

// primitivePrintln reads one argument and pushes nothing.
func primitivePrintln(m *Machine, f *Frame) error {
	if len(f.Args) == 0 || f.Args[0] == nil {
		fmt.Fprintln(m.Stdout)
		return nil
	}
	fmt.Fprintln(m.Stdout, f.Args[0].Data)
	return nil
}
