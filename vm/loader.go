package vm

import (
	"log"

	"hivm/bytecode"
	"hivm/compiler"
	"hivm/ir"
)

// Load splices a compiled module into m: runs its constant constructors,
// appends its code, registers its exported symbols, and patches every
// relocation site to an absolute address. It mirrors teacher vm/vm.go's
// single-entry-point construction and original_source's load_module
// base-rebasing, generalized from one program image to many modules loaded
// into the same running machine.
//
// Load must not run concurrently with m executing (§5); this package leaves
// that discipline documented, not mutex-enforced.
func Load(m *Machine, cm *compiler.CompiledModule) error {
	if err := loadConsts(m, cm); err != nil {
		return err
	}

	base := uint64(len(m.Code))
	m.Code = append(m.Code, cm.Code...)

	for _, fn := range cm.Functions {
		m.Symbols.bind(fn.Name, TableValue{Kind: SymbolDefn, DefnAddr: base + uint64(fn.Offset)})
	}
	for _, static := range cm.Statics {
		m.Symbols.bind(cm.Name+".$"+static, TableValue{Kind: SymbolStatic, Static: &Box{}})
	}

	for _, reloc := range cm.Relocations {
		site := int(base) + reloc.SiteOffset
		switch target := reloc.Target.(type) {
		case compiler.InternalAddress:
			bytecode.PutU64(m.Code, site, base+target.Offset)
		case compiler.ExternalFunctionPath:
			addr, err := resolveCallTarget(m, cm.Name, target.Path)
			if err != nil {
				return err
			}
			bytecode.PutU64(m.Code, site, addr)
		case compiler.ConstPath:
			addr, err := resolveConstRef(m, cm.Name, target.Path)
			if err != nil {
				return err
			}
			bytecode.PutU64(m.Code, site, addr)
		}
	}

	log.Printf("vm: loaded module %q: %d bytes, %d functions, %d consts, %d statics",
		cm.Name, len(cm.Code), len(cm.Functions), len(cm.Consts), len(cm.Statics))
	return nil
}

// resolveCallTarget implements §4.4's fallback rule: try the path exactly as
// written first, and only if that misses, retry qualified with the
// compiling module's own name — so an intra-module call needs no `extern`.
func resolveCallTarget(m *Machine, moduleName, path string) (uint64, error) {
	tv, ok := m.Symbols.Lookup(path)
	if !ok {
		tv, ok = m.Symbols.Lookup(moduleName + "." + path)
	}
	if !ok {
		return 0, &UnresolvedSymbolError{Path: path}
	}
	switch tv.Kind {
	case SymbolDefn:
		return tv.DefnAddr, nil
	case SymbolPrimitive:
		return primitiveAddr(tv.PrimitiveIdx), nil
	default:
		return 0, &WrongSymbolKindError{Path: path, Expected: SymbolDefn, Actual: tv.Kind}
	}
}

// resolveConstRef rewrites an unqualified `@foo`/`$foo` reference to
// moduleName + "." + path before lookup, per §6.
func resolveConstRef(m *Machine, moduleName, path string) (uint64, error) {
	qualified := path
	if len(path) > 0 && (path[0] == '@' || path[0] == '$') {
		qualified = moduleName + "." + path
	}
	tv, ok := m.Symbols.Lookup(qualified)
	if !ok {
		return 0, &UnresolvedSymbolError{Path: qualified}
	}
	if tv.Kind != SymbolConst {
		return 0, &WrongSymbolKindError{Path: qualified, Expected: SymbolConst, Actual: tv.Kind}
	}
	return uint64(tv.ConstIdx), nil
}

func loadConsts(m *Machine, cm *compiler.CompiledModule) error {
	for _, entry := range cm.Consts {
		tv, ok := m.Symbols.Lookup(entry.Constructor)
		if !ok {
			return &UnresolvedSymbolError{Path: entry.Constructor}
		}
		if tv.Kind != SymbolPrimitive {
			return &WrongSymbolKindError{Path: entry.Constructor, Expected: SymbolPrimitive, Actual: tv.Kind}
		}
		fn := m.primitives[tv.PrimitiveIdx]

		scratch := NewMachine(m.Stdout)
		var args []*Box
		if entry.Argument != nil {
			args = []*Box{boxLiteral(entry.Argument)}
		}
		frame := &Frame{Args: args}
		if err := fn(scratch, frame); err != nil {
			return err
		}
		if len(scratch.Stack) != 1 {
			return ErrConstructorDidNotProduceValue
		}

		idx := m.registerConst(scratch.Stack[0])
		m.Symbols.bind(cm.Name+"."+string(entry.Name), TableValue{Kind: SymbolConst, ConstIdx: int(idx)})
	}
	return nil
}

func boxLiteral(lit ir.Literal) *Box {
	switch l := lit.(type) {
	case ir.LiteralString:
		return BoxString(l.Value)
	case ir.LiteralInt:
		return BoxInt(l.Value)
	case ir.LiteralNull:
		return nil
	default:
		return nil
	}
}
