package heap

import (
	"fmt"

	"github.com/chazu/ikheap/value"
)

// Intern returns the symbol named name, creating it on first use. The
// symbol table is a root, so interned symbols live as long as the PCB.
func (p *PCB) Intern(name string) (value.Word, error) {
	if s, ok := p.symbols[name]; ok {
		return s, nil
	}
	str, err := p.MakeString(name)
	if err != nil {
		return 0, err
	}
	s, err := p.makeSymbol(str, value.False)
	if err != nil {
		return 0, err
	}
	p.symbols[name] = s
	return s, nil
}

// MakeGensym returns an uninterned symbol printed as prefix. Its unique
// name combines the instance id with a counter and is registered in the
// gensym table.
func (p *PCB) MakeGensym(prefix string) (value.Word, error) {
	p.gensymSeq++
	unique := fmt.Sprintf("%s-%s-%d", prefix, p.id.String()[:8], p.gensymSeq)
	str, err := p.MakeString(prefix)
	if err != nil {
		return 0, err
	}
	defer p.protect(&str)()
	ustr, err := p.MakeString(unique)
	if err != nil {
		return 0, err
	}
	s, err := p.makeSymbol(str, ustr)
	if err != nil {
		return 0, err
	}
	p.gensyms[unique] = s
	return s, nil
}

// Gensym looks up a gensym by its unique name.
func (p *PCB) Gensym(unique string) (value.Word, bool) {
	s, ok := p.gensyms[unique]
	return s, ok
}

func (p *PCB) makeSymbol(str, ustr value.Word) (value.Word, error) {
	defer p.protect(&str, &ustr)()
	s, err := p.Alloc(value.SymbolSize, value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(s.Base(), value.SymbolTag)
	p.as.store(fieldAddr(s, value.OffSymbolString), str)
	p.as.store(fieldAddr(s, value.OffSymbolUString), ustr)
	p.as.store(fieldAddr(s, value.OffSymbolValue), value.Unbound)
	p.as.store(fieldAddr(s, value.OffSymbolProc), value.Unbound)
	p.as.store(fieldAddr(s, value.OffSymbolPlist), value.Null)
	return s, nil
}

// SymbolName returns the printed name of a symbol.
func (p *PCB) SymbolName(s value.Word) string {
	p.mustKind("symbol-name", s, value.KindSymbol)
	return p.GoString(p.Ref(s, value.OffSymbolString))
}

// SymbolUniqueName returns the unique name of a gensym, or "" for an
// interned symbol.
func (p *PCB) SymbolUniqueName(s value.Word) string {
	p.mustKind("symbol-unique-name", s, value.KindSymbol)
	u := p.Ref(s, value.OffSymbolUString)
	if !u.IsString() {
		return ""
	}
	return p.GoString(u)
}

// SymbolValue returns the top-level value of a symbol.
func (p *PCB) SymbolValue(s value.Word) value.Word {
	p.mustKind("symbol-value", s, value.KindSymbol)
	return p.Ref(s, value.OffSymbolValue)
}

// SetSymbolValue stores the top-level value through the write barrier.
func (p *PCB) SetSymbolValue(s, v value.Word) {
	p.mustKind("set-symbol-value!", s, value.KindSymbol)
	p.SetField(s, value.OffSymbolValue, v)
}

// SymbolPlist returns the property list of a symbol.
func (p *PCB) SymbolPlist(s value.Word) value.Word {
	p.mustKind("symbol-plist", s, value.KindSymbol)
	return p.Ref(s, value.OffSymbolPlist)
}

// SetSymbolPlist stores the property list through the write barrier.
func (p *PCB) SetSymbolPlist(s, v value.Word) {
	p.mustKind("set-symbol-plist!", s, value.KindSymbol)
	p.SetField(s, value.OffSymbolPlist, v)
}
