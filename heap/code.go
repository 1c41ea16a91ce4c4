package heap

import (
	"fmt"

	"github.com/chazu/ikheap/value"
)

// MakeCode allocates a code object holding a copy of code. Closures over it
// carry freeVars free variables. reloc and annotation are ordinary values.
func (p *PCB) MakeCode(code []byte, freeVars int, reloc, annotation value.Word) (value.Word, error) {
	if freeVars < 0 {
		return 0, fmt.Errorf("heap: make-code: negative free variable count %d", freeVars)
	}
	defer p.protect(&reloc, &annotation)()
	w, err := p.Alloc(value.CodeBytes(len(code)), value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(w.Base(), value.CodeTag)
	p.as.store(fieldAddr(w, value.OffCodeSize), value.MustFixnum(int64(len(code))))
	p.as.store(fieldAddr(w, value.OffCodeReloc), reloc)
	p.as.store(fieldAddr(w, value.OffCodeFreeVars), value.MustFixnum(int64(freeVars)))
	p.as.store(fieldAddr(w, value.OffCodeAnnotation), annotation)
	p.as.writeBytes(fieldAddr(w, value.OffCodeData), code)
	return w, nil
}

// CodeBytes returns a copy of the machine code.
func (p *PCB) CodeBytes(w value.Word) []byte {
	p.mustKind("code-bytes", w, value.KindCode)
	n := int(p.Ref(w, value.OffCodeSize).FixnumValue())
	return p.as.readBytes(fieldAddr(w, value.OffCodeData), n)
}

// CodeFreeVars returns the free variable count of closures over w.
func (p *PCB) CodeFreeVars(w value.Word) int {
	p.mustKind("code-freevars", w, value.KindCode)
	return int(p.Ref(w, value.OffCodeFreeVars).FixnumValue())
}

// CodeReloc returns the relocation vector.
func (p *PCB) CodeReloc(w value.Word) value.Word {
	p.mustKind("code-reloc", w, value.KindCode)
	return p.Ref(w, value.OffCodeReloc)
}

// CodeAnnotation returns the annotation.
func (p *PCB) CodeAnnotation(w value.Word) value.Word {
	p.mustKind("code-annotation", w, value.KindCode)
	return p.Ref(w, value.OffCodeAnnotation)
}

// SetCodeReloc replaces the relocation vector. Code pages are never card
// scanned, so this always takes the full barrier.
func (p *PCB) SetCodeReloc(w, reloc value.Word) {
	p.mustKind("set-code-reloc!", w, value.KindCode)
	p.SetField(w, value.OffCodeReloc, reloc)
}

// SetCodeAnnotation replaces the annotation through the full barrier.
func (p *PCB) SetCodeAnnotation(w, annotation value.Word) {
	p.mustKind("set-code-annotation!", w, value.KindCode)
	p.SetField(w, value.OffCodeAnnotation, annotation)
}

// ---------------------------------------------------------------------------
// Closures
// ---------------------------------------------------------------------------

// MakeClosure closes code over free. The count must match the code object.
func (p *PCB) MakeClosure(code value.Word, free ...value.Word) (value.Word, error) {
	if n := p.CodeFreeVars(code); n != len(free) {
		return 0, fmt.Errorf("heap: make-closure: %d free variables, code wants %d", len(free), n)
	}
	free = append([]value.Word(nil), free...)
	defer p.protectSlice(free)()
	defer p.protect(&code)()
	c, err := p.Alloc(value.ClosureBytes(len(free)), value.ClosureTag)
	if err != nil {
		return 0, err
	}
	p.as.store(fieldAddr(c, value.OffClosureCode), code)
	for i, v := range free {
		p.as.store(fieldAddr(c, value.OffClosureData+i*value.WordSize), v)
	}
	return c, nil
}

// ClosureCode returns the code object of a closure.
func (p *PCB) ClosureCode(c value.Word) value.Word {
	p.mustKind("closure-code", c, value.KindClosure)
	return p.Ref(c, value.OffClosureCode)
}

// ClosureLength returns the free variable count of a closure.
func (p *PCB) ClosureLength(c value.Word) int {
	p.mustKind("closure-length", c, value.KindClosure)
	return p.closureFreeVars(c)
}

// ClosureRef returns free variable i.
func (p *PCB) ClosureRef(c value.Word, i int) value.Word {
	checkIndex("closure-ref", i, p.ClosureLength(c))
	return p.Ref(c, value.OffClosureData+i*value.WordSize)
}

// ClosureSet stores free variable i through the write barrier.
func (p *PCB) ClosureSet(c value.Word, i int, v value.Word) {
	checkIndex("closure-set!", i, p.ClosureLength(c))
	p.SetField(c, value.OffClosureData+i*value.WordSize, v)
}
