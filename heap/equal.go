package heap

import (
	"github.com/chazu/ikheap/value"
)

// Equal reports whether a and b have the same structure. Immediates and
// fixnums compare by value; heap objects compare kind, contents and fields
// recursively. Cycles are followed at most once per pair of objects.
func (p *PCB) Equal(a, b value.Word) bool {
	return p.equal(a, b, make(map[[2]value.Word]struct{}))
}

func (p *PCB) equal(a, b value.Word, seen map[[2]value.Word]struct{}) bool {
	if a == b {
		return true
	}
	if !a.IsHeapPointer() || !b.IsHeapPointer() || a.PrimaryTag() != b.PrimaryTag() {
		return false
	}
	key := [2]value.Word{a, b}
	if _, ok := seen[key]; ok {
		return true
	}
	seen[key] = struct{}{}

	ka, sa := p.shape(a)
	kb, sb := p.shape(b)
	if ka != kb || sa != sb {
		return false
	}
	switch ka {
	case value.KindString, value.KindBytevector, value.KindFlonum, value.KindBignum, value.KindPointer:
		return string(p.as.readBytes(a.Base(), sa)) == string(p.as.readBytes(b.Base(), sb))
	case value.KindCode:
		if string(p.CodeBytes(a)) != string(p.CodeBytes(b)) {
			return false
		}
	case value.KindPort:
		if p.as.load(a.Base()) != p.as.load(b.Base()) {
			return false
		}
	}

	var fa, fb []uint64
	p.forEachField(a, ka, func(addr uint64) { fa = append(fa, addr) })
	p.forEachField(b, kb, func(addr uint64) { fb = append(fb, addr) })
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if !p.equal(p.as.load(fa[i]), p.as.load(fb[i]), seen) {
			return false
		}
	}
	return true
}
