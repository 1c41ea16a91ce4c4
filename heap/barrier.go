package heap

import (
	"github.com/chazu/ikheap/value"
)

// Ref reads the field at off of obj. off is a byte offset that already
// accounts for obj's primary tag (the value.Off* constants).
func (p *PCB) Ref(obj value.Word, off int) value.Word {
	return p.as.load(fieldAddr(obj, off))
}

// SetField stores v into obj at off through the full write barrier: when
// obj is older than v, the field's page is marked dirty for v's generation
// and obj joins its generation's remembered set.
func (p *PCB) SetField(obj value.Word, off int, v value.Word) {
	addr := fieldAddr(obj, off)
	p.as.store(addr, v)
	p.barrier(obj, addr, v)
}

// MarkDirty is the card-only barrier used by compiled code after a raw
// store of v at addr. It never touches the remembered sets, so it must not
// be used for code objects.
func (p *PCB) MarkDirty(addr uint64, v value.Word) {
	if !v.IsHeapPointer() {
		return
	}
	cg := p.as.generation(addr)
	vg := p.as.generation(v.Base())
	if cg > 0 && vg >= 0 && vg < cg {
		p.as.markDirty(addr, vg)
	}
}

// Protect lists w in the remembered set of its own generation so it is
// rescanned by every minor collection. Foreign code that writes fields
// behind the barrier's back uses it.
func (p *PCB) Protect(w value.Word) {
	if g := p.Generation(w); g > 0 {
		p.remembered.add(g, w)
	}
}

// Dirty returns the dirty mask of the page holding addr.
func (p *PCB) Dirty(addr uint64) byte {
	if i := p.as.pageIndex(addr); i >= 0 {
		return p.as.dirtyVector[i]
	}
	return 0
}

func (p *PCB) barrier(obj value.Word, addr uint64, v value.Word) {
	if !v.IsHeapPointer() {
		return
	}
	cg := p.as.generation(addr)
	if cg <= 0 {
		return
	}
	vg := p.as.generation(v.Base())
	if vg < 0 || vg >= cg {
		return
	}
	p.as.markDirty(addr, vg)
	p.remembered.add(cg, obj)
}

func fieldAddr(obj value.Word, off int) uint64 {
	return uint64(int64(obj) + int64(off))
}
