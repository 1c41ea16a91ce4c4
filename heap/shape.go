package heap

import (
	"fmt"

	"github.com/chazu/ikheap/value"
)

// KindOf classifies w, reading the header of vector-family objects.
func (p *PCB) KindOf(w value.Word) value.Kind {
	if w.IsVectorFamily() {
		return value.Classify(w, p.as.load(w.Base()))
	}
	return value.Classify(w, 0)
}

// shape returns the kind and allocation size of the heap object w.
func (p *PCB) shape(w value.Word) (value.Kind, int) {
	base := w.Base()
	k := p.KindOf(w)
	switch k {
	case value.KindPair:
		return k, value.PairSize
	case value.KindString:
		return k, value.StringBytes(int(p.as.load(base).FixnumValue()))
	case value.KindBytevector:
		return k, value.BytevectorBytes(int(p.as.load(base).FixnumValue()))
	case value.KindClosure:
		return k, value.ClosureBytes(p.closureFreeVars(w))
	case value.KindVector:
		return k, value.VectorBytes(int(p.as.load(base).FixnumValue()))
	case value.KindRecord:
		return k, value.RecordBytes(p.rtdLength(p.as.load(base)))
	case value.KindFlonum:
		return k, value.FlonumSize
	case value.KindBignum:
		return k, value.BignumBytes(p.as.load(base).BignumLimbs())
	case value.KindRatnum, value.KindCompnum, value.KindCflonum:
		return k, value.RatnumSize
	case value.KindCode:
		return k, value.CodeBytes(int(p.Ref(w, value.OffCodeSize).FixnumValue()))
	case value.KindPort:
		return k, value.PortSize
	case value.KindContinuation:
		return k, value.ContinuationSize
	case value.KindSystemContinuation:
		return k, value.SystemContinuationSize
	case value.KindTCBucket:
		return k, value.TCBucketSize
	case value.KindSymbol:
		return k, value.SymbolSize
	case value.KindPointer:
		return k, value.PointerSize
	}
	panic(fmt.Sprintf("heap: object %#x has invalid header %#x", uint64(w), uint64(p.as.load(base))))
}

func (p *PCB) closureFreeVars(c value.Word) int {
	code := p.as.load(c.Base())
	return int(p.Ref(code, value.OffCodeFreeVars).FixnumValue())
}

func (p *PCB) rtdLength(rtd value.Word) int {
	return int(p.Ref(rtd, value.OffRTDLength).FixnumValue())
}

// spaceFor returns the old-generation space that holds objects of kind k.
func spaceFor(k value.Kind) space {
	switch k {
	case value.KindFlonum, value.KindBignum, value.KindPointer, value.KindString, value.KindBytevector:
		return spaceData
	case value.KindCode:
		return spaceCode
	}
	return spacePointers
}

// forEachField calls fn with the address of every tagged field of w.
func (p *PCB) forEachField(w value.Word, k value.Kind, fn func(addr uint64)) {
	base := w.Base()
	words := func(from, n int) {
		for i := from; i < from+n; i++ {
			fn(base + uint64(i*value.WordSize))
		}
	}
	switch k {
	case value.KindPair:
		words(0, 2)
	case value.KindClosure:
		words(0, 1+p.closureFreeVars(w))
	case value.KindVector:
		words(1, int(p.as.load(base).FixnumValue()))
	case value.KindRecord:
		words(0, 1+p.rtdLength(p.as.load(base)))
	case value.KindSymbol:
		words(1, 5)
	case value.KindRatnum, value.KindCompnum, value.KindCflonum:
		words(1, 2)
	case value.KindContinuation:
		words(1, 3)
	case value.KindSystemContinuation:
		words(1, 2)
	case value.KindTCBucket:
		words(1, value.TCBucketFieldCount)
	case value.KindPort:
		words(1, value.PortFieldCount)
	case value.KindCode:
		fn(fieldAddr(w, value.OffCodeReloc))
		fn(fieldAddr(w, value.OffCodeAnnotation))
	}
}
