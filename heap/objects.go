package heap

import (
	"fmt"

	"github.com/chazu/ikheap/value"
)

// Constructors return fresh nursery objects. Word arguments are protected
// for the duration of the call, so they may be the only reference to their
// referents. Accessors panic when handed a value of the wrong kind.

func (p *PCB) mustKind(op string, w value.Word, want value.Kind) {
	if got := p.KindOf(w); got != want {
		panic(&KindError{Op: op, Want: want.String(), Got: got.String()})
	}
}

func checkIndex(op string, i, n int) {
	if i < 0 || i >= n {
		panic(fmt.Sprintf("heap: %s: index %d out of range [0, %d)", op, i, n))
	}
}

// ---------------------------------------------------------------------------
// Pairs and lists
// ---------------------------------------------------------------------------

// Cons allocates a pair.
func (p *PCB) Cons(car, cdr value.Word) (value.Word, error) {
	defer p.protect(&car, &cdr)()
	w, err := p.Alloc(value.PairSize, value.PairTag)
	if err != nil {
		return 0, err
	}
	p.as.store(fieldAddr(w, value.OffCar), car)
	p.as.store(fieldAddr(w, value.OffCdr), cdr)
	return w, nil
}

// Car returns the car of a pair.
func (p *PCB) Car(w value.Word) value.Word {
	p.mustKind("car", w, value.KindPair)
	return p.Ref(w, value.OffCar)
}

// Cdr returns the cdr of a pair.
func (p *PCB) Cdr(w value.Word) value.Word {
	p.mustKind("cdr", w, value.KindPair)
	return p.Ref(w, value.OffCdr)
}

// SetCar stores through the write barrier.
func (p *PCB) SetCar(w, v value.Word) {
	p.mustKind("set-car!", w, value.KindPair)
	p.SetField(w, value.OffCar, v)
}

// SetCdr stores through the write barrier.
func (p *PCB) SetCdr(w, v value.Word) {
	p.mustKind("set-cdr!", w, value.KindPair)
	p.SetField(w, value.OffCdr, v)
}

// List builds a proper list of ws.
func (p *PCB) List(ws ...value.Word) (value.Word, error) {
	ws = append([]value.Word(nil), ws...)
	defer p.protectSlice(ws)()
	l := value.Null
	defer p.protect(&l)()
	for i := len(ws) - 1; i >= 0; i-- {
		pair, err := p.Cons(ws[i], l)
		if err != nil {
			return 0, err
		}
		l = pair
	}
	return l, nil
}

// ListFromStrings builds a list of fresh strings, as for a program's
// argument vector.
func (p *PCB) ListFromStrings(args []string) (value.Word, error) {
	l := value.Null
	defer p.protect(&l)()
	for i := len(args) - 1; i >= 0; i-- {
		s, err := p.MakeString(args[i])
		if err != nil {
			return 0, err
		}
		pair, err := p.Cons(s, l)
		if err != nil {
			return 0, err
		}
		l = pair
	}
	return l, nil
}

// ListToSlice returns the elements of a proper list.
func (p *PCB) ListToSlice(l value.Word) []value.Word {
	var out []value.Word
	for ; l != value.Null; l = p.Cdr(l) {
		out = append(out, p.Car(l))
	}
	return out
}

// ListLength returns the length of a proper list.
func (p *PCB) ListLength(l value.Word) int {
	n := 0
	for ; l != value.Null; l = p.Cdr(l) {
		n++
	}
	return n
}

// ---------------------------------------------------------------------------
// Vectors
// ---------------------------------------------------------------------------

// MakeVector allocates a vector of n items set to fill.
func (p *PCB) MakeVector(n int, fill value.Word) (value.Word, error) {
	if n < 0 {
		return 0, fmt.Errorf("heap: make-vector: negative length %d", n)
	}
	defer p.protect(&fill)()
	w, err := p.Alloc(value.VectorBytes(n), value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(w.Base(), value.MustFixnum(int64(n)))
	if fill != 0 {
		for i := range n {
			p.as.store(fieldAddr(w, value.OffVectorData+i*value.WordSize), fill)
		}
	}
	return w, nil
}

// Vector allocates a vector holding ws.
func (p *PCB) Vector(ws ...value.Word) (value.Word, error) {
	ws = append([]value.Word(nil), ws...)
	defer p.protectSlice(ws)()
	w, err := p.MakeVector(len(ws), 0)
	if err != nil {
		return 0, err
	}
	for i, x := range ws {
		p.as.store(fieldAddr(w, value.OffVectorData+i*value.WordSize), x)
	}
	return w, nil
}

// VectorLength returns the item count of a vector.
func (p *PCB) VectorLength(w value.Word) int {
	p.mustKind("vector-length", w, value.KindVector)
	return int(p.Ref(w, value.OffVectorLength).FixnumValue())
}

// VectorRef returns item i.
func (p *PCB) VectorRef(w value.Word, i int) value.Word {
	checkIndex("vector-ref", i, p.VectorLength(w))
	return p.Ref(w, value.OffVectorData+i*value.WordSize)
}

// VectorSet stores item i through the write barrier.
func (p *PCB) VectorSet(w value.Word, i int, v value.Word) {
	checkIndex("vector-set!", i, p.VectorLength(w))
	p.SetField(w, value.OffVectorData+i*value.WordSize, v)
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// MakeString allocates a string holding the code points of s.
func (p *PCB) MakeString(s string) (value.Word, error) {
	rs := []rune(s)
	w, err := p.Alloc(value.StringBytes(len(rs)), value.StringTag)
	if err != nil {
		return 0, err
	}
	p.as.store(w.Base(), value.MustFixnum(int64(len(rs))))
	for i, r := range rs {
		p.as.store32(fieldAddr(w, value.OffStringData+i*value.StringCharSize), uint32(r))
	}
	return w, nil
}

// StringLength returns the character count of a string.
func (p *PCB) StringLength(w value.Word) int {
	p.mustKind("string-length", w, value.KindString)
	return int(p.Ref(w, value.OffStringLength).FixnumValue())
}

// StringRef returns character i.
func (p *PCB) StringRef(w value.Word, i int) rune {
	checkIndex("string-ref", i, p.StringLength(w))
	return rune(p.as.load32(fieldAddr(w, value.OffStringData+i*value.StringCharSize)))
}

// StringSet replaces character i. Strings hold no pointers, so no barrier.
func (p *PCB) StringSet(w value.Word, i int, r rune) {
	checkIndex("string-set!", i, p.StringLength(w))
	p.as.store32(fieldAddr(w, value.OffStringData+i*value.StringCharSize), uint32(r))
}

// GoString returns the contents of a string.
func (p *PCB) GoString(w value.Word) string {
	n := p.StringLength(w)
	rs := make([]rune, n)
	for i := range rs {
		rs[i] = rune(p.as.load32(fieldAddr(w, value.OffStringData+i*value.StringCharSize)))
	}
	return string(rs)
}

// ---------------------------------------------------------------------------
// Bytevectors
// ---------------------------------------------------------------------------

// MakeBytevector allocates n zero bytes.
func (p *PCB) MakeBytevector(n int) (value.Word, error) {
	if n < 0 {
		return 0, fmt.Errorf("heap: make-bytevector: negative length %d", n)
	}
	w, err := p.Alloc(value.BytevectorBytes(n), value.BytevectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(w.Base(), value.MustFixnum(int64(n)))
	return w, nil
}

// BytevectorFrom allocates a bytevector holding a copy of b.
func (p *PCB) BytevectorFrom(b []byte) (value.Word, error) {
	w, err := p.MakeBytevector(len(b))
	if err != nil {
		return 0, err
	}
	p.as.writeBytes(fieldAddr(w, value.OffBytevectorData), b)
	return w, nil
}

// BytevectorLength returns the byte count of a bytevector.
func (p *PCB) BytevectorLength(w value.Word) int {
	p.mustKind("bytevector-length", w, value.KindBytevector)
	return int(p.Ref(w, value.OffBytevectorLength).FixnumValue())
}

// Bytes returns a copy of the contents of a bytevector.
func (p *PCB) Bytes(w value.Word) []byte {
	n := p.BytevectorLength(w)
	return p.as.readBytes(fieldAddr(w, value.OffBytevectorData), n)
}

// BytevectorU8Ref returns byte i.
func (p *PCB) BytevectorU8Ref(w value.Word, i int) byte {
	checkIndex("bytevector-u8-ref", i, p.BytevectorLength(w))
	return p.as.readBytes(fieldAddr(w, value.OffBytevectorData+i), 1)[0]
}

// BytevectorU8Set replaces byte i.
func (p *PCB) BytevectorU8Set(w value.Word, i int, b byte) {
	checkIndex("bytevector-u8-set!", i, p.BytevectorLength(w))
	p.as.writeBytes(fieldAddr(w, value.OffBytevectorData+i), []byte{b})
}

// ---------------------------------------------------------------------------
// Foreign pointers
// ---------------------------------------------------------------------------

// MakePointer boxes a native address.
func (p *PCB) MakePointer(addr uintptr) (value.Word, error) {
	w, err := p.Alloc(value.PointerSize, value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(w.Base(), value.PointerTag)
	p.as.store(fieldAddr(w, value.OffPointerData), value.Word(addr))
	return w, nil
}

// PointerValue returns the boxed address.
func (p *PCB) PointerValue(w value.Word) uintptr {
	p.mustKind("pointer-value", w, value.KindPointer)
	return uintptr(p.Ref(w, value.OffPointerData))
}
