package value

// Word is a tagged machine word, the universal runtime value.
//
// The low three bits select a primary class:
//   - 000 fixnum: signed integer shifted left by three
//   - 001 pair
//   - 010 bytevector
//   - 011 closure
//   - 101 vector family (secondary tag in the first heap word)
//   - 110 string
//   - 111 immediate: singletons and characters, compared by exact value
//
// Heap pointers carry their primary tag for their whole life. Relocating an
// object computes a new base and adds the same tag back.
type Word uint64

// Machine layout constants. The word size is fixed at 64 bits.
const (
	WordSize  = 8
	WordShift = 3

	// AlignSize is the allocation granularity: every object starts on a
	// word-pair boundary so the three tag bits are always free.
	AlignSize  = 2 * WordSize
	AlignShift = 1 + WordShift

	PageSize  = 4096
	PageShift = 12
)

// Primary tags.
const (
	FixnumTag     uint64 = 0
	PairTag       uint64 = 1
	BytevectorTag uint64 = 2
	ClosureTag    uint64 = 3
	unusedTag     uint64 = 4
	VectorTag     uint64 = 5
	StringTag     uint64 = 6
	ImmediateTag  uint64 = 7

	// PrimaryMask extracts the primary tag.
	PrimaryMask uint64 = 7
)

// Singleton immediates.
const (
	False   Word = 0x2F
	True    Word = 0x3F
	Null    Word = 0x4F
	EOF     Word = 0x5F
	Unbound Word = 0x6F
	Void    Word = 0x7F

	// BWP marks a location whose weak referent became garbage.
	BWP Word = 0x8F
)

// Character immediates.
const (
	charTag   uint64 = 0x0F
	charMask  uint64 = 0xFF
	charShift        = 8
)

// Fixnum range: 61 bits of signed magnitude.
const (
	fixnumShift = WordShift

	MostPositiveFixnum int64 = 1<<60 - 1
	MostNegativeFixnum int64 = -(1 << 60)
)

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// PrimaryTag returns the low tag bits of w.
func (w Word) PrimaryTag() uint64 {
	return uint64(w) & PrimaryMask
}

// IsFixnum reports whether w is a fixnum.
func (w Word) IsFixnum() bool {
	return uint64(w)&PrimaryMask == FixnumTag
}

// IsPair reports whether w points at a pair.
func (w Word) IsPair() bool {
	return uint64(w)&PrimaryMask == PairTag
}

// IsBytevector reports whether w points at a bytevector.
func (w Word) IsBytevector() bool {
	return uint64(w)&PrimaryMask == BytevectorTag
}

// IsClosure reports whether w points at a closure.
func (w Word) IsClosure() bool {
	return uint64(w)&PrimaryMask == ClosureTag
}

// IsVectorFamily reports whether w points at a vector-family object. The
// exact kind needs the object's first word; see ClassifyHeader.
func (w Word) IsVectorFamily() bool {
	return uint64(w)&PrimaryMask == VectorTag
}

// IsString reports whether w points at a string.
func (w Word) IsString() bool {
	return uint64(w)&PrimaryMask == StringTag
}

// IsImmediate reports whether w is a singleton or a character.
func (w Word) IsImmediate() bool {
	return uint64(w)&PrimaryMask == ImmediateTag
}

// IsChar reports whether w is a character.
func (w Word) IsChar() bool {
	return uint64(w)&charMask == charTag
}

// IsBool reports whether w is #t or #f.
func (w Word) IsBool() bool {
	return w == True || w == False
}

// IsHeapPointer reports whether w references heap memory. Fixnums and
// immediates never do and must never be dereferenced.
func (w Word) IsHeapPointer() bool {
	switch uint64(w) & PrimaryMask {
	case PairTag, BytevectorTag, ClosureTag, VectorTag, StringTag:
		return true
	}
	return false
}

// Base returns the untagged address of a heap pointer.
func (w Word) Base() uint64 {
	return uint64(w) &^ PrimaryMask
}

// Tagged builds a heap pointer from an aligned base address.
func Tagged(base uint64, tag uint64) Word {
	if base&(AlignSize-1) != 0 {
		panic("value.Tagged: misaligned base address")
	}
	return Word(base | tag)
}

// Retag returns the pointer with the same primary tag as w at a new base.
func (w Word) Retag(base uint64) Word {
	return Tagged(base, w.PrimaryTag())
}

// ---------------------------------------------------------------------------
// Fixnums
// ---------------------------------------------------------------------------

// Fixnum encodes n. It reports false when n is outside the fixnum range;
// such magnitudes must be boxed as bignums, never truncated.
func Fixnum(n int64) (Word, bool) {
	if n > MostPositiveFixnum || n < MostNegativeFixnum {
		return 0, false
	}
	return Word(uint64(n) << fixnumShift), true
}

// MustFixnum encodes n and panics when it is out of range.
func MustFixnum(n int64) Word {
	w, ok := Fixnum(n)
	if !ok {
		panic("value.MustFixnum: value out of range")
	}
	return w
}

// FixnumValue decodes a fixnum.
// Panics if w is not a fixnum.
func (w Word) FixnumValue() int64 {
	if !w.IsFixnum() {
		panic("Word.FixnumValue: not a fixnum")
	}
	return int64(w) >> fixnumShift
}

// ---------------------------------------------------------------------------
// Characters and booleans
// ---------------------------------------------------------------------------

// Char encodes a Unicode code point.
func Char(r rune) Word {
	return Word(uint64(uint32(r))<<charShift | charTag)
}

// CharValue decodes a character.
// Panics if w is not a character.
func (w Word) CharValue() rune {
	if !w.IsChar() {
		panic("Word.CharValue: not a character")
	}
	return rune(uint64(w) >> charShift)
}

// Bool encodes b.
func Bool(b bool) Word {
	if b {
		return True
	}
	return False
}

// IsTruthy follows Scheme: only #f is false.
func (w Word) IsTruthy() bool {
	return w != False
}

// ---------------------------------------------------------------------------
// Size helpers
// ---------------------------------------------------------------------------

// Align rounds n up to the allocation granularity.
func Align(n int) int {
	return ((n + AlignSize - 1) >> AlignShift) << AlignShift
}
