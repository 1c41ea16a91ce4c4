package value

// Secondary tags stored in the first word of vector-family objects. A fixnum
// there means a plain vector and a vector-tagged pointer means a record; the
// remaining kinds use the singletons below or the bignum and port patterns.
const (
	FlonumTag             Word = 0x17
	ContinuationTag       Word = 0x1F
	RatnumTag             Word = 0x27
	CodeTag               Word = 0x2F
	CompnumTag            Word = 0x37
	CflonumTag            Word = 0x47
	SymbolTag             Word = 0x5F
	TCBucketTag           Word = 0x67
	PointerTag            Word = 0x107
	SystemContinuationTag Word = 0x11F

	bignumTag         uint64 = 0x3
	bignumMask        uint64 = 0x7
	bignumSignBit     uint64 = 0x8
	bignumLengthShift        = 4

	portTag        uint64 = 0x3F
	portMask       uint64 = 0x3F
	portAttrsShift        = 6
)

// Kind is the closed set of value kinds. Everything outside this package
// dispatches on Kind instead of on raw bits.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindFixnum
	KindChar
	KindBoolean
	KindNull
	KindEOF
	KindVoid
	KindUnbound
	KindBWP
	KindPair
	KindBytevector
	KindClosure
	KindString
	KindVector
	KindRecord
	KindFlonum
	KindBignum
	KindRatnum
	KindCompnum
	KindCflonum
	KindCode
	KindPort
	KindContinuation
	KindSystemContinuation
	KindTCBucket
	KindSymbol
	KindPointer
)

var kindNames = [...]string{
	KindInvalid:            "invalid",
	KindFixnum:             "fixnum",
	KindChar:               "char",
	KindBoolean:            "boolean",
	KindNull:               "null",
	KindEOF:                "eof",
	KindVoid:               "void",
	KindUnbound:            "unbound",
	KindBWP:                "bwp",
	KindPair:               "pair",
	KindBytevector:         "bytevector",
	KindClosure:            "closure",
	KindString:             "string",
	KindVector:             "vector",
	KindRecord:             "record",
	KindFlonum:             "flonum",
	KindBignum:             "bignum",
	KindRatnum:             "ratnum",
	KindCompnum:            "compnum",
	KindCflonum:            "cflonum",
	KindCode:               "code",
	KindPort:               "port",
	KindContinuation:       "continuation",
	KindSystemContinuation: "system-continuation",
	KindTCBucket:           "tcbucket",
	KindSymbol:             "symbol",
	KindPointer:            "pointer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "invalid"
}

// IsHeap reports whether values of this kind live on the heap.
func (k Kind) IsHeap() bool {
	return k >= KindPair
}

// Classify returns the kind of w. For vector-family pointers the caller
// supplies the object's first word; it is ignored for every other class so
// non-heap words are never dereferenced.
func Classify(w Word, header Word) Kind {
	switch w.PrimaryTag() {
	case FixnumTag:
		return KindFixnum
	case PairTag:
		return KindPair
	case BytevectorTag:
		return KindBytevector
	case ClosureTag:
		return KindClosure
	case StringTag:
		return KindString
	case VectorTag:
		return ClassifyHeader(header)
	case ImmediateTag:
		return classifyImmediate(w)
	}
	return KindInvalid
}

func classifyImmediate(w Word) Kind {
	if w.IsChar() {
		return KindChar
	}
	switch w {
	case True, False:
		return KindBoolean
	case Null:
		return KindNull
	case EOF:
		return KindEOF
	case Void:
		return KindVoid
	case Unbound:
		return KindUnbound
	case BWP:
		return KindBWP
	}
	return KindInvalid
}

// ClassifyHeader resolves the secondary tag of a vector-family object.
func ClassifyHeader(h Word) Kind {
	switch h.PrimaryTag() {
	case FixnumTag:
		return KindVector
	case VectorTag:
		return KindRecord
	}
	if uint64(h)&bignumMask == bignumTag {
		return KindBignum
	}
	switch h {
	case FlonumTag:
		return KindFlonum
	case ContinuationTag:
		return KindContinuation
	case SystemContinuationTag:
		return KindSystemContinuation
	case RatnumTag:
		return KindRatnum
	case CodeTag:
		return KindCode
	case CompnumTag:
		return KindCompnum
	case CflonumTag:
		return KindCflonum
	case SymbolTag:
		return KindSymbol
	case TCBucketTag:
		return KindTCBucket
	case PointerTag:
		return KindPointer
	}
	if uint64(h)&portMask == portTag {
		return KindPort
	}
	return KindInvalid
}

// ---------------------------------------------------------------------------
// Bignum headers
// ---------------------------------------------------------------------------

// BignumHeader builds the first word of a bignum with the given limb count.
func BignumHeader(limbs int, negative bool) Word {
	h := uint64(limbs)<<bignumLengthShift | bignumTag
	if negative {
		h |= bignumSignBit
	}
	return Word(h)
}

// BignumLimbs returns the limb count stored in a bignum header.
func (w Word) BignumLimbs() int {
	return int(uint64(w) >> bignumLengthShift)
}

// BignumNegative reports the sign stored in a bignum header.
func (w Word) BignumNegative() bool {
	return uint64(w)&bignumSignBit != 0
}

// ---------------------------------------------------------------------------
// Port headers
// ---------------------------------------------------------------------------

// PortHeader builds the first word of a port with the given attribute bits.
func PortHeader(attrs uint64) Word {
	return Word(attrs<<portAttrsShift | portTag)
}

// PortAttrs returns the attribute bits of a port header.
func (w Word) PortAttrs() uint64 {
	return uint64(w) >> portAttrsShift
}
