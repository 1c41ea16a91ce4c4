package value

// Field offsets are displacements minus the primary tag, so a tagged pointer
// is both the object's identity and the base for field access.

// Pairs.
const (
	PairSize = 2 * WordSize

	OffCar = 0 - int(PairTag)
	OffCdr = WordSize - int(PairTag)
)

// Vectors: length fixnum followed by items.
const (
	OffVectorLength = 0 - int(VectorTag)
	OffVectorData   = WordSize - int(VectorTag)
)

// Strings: length fixnum followed by 32-bit code points.
const (
	StringCharSize = 4

	OffStringLength = 0 - int(StringTag)
	OffStringData   = WordSize - int(StringTag)
)

// Bytevectors: length fixnum followed by bytes and a NUL terminator.
const (
	OffBytevectorLength = 0 - int(BytevectorTag)
	OffBytevectorData   = WordSize - int(BytevectorTag)
)

// Closures: code object followed by free variables.
const (
	OffClosureCode = 0 - int(ClosureTag)
	OffClosureData = WordSize - int(ClosureTag)
)

// Records: type descriptor followed by fields.
const (
	OffRecordRTD  = 0 - int(VectorTag)
	OffRecordData = WordSize - int(VectorTag)
)

// Record-type descriptors are records whose descriptor is the base RTD.
const (
	RTDFieldCount = 5
	RTDSize       = (1 + RTDFieldCount) * WordSize

	OffRTDName    = 1*WordSize - int(VectorTag)
	OffRTDLength  = 2*WordSize - int(VectorTag)
	OffRTDFields  = 3*WordSize - int(VectorTag)
	OffRTDPrinter = 4*WordSize - int(VectorTag)
	OffRTDSymbol  = 5*WordSize - int(VectorTag)
)

// Symbols.
const (
	SymbolSize = 6 * WordSize

	OffSymbolString  = 1*WordSize - int(VectorTag)
	OffSymbolUString = 2*WordSize - int(VectorTag)
	OffSymbolValue   = 3*WordSize - int(VectorTag)
	OffSymbolProc    = 4*WordSize - int(VectorTag)
	OffSymbolPlist   = 5*WordSize - int(VectorTag)
)

// Flonums keep the IEEE double at a fixed byte displacement.
const (
	FlonumSize = 16

	OffFlonumData = 8 - int(VectorTag)
)

// Ratnums, compnums and cflonums share a four-word shape.
const (
	RatnumSize  = 4 * WordSize
	CompnumSize = 4 * WordSize
	CflonumSize = 4 * WordSize

	OffRatnumNum   = 1*WordSize - int(VectorTag)
	OffRatnumDen   = 2*WordSize - int(VectorTag)
	OffCompnumReal = 1*WordSize - int(VectorTag)
	OffCompnumImag = 2*WordSize - int(VectorTag)
	OffCflonumReal = 1*WordSize - int(VectorTag)
	OffCflonumImag = 2*WordSize - int(VectorTag)
)

// Bignums: header followed by little-endian 64-bit limbs.
const (
	OffBignumData = WordSize - int(VectorTag)
)

// Foreign pointers.
const (
	PointerSize = 2 * WordSize

	OffPointerData = WordSize - int(VectorTag)
)

// Continuations.
const (
	ContinuationSize = 4 * WordSize

	OffContinuationTop  = 1*WordSize - int(VectorTag)
	OffContinuationSize = 2*WordSize - int(VectorTag)
	OffContinuationNext = 3*WordSize - int(VectorTag)

	SystemContinuationSize = 4 * WordSize

	OffSystemContinuationTop  = 1*WordSize - int(VectorTag)
	OffSystemContinuationNext = 2*WordSize - int(VectorTag)
)

// Thread-context buckets.
const (
	TCBucketFieldCount = 4
	TCBucketSize       = (1 + TCBucketFieldCount) * WordSize

	OffTCBucketTConc = 1*WordSize - int(VectorTag)
	OffTCBucketKey   = 2*WordSize - int(VectorTag)
	OffTCBucketVal   = 3*WordSize - int(VectorTag)
	OffTCBucketNext  = 4*WordSize - int(VectorTag)
)

// Ports: header word holding the attributes, then thirteen fields.
const (
	PortFieldCount = 13
	PortSize       = (1 + PortFieldCount) * WordSize
)

// PortField names a port slot.
type PortField int

const (
	PortIndex PortField = iota + 1
	PortBufferSize
	PortBuffer
	PortTranscoder
	PortID
	PortRead
	PortWrite
	PortGetPosition
	PortSetPosition
	PortClose
	PortCookie
	PortUnused1
	PortUnused2
)

// Offset returns the field offset of a port slot.
func (f PortField) Offset() int {
	return int(f)*WordSize - int(VectorTag)
}

// Code objects: tagged fields followed by raw machine code.
const (
	CodeHeaderSize = 6 * WordSize

	OffCodeSize       = 1*WordSize - int(VectorTag)
	OffCodeReloc      = 2*WordSize - int(VectorTag)
	OffCodeFreeVars   = 3*WordSize - int(VectorTag)
	OffCodeAnnotation = 4*WordSize - int(VectorTag)
	OffCodeData       = 6*WordSize - int(VectorTag)
)

// VectorBytes is the allocation size of a vector of n items.
func VectorBytes(n int) int { return Align((n + 1) * WordSize) }

// RecordBytes is the allocation size of a record with n fields.
func RecordBytes(n int) int { return Align((n + 1) * WordSize) }

// ClosureBytes is the allocation size of a closure with n free variables.
func ClosureBytes(n int) int { return Align((n + 1) * WordSize) }

// StringBytes is the allocation size of a string of n characters.
func StringBytes(n int) int { return Align(WordSize + n*StringCharSize) }

// BytevectorBytes is the allocation size of a bytevector of n bytes,
// including the NUL terminator.
func BytevectorBytes(n int) int { return Align(WordSize + n + 1) }

// BignumBytes is the allocation size of a bignum with n limbs.
func BignumBytes(n int) int { return Align((n + 1) * WordSize) }

// CodeBytes is the allocation size of a code object with n bytes of code.
func CodeBytes(n int) int { return Align(CodeHeaderSize + n) }
