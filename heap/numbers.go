package heap

import (
	"math"
	"math/big"

	"github.com/chazu/ikheap/value"
)

// MakeFlonum boxes a double.
func (p *PCB) MakeFlonum(f float64) (value.Word, error) {
	w, err := p.Alloc(value.FlonumSize, value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(w.Base(), value.FlonumTag)
	p.as.store(fieldAddr(w, value.OffFlonumData), value.Word(math.Float64bits(f)))
	return w, nil
}

// FlonumValue unboxes a double.
func (p *PCB) FlonumValue(w value.Word) float64 {
	p.mustKind("flonum-value", w, value.KindFlonum)
	return math.Float64frombits(uint64(p.Ref(w, value.OffFlonumData)))
}

// ---------------------------------------------------------------------------
// Exact integers
// ---------------------------------------------------------------------------

// Integer returns n as a fixnum when it fits and as a bignum otherwise.
func (p *PCB) Integer(n int64) (value.Word, error) {
	if w, ok := value.Fixnum(n); ok {
		return w, nil
	}
	mag := uint64(n)
	if n < 0 {
		mag = -mag
	}
	return p.makeBignum([]uint64{mag}, n < 0)
}

// Uint64 returns n as a fixnum when it fits and as a bignum otherwise.
func (p *PCB) Uint64(n uint64) (value.Word, error) {
	if n <= uint64(value.MostPositiveFixnum) {
		return value.MustFixnum(int64(n)), nil
	}
	return p.makeBignum([]uint64{n}, false)
}

// BigInt returns x as a fixnum when it fits and as a bignum otherwise.
func (p *PCB) BigInt(x *big.Int) (value.Word, error) {
	if x.IsInt64() {
		return p.Integer(x.Int64())
	}
	mag := new(big.Int).Abs(x).Bytes()
	limbs := make([]uint64, (len(mag)+7)/8)
	for i, b := range mag {
		shift := len(mag) - 1 - i
		limbs[shift/8] |= uint64(b) << (8 * (shift % 8))
	}
	return p.makeBignum(limbs, x.Sign() < 0)
}

func (p *PCB) makeBignum(limbs []uint64, negative bool) (value.Word, error) {
	w, err := p.Alloc(value.BignumBytes(len(limbs)), value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(w.Base(), value.BignumHeader(len(limbs), negative))
	for i, l := range limbs {
		p.as.store(fieldAddr(w, value.OffBignumData+i*value.WordSize), value.Word(l))
	}
	return w, nil
}

// IntegerValue decodes a fixnum or bignum.
func (p *PCB) IntegerValue(w value.Word) *big.Int {
	if w.IsFixnum() {
		return big.NewInt(w.FixnumValue())
	}
	p.mustKind("integer-value", w, value.KindBignum)
	h := p.as.load(w.Base())
	n := h.BignumLimbs()
	mag := make([]byte, n*8)
	for i := range n {
		l := uint64(p.Ref(w, value.OffBignumData+i*value.WordSize))
		for j := range 8 {
			mag[len(mag)-1-(i*8+j)] = byte(l >> (8 * j))
		}
	}
	x := new(big.Int).SetBytes(mag)
	if h.BignumNegative() {
		x.Neg(x)
	}
	return x
}

// ---------------------------------------------------------------------------
// Ratnums and complex numbers
// ---------------------------------------------------------------------------

// MakeRatnum builds num/den. Normalisation is the caller's business.
func (p *PCB) MakeRatnum(num, den value.Word) (value.Word, error) {
	return p.makeNumPair(value.RatnumTag, num, den)
}

// RatnumParts returns the numerator and denominator.
func (p *PCB) RatnumParts(w value.Word) (num, den value.Word) {
	p.mustKind("ratnum-parts", w, value.KindRatnum)
	return p.Ref(w, value.OffRatnumNum), p.Ref(w, value.OffRatnumDen)
}

// MakeCompnum builds an exact or mixed complex number.
func (p *PCB) MakeCompnum(re, im value.Word) (value.Word, error) {
	return p.makeNumPair(value.CompnumTag, re, im)
}

// CompnumParts returns the real and imaginary parts.
func (p *PCB) CompnumParts(w value.Word) (re, im value.Word) {
	p.mustKind("compnum-parts", w, value.KindCompnum)
	return p.Ref(w, value.OffCompnumReal), p.Ref(w, value.OffCompnumImag)
}

// MakeCflonum builds an inexact complex number from two fresh flonums.
func (p *PCB) MakeCflonum(z complex128) (value.Word, error) {
	re, err := p.MakeFlonum(real(z))
	if err != nil {
		return 0, err
	}
	defer p.protect(&re)()
	im, err := p.MakeFlonum(imag(z))
	if err != nil {
		return 0, err
	}
	return p.makeNumPair(value.CflonumTag, re, im)
}

// CflonumValue returns the complex value.
func (p *PCB) CflonumValue(w value.Word) complex128 {
	p.mustKind("cflonum-value", w, value.KindCflonum)
	re := p.FlonumValue(p.Ref(w, value.OffCflonumReal))
	im := p.FlonumValue(p.Ref(w, value.OffCflonumImag))
	return complex(re, im)
}

func (p *PCB) makeNumPair(tag, a, b value.Word) (value.Word, error) {
	defer p.protect(&a, &b)()
	w, err := p.Alloc(value.RatnumSize, value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(w.Base(), tag)
	p.as.store(w.Base()+value.WordSize, a)
	p.as.store(w.Base()+2*value.WordSize, b)
	return w, nil
}
