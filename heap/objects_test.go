package heap

import (
	"errors"
	"math"
	"math/big"
	"strings"
	"testing"

	"github.com/chazu/ikheap/value"
)

// ---------------------------------------------------------------------------
// Pairs, lists and vectors
// ---------------------------------------------------------------------------

func TestListHelpers(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	l := m(p.List(fx(1), fx(2), fx(3)))
	if n := p.ListLength(l); n != 3 {
		t.Fatalf("length = %d", n)
	}
	for i, w := range p.ListToSlice(l) {
		if w != fx(int64(i+1)) {
			t.Errorf("item %d = %#x", i, uint64(w))
		}
	}
	if empty := m(p.List()); empty != value.Null {
		t.Errorf("empty list = %#x", uint64(empty))
	}

	argv := m(p.ListFromStrings([]string{"ikheap", "-v", "run"}))
	var got []string
	for _, s := range p.ListToSlice(argv) {
		got = append(got, p.GoString(s))
	}
	if strings.Join(got, " ") != "ikheap -v run" {
		t.Errorf("argv = %q", got)
	}
}

func TestVectorBounds(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	v := m(p.MakeVector(3, fx(9)))
	if p.VectorRef(v, 2) != fx(9) {
		t.Errorf("fill not applied")
	}
	func() {
		defer func() {
			if recover() == nil {
				t.Error("VectorRef(3) did not panic")
			}
		}()
		p.VectorRef(v, 3)
	}()
	if _, err := p.MakeVector(-1, 0); err == nil {
		t.Error("negative length accepted")
	}
	empty := m(p.MakeVector(0, 0))
	if p.VectorLength(empty) != 0 {
		t.Error("empty vector has items")
	}
}

func TestAccessorKindCheck(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)
	s := m(p.MakeString("not a pair"))

	defer func() {
		r := recover()
		var ke *KindError
		if err, ok := r.(error); !ok || !errors.As(err, &ke) {
			t.Fatalf("recovered %v, want *KindError", r)
		}
		if ke.Want != "pair" || ke.Got != "string" {
			t.Errorf("KindError = %+v", ke)
		}
	}()
	p.Car(s)
}

// ---------------------------------------------------------------------------
// Strings and bytevectors
// ---------------------------------------------------------------------------

func TestStrings(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	s := m(p.MakeString("héllo, 世界"))
	if n := p.StringLength(s); n != 9 {
		t.Errorf("length = %d, want 9", n)
	}
	if r := p.StringRef(s, 7); r != '世' {
		t.Errorf("char 7 = %q", r)
	}
	p.StringSet(s, 0, 'H')
	if got := p.GoString(s); got != "Héllo, 世界" {
		t.Errorf("string = %q", got)
	}
	if k := p.KindOf(s); k != value.KindString {
		t.Errorf("kind = %s", k)
	}
}

func TestBytevectors(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	b := m(p.MakeBytevector(5))
	p.BytevectorU8Set(b, 4, 0x7F)
	if got := p.Bytes(b); string(got) != "\x00\x00\x00\x00\x7F" {
		t.Errorf("bytes = %x", got)
	}
	if p.BytevectorU8Ref(b, 4) != 0x7F {
		t.Error("u8-ref")
	}
	// NUL terminator sits after the data.
	nul := p.as.readBytes(b.Base()+value.WordSize+5, 1)
	if nul[0] != 0 {
		t.Errorf("terminator = %#x", nul[0])
	}
}

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

func TestIntegerRouting(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	tests := []struct {
		n      int64
		bignum bool
	}{
		{0, false},
		{-7, false},
		{value.MostPositiveFixnum, false},
		{value.MostNegativeFixnum, false},
		{value.MostPositiveFixnum + 1, true},
		{value.MostNegativeFixnum - 1, true},
		{math.MaxInt64, true},
		{math.MinInt64, true},
	}
	for _, tt := range tests {
		w := m(p.Integer(tt.n))
		if got := p.KindOf(w) == value.KindBignum; got != tt.bignum {
			t.Errorf("Integer(%d) bignum = %v, want %v", tt.n, got, tt.bignum)
		}
		if got := p.IntegerValue(w); got.Cmp(big.NewInt(tt.n)) != 0 {
			t.Errorf("IntegerValue(Integer(%d)) = %v", tt.n, got)
		}
	}

	u := m(p.Uint64(math.MaxUint64))
	if got := p.IntegerValue(u); got.Cmp(new(big.Int).SetUint64(math.MaxUint64)) != 0 {
		t.Errorf("Uint64 round trip = %v", got)
	}
	if w := m(p.Uint64(5)); w != fx(5) {
		t.Errorf("small Uint64 not a fixnum")
	}
}

func TestBigIntRoundTrip(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	for _, s := range []string{
		"0",
		"-1152921504606846976",
		"1152921504606846976",
		"340282366920938463463374607431768211456",
		"-98765432109876543210987654321098765432109876543210",
	} {
		x, _ := new(big.Int).SetString(s, 10)
		w := m(p.BigInt(x))
		if got := p.IntegerValue(w); got.Cmp(x) != 0 {
			t.Errorf("BigInt(%s) decodes to %v", s, got)
		}
	}
	neg := m(p.BigInt(big.NewInt(0).Lsh(big.NewInt(-1), 100)))
	if !p.as.load(neg.Base()).BignumNegative() || p.as.load(neg.Base()).BignumLimbs() != 2 {
		t.Errorf("header of -2^100 = %#x", uint64(p.as.load(neg.Base())))
	}
}

func TestFlonumsAndComplex(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	for _, f := range []float64{0, -0.5, math.Inf(1), math.MaxFloat64} {
		if got := p.FlonumValue(m(p.MakeFlonum(f))); got != f {
			t.Errorf("flonum %v -> %v", f, got)
		}
	}
	if nan := p.FlonumValue(m(p.MakeFlonum(math.NaN()))); !math.IsNaN(nan) {
		t.Errorf("NaN -> %v", nan)
	}
	z := m(p.MakeCflonum(complex(3, 4)))
	if p.KindOf(z) != value.KindCflonum || p.CflonumValue(z) != complex(3, 4) {
		t.Errorf("cflonum = %v", p.CflonumValue(z))
	}
	r := m(p.MakeRatnum(fx(2), fx(7)))
	if p.KindOf(r) != value.KindRatnum {
		t.Errorf("ratnum kind = %s", p.KindOf(r))
	}
}

// ---------------------------------------------------------------------------
// Records, closures and symbols
// ---------------------------------------------------------------------------

func TestRecords(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	rtd := m(p.MakeRTD("pt", "x", "y"))
	if !p.IsRTD(rtd) || !p.IsRTD(p.BaseRTD()) {
		t.Fatal("IsRTD")
	}
	if p.RecordRTD(p.BaseRTD()) != p.BaseRTD() {
		t.Error("base RTD does not describe itself")
	}
	if n := p.RTDLength(rtd); n != 2 {
		t.Errorf("length = %d", n)
	}
	if names := p.RTDFieldNames(rtd); strings.Join(names, ",") != "x,y" {
		t.Errorf("fields = %v", names)
	}
	r := m(p.MakeRecord(rtd, fx(1), fx(2)))
	if p.IsRTD(r) {
		t.Error("instance classified as descriptor")
	}
	p.RecordSet(r, 0, value.True)
	if p.RecordRef(r, 0) != value.True || p.RecordRef(r, 1) != fx(2) {
		t.Error("record fields")
	}
	if _, err := p.MakeRecord(rtd, fx(1)); err == nil {
		t.Error("wrong field count accepted")
	}
}

func TestClosures(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	code := m(p.MakeCode([]byte{0xC3}, 2, value.False, value.False))
	if _, err := p.MakeClosure(code, fx(1)); err == nil {
		t.Error("closure with too few free variables accepted")
	}
	c := m(p.MakeClosure(code, fx(1), fx(2)))
	p.ClosureSet(c, 1, value.Void)
	if p.ClosureLength(c) != 2 || p.ClosureRef(c, 1) != value.Void {
		t.Error("closure free variables")
	}
	if p.KindOf(c) != value.KindClosure || p.KindOf(code) != value.KindCode {
		t.Error("kinds")
	}
}

func TestSymbols(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	a := m(p.Intern("lambda"))
	b := m(p.Intern("lambda"))
	if a != b {
		t.Error("interning is not idempotent")
	}
	if p.SymbolValue(a) != value.Unbound || p.SymbolPlist(a) != value.Null {
		t.Error("fresh symbol fields")
	}
	if p.SymbolUniqueName(a) != "" {
		t.Error("interned symbol has a unique name")
	}

	g1 := m(p.MakeGensym("tmp"))
	g2 := m(p.MakeGensym("tmp"))
	if g1 == g2 || p.SymbolName(g1) != "tmp" {
		t.Error("gensyms")
	}
	u := p.SymbolUniqueName(g1)
	if u == p.SymbolUniqueName(g2) || !strings.HasPrefix(u, "tmp-") {
		t.Errorf("unique names %q %q", u, p.SymbolUniqueName(g2))
	}

	mustCollect(t, p, Major)
	if got, ok := p.Gensym(u); !ok || p.SymbolUniqueName(got) != u {
		t.Errorf("gensym table lost %q", u)
	}
}

func TestPortsAndBuckets(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	port := m(p.MakePort(0b101))
	if p.PortField(port, value.PortIndex) != fx(0) || p.PortField(port, value.PortCookie) != value.False {
		t.Error("fresh port fields")
	}
	buf := m(p.MakeBytevector(16))
	p.SetPortField(port, value.PortBuffer, buf)
	if p.PortField(port, value.PortBuffer) != buf {
		t.Error("port buffer")
	}

	b := m(p.MakeTCBucket(value.False, fx(1), fx(2), value.Null))
	p.TCBucketSet(b, value.OffTCBucketNext, b)
	if p.TCBucketRef(b, value.OffTCBucketNext) != b || p.TCBucketRef(b, value.OffTCBucketKey) != fx(1) {
		t.Error("tcbucket fields")
	}
}

func TestEqual(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	a := m(p.MakeString("x"))
	b := m(p.MakeString("x"))
	c := m(p.MakeString("y"))
	if !p.Equal(a, b) || p.Equal(a, c) {
		t.Error("string equality")
	}
	if p.Equal(fx(1), fx(2)) || !p.Equal(value.True, value.True) {
		t.Error("immediate equality")
	}
	if p.Equal(a, fx(1)) {
		t.Error("string equal to fixnum")
	}

	// Cyclic lists terminate.
	l1 := m(p.Cons(fx(1), value.Null))
	p.SetCdr(l1, l1)
	l2 := m(p.Cons(fx(1), value.Null))
	p.SetCdr(l2, l2)
	if !p.Equal(l1, l2) {
		t.Error("equal cycles reported different")
	}
}
