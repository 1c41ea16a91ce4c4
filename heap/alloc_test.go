package heap

import (
	"errors"
	"testing"

	"github.com/inhies/go-bytesize"

	"github.com/chazu/ikheap/value"
)

// ---------------------------------------------------------------------------
// Allocation contract
// ---------------------------------------------------------------------------

func TestAllocTagsAndAligns(t *testing.T) {
	p := newTestPCB(t, testConfig())

	tags := []uint64{value.PairTag, value.BytevectorTag, value.ClosureTag, value.VectorTag, value.StringTag}
	for _, tag := range tags {
		before := p.AllocationPointer()
		w, err := p.Alloc(17, tag)
		if err != nil {
			t.Fatal(err)
		}
		if w.PrimaryTag() != tag {
			t.Errorf("tag = %d, want %d", w.PrimaryTag(), tag)
		}
		if w.Base()%value.AlignSize != 0 {
			t.Errorf("base %#x not aligned", w.Base())
		}
		if w.Base() != before {
			t.Errorf("base %#x, want allocation pointer %#x", w.Base(), before)
		}
		if got := p.AllocationPointer() - before; got != 32 {
			t.Errorf("17-byte request consumed %d bytes, want 32", got)
		}
	}
}

func TestAllocRejectsBadRequests(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	s := m(p.MakeString("neighbour"))
	p.RegisterRoot(0, &s)

	tests := []struct {
		name string
		size int
		tag  uint64
	}{
		{"zero size", 0, value.PairTag},
		{"negative size", -64, value.PairTag},
		{"large negative size", -128, value.VectorTag},
		{"fixnum tag", 16, value.FixnumTag},
		{"immediate tag", 16, value.ImmediateTag},
		{"unused tag", 16, 4},
		{"tag out of range", 16, 9},
	}
	allocs := []struct {
		name string
		fn   func(int, uint64) (value.Word, error)
	}{
		{"Alloc", p.Alloc},
		{"UnsafeAlloc", p.UnsafeAlloc},
	}
	for _, a := range allocs {
		for _, tt := range tests {
			before := p.AllocationPointer()
			w, err := a.fn(tt.size, tt.tag)
			if !errors.Is(err, ErrBadAllocation) {
				t.Errorf("%s %s: err = %v, want ErrBadAllocation", a.name, tt.name, err)
			}
			if w != 0 {
				t.Errorf("%s %s: returned %#x", a.name, tt.name, uint64(w))
			}
			if got := p.AllocationPointer(); got != before {
				t.Errorf("%s %s: allocation pointer moved %#x -> %#x", a.name, tt.name, before, got)
			}
		}
	}

	// The heap is still intact for ordinary allocation.
	v := m(p.MakeVector(8, fx(7)))
	if p.VectorRef(v, 7) != fx(7) {
		t.Errorf("vector after rejected requests is corrupt")
	}
	if got := p.GoString(s); got != "neighbour" {
		t.Errorf("neighbour = %q", got)
	}
	if p.Stats().Collections != 0 {
		t.Errorf("rejected requests triggered a collection")
	}
}

func TestAllocReturnsZeroedMemory(t *testing.T) {
	p := newTestPCB(t, testConfig())
	m := mustf(t)

	junk := make([]byte, 1000)
	for i := range junk {
		junk[i] = 0xFF
	}
	for p.Stats().Collections < 2 {
		m(p.BytevectorFrom(junk))
	}
	// The nursery now reuses pages full of 0xFF.
	for range 200 {
		w, err := p.Alloc(256, value.VectorTag)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 256; i += value.WordSize {
			if x := p.as.load(w.Base() + uint64(i)); x != 0 {
				t.Fatalf("word %d of fresh object = %#x", i/value.WordSize, uint64(x))
			}
		}
	}
}

func TestRedlineMargin(t *testing.T) {
	p := newTestPCB(t, testConfig())
	chain := p.NurseryChain()
	end := chain[0].Base + uint64(chain[0].Size)
	if got, want := end-p.Redline(), uint64(8*bytesize.KB); got != want {
		t.Errorf("redline margin = %d, want %d", got, want)
	}
}

func TestUnsafeAllocGrowsChain(t *testing.T) {
	p := newTestPCB(t, testConfig())

	const block = 32 * 1024
	for len(p.NurseryChain()) < 5 {
		if _, err := p.UnsafeAlloc(block, value.VectorTag); err != nil {
			t.Fatal(err)
		}
	}
	if p.Stats().Collections != 0 {
		t.Fatalf("UnsafeAlloc collected")
	}

	want := []int{64 << 10, 64 << 10, 128 << 10, 256 << 10, 384 << 10}
	for i, seg := range p.NurseryChain() {
		if seg.Size != want[i] {
			t.Errorf("segment %d size = %d, want %d", i, seg.Size, want[i])
		}
		if seg.Generation != 0 || seg.Space != "nursery" {
			t.Errorf("segment %d = %+v", i, seg)
		}
	}
	if got := p.Stats().NurseryExtensions; got != 4 {
		t.Errorf("extensions = %d, want 4", got)
	}

	// A collection folds the whole chain into one fresh nursery.
	mustCollect(t, p, 0)
	if n := len(p.NurseryChain()); n != 1 {
		t.Errorf("chain of %d segments after collection", n)
	}
}

func TestUnsafeAllocBeyondRedline(t *testing.T) {
	p := newTestPCB(t, testConfig())

	for p.AllocationPointer()+64 <= p.Redline() {
		if _, err := p.UnsafeAlloc(64, value.PairTag); err != nil {
			t.Fatal(err)
		}
	}
	// Past the redline the unsafe path keeps bumping into the margin.
	if _, err := p.UnsafeAlloc(64, value.PairTag); err != nil {
		t.Fatal(err)
	}
	if p.AllocationPointer() <= p.Redline() {
		t.Errorf("allocation pointer did not cross the redline")
	}
	if p.Stats().Collections != 0 {
		t.Errorf("UnsafeAlloc collected")
	}
	// The safe path notices and collects.
	if _, err := p.Alloc(64, value.PairTag); err != nil {
		t.Fatal(err)
	}
	if p.Stats().Collections != 1 {
		t.Errorf("collections = %d, want 1", p.Stats().Collections)
	}
}
