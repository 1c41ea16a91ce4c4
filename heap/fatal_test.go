package heap

import (
	"errors"
	"slices"
	"testing"

	"github.com/chazu/ikheap/value"
)

// ---------------------------------------------------------------------------
// Out of memory
// ---------------------------------------------------------------------------

func TestFatalOOMDuringRelocation(t *testing.T) {
	src := &FailingSource{Inner: GoPageSource(), Limit: 1}
	var fatals []*FatalError
	p := newTestPCB(t, testConfig(),
		WithPageSource(src),
		WithFatalHandler(func(e *FatalError) { fatals = append(fatals, e) }))
	m := mustf(t)

	s := m(p.MakeString("keep"))
	p.RegisterRoot(0, &s)
	old := s
	before := p.Segments()
	chain := p.NurseryChain()

	_, err := p.Collect(0)
	if err == nil {
		t.Fatal("collection succeeded without to-space")
	}
	if !errors.Is(err, ErrFatalOOM) {
		t.Errorf("error %v does not wrap ErrFatalOOM", err)
	}
	if !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("error %v does not wrap the page source failure", err)
	}
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("error %T is not a *FatalError", err)
	}
	if fe.Phase != StateRelocating {
		t.Errorf("phase = %s, want relocating", fe.Phase)
	}
	if len(fatals) != 1 || fatals[0] != fe {
		t.Errorf("fatal handler called %d times", len(fatals))
	}

	// Everything allocated before the failure is untouched.
	if got := p.Segments(); !slices.Equal(got, before) {
		t.Errorf("segments changed:\n got %+v\nwant %+v", got, before)
	}
	if got := p.NurseryChain(); !slices.Equal(got, chain) {
		t.Errorf("nursery chain changed")
	}
	if err := p.Verify(); err != nil {
		t.Errorf("Verify: %v", err)
	}
	if s != old {
		t.Errorf("root rewritten by a failed collection")
	}
	if got := p.GoString(s); got != "keep" {
		t.Errorf("root string = %q", got)
	}
	if p.GCState() != StateIdle {
		t.Errorf("state = %s", p.GCState())
	}

	// The PCB is dead.
	if _, err := p.Alloc(16, value.PairTag); !errors.Is(err, ErrFatalOOM) {
		t.Errorf("Alloc after fatal: %v", err)
	}
	if _, err := p.UnsafeAlloc(16, value.PairTag); !errors.Is(err, ErrFatalOOM) {
		t.Errorf("UnsafeAlloc after fatal: %v", err)
	}
	if _, err := p.Collect(Major); !errors.Is(err, ErrFatalOOM) {
		t.Errorf("Collect after fatal: %v", err)
	}
	if p.Fatal() != fe {
		t.Errorf("Fatal() = %v", p.Fatal())
	}
}

func TestUnsafeAllocOOMForcesMajor(t *testing.T) {
	cfg := testConfig()
	cfg.Heap.PageBatch = 32
	src := &FailingSource{Inner: GoPageSource(), Limit: 2}
	p := newTestPCB(t, cfg, WithPageSource(src))
	m := mustf(t)

	s := m(p.MakeString("keep"))
	p.RegisterRoot(0, &s)

	_, err := p.UnsafeAlloc(1<<20, value.PairTag)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("UnsafeAlloc = %v, want ErrOutOfMemory", err)
	}
	if errors.Is(err, ErrFatalOOM) {
		t.Fatalf("allocation failure escalated to fatal: %v", err)
	}
	if len(p.NurseryChain()) != 1 {
		t.Errorf("failed extension left %d nursery segments", len(p.NurseryChain()))
	}
	if err := p.Verify(); err != nil {
		t.Fatal(err)
	}

	rec := mustCollect(t, p, 0)
	if !rec.Major {
		t.Errorf("collection after OOM had scope %d, want major", rec.Scope)
	}
	if got := p.GoString(s); got != "keep" {
		t.Errorf("root string = %q", got)
	}
	if rec := mustCollect(t, p, 0); rec.Major {
		t.Errorf("OOM condition not cleared by the major collection")
	}
}

func TestFailingSourceCountsMaps(t *testing.T) {
	src := &FailingSource{Inner: GoPageSource(), Limit: 2}
	for i := range 2 {
		if _, err := src.Map(pageSize); err != nil {
			t.Fatalf("map %d: %v", i, err)
		}
		// Rejected by the inner source: not counted.
		if _, err := src.Map(pageSize + 1); err == nil {
			t.Fatalf("odd-sized map %d succeeded", i)
		}
		if src.Maps() != int64(i+1) {
			t.Fatalf("Maps() = %d after %d good maps", src.Maps(), i+1)
		}
	}
	if _, err := src.Map(pageSize); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("third map = %v, want ErrOutOfMemory", err)
	}
	if src.Maps() != 2 {
		t.Errorf("Maps() = %d, want 2", src.Maps())
	}
}
