package heap

import (
	"errors"
	"testing"

	"github.com/chazu/ikheap/value"
)

// ---------------------------------------------------------------------------
// Page cache
// ---------------------------------------------------------------------------

func TestPageCacheMapsInBatches(t *testing.T) {
	src := &FailingSource{Inner: GoPageSource(), Limit: 100}
	c := newPageCache(src, 4)

	var pages [][]byte
	for range 6 {
		pg, err := c.acquire(false)
		if err != nil {
			t.Fatal(err)
		}
		if len(pg) != pageSize || cap(pg) != pageSize {
			t.Fatalf("page len %d cap %d", len(pg), cap(pg))
		}
		pages = append(pages, pg)
	}
	if src.Maps() != 2 {
		t.Errorf("maps = %d, want 2", src.Maps())
	}
	if c.stats.Hits != 4 || c.stats.Misses != 2 {
		t.Errorf("hits %d misses %d, want 4 and 2", c.stats.Hits, c.stats.Misses)
	}
	if c.stats.Cached != 2 {
		t.Errorf("cached = %d, want 2", c.stats.Cached)
	}
	if err := c.close(); err != nil {
		t.Fatal(err)
	}
}

func TestPageCacheReusesReleasedPages(t *testing.T) {
	c := newPageCache(GoPageSource(), 1)

	pg, err := c.acquire(false)
	if err != nil {
		t.Fatal(err)
	}
	pg[0], pg[pageSize-1] = 0xAA, 0xBB
	c.release(pg)

	dirty, err := c.acquire(false)
	if err != nil {
		t.Fatal(err)
	}
	if &dirty[0] != &pg[0] {
		t.Fatal("released page not reused")
	}
	if dirty[0] != 0xAA {
		t.Errorf("unzeroed acquire cleared the page")
	}
	c.release(dirty)

	clean, err := c.acquire(true)
	if err != nil {
		t.Fatal(err)
	}
	if clean[0] != 0 || clean[pageSize-1] != 0 {
		t.Errorf("zeroed acquire returned dirty page")
	}
	if c.stats.Releases != 2 || c.stats.Maps != 1 {
		t.Errorf("stats = %+v", c.stats)
	}
	// Metadata nodes are recycled too.
	if len(c.nodes) != 1 {
		t.Errorf("node arena grew to %d", len(c.nodes))
	}
}

func TestPageCacheSourceFailure(t *testing.T) {
	src := &FailingSource{Inner: GoPageSource(), Limit: 0}
	c := newPageCache(src, 8)
	if _, err := c.acquire(false); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("acquire = %v, want ErrOutOfMemory", err)
	}
}

// ---------------------------------------------------------------------------
// Address space
// ---------------------------------------------------------------------------

func TestAddressSpaceReuseFirstFit(t *testing.T) {
	var as addressSpace
	a := as.reserve(4)
	b := as.reserve(2)
	c := as.reserve(3)
	if a != 0 || b != 4 || c != 6 {
		t.Fatalf("reserve = %d %d %d", a, b, c)
	}

	as.unreserve(a, 4)
	as.unreserve(c, 3)
	if got := as.reserve(3); got != 0 {
		t.Errorf("first fit reserve(3) = %d, want 0", got)
	}
	if got := as.reserve(3); got != 6 {
		t.Errorf("reserve(3) = %d, want 6", got)
	}

	// Adjacent holes coalesce.
	var bs addressSpace
	x, y, z := bs.reserve(2), bs.reserve(2), bs.reserve(2)
	bs.unreserve(x, 2)
	bs.unreserve(z, 2)
	bs.unreserve(y, 2)
	if len(bs.holes) != 1 || bs.holes[0] != (pageRange{0, 6}) {
		t.Errorf("holes = %+v, want one range of 6", bs.holes)
	}
	if pageAddr(0) == 0 {
		t.Errorf("address zero is a heap address")
	}
}

func TestSegmentMemoryAccess(t *testing.T) {
	p := newTestPCB(t, testConfig())
	id, err := p.segs.newSegment(3*pageSize, 1, spaceData, true)
	if err != nil {
		t.Fatal(err)
	}
	seg := p.segs.segs[id]
	if g := p.as.generation(seg.base + pageSize); g != 1 {
		t.Errorf("generation = %d, want 1", g)
	}
	if sp := p.as.spaceOf(seg.base); sp != spaceData {
		t.Errorf("space = %s, want data", sp)
	}

	p.as.store(seg.base+pageSize-8, value.True)
	if got := p.as.load(seg.base + pageSize - 8); got != value.True {
		t.Errorf("load = %#x", uint64(got))
	}

	// Byte copies cross page boundaries.
	msg := []byte("spans two pages")
	at := seg.base + pageSize - 5
	p.as.writeBytes(at, msg)
	if got := p.as.readBytes(at, len(msg)); string(got) != string(msg) {
		t.Errorf("readBytes = %q", got)
	}
	p.as.copyMem(seg.base+2*pageSize-3, at, len(msg))
	if got := p.as.readBytes(seg.base+2*pageSize-3, len(msg)); string(got) != string(msg) {
		t.Errorf("copyMem = %q", got)
	}
	p.as.zeroMem(at, len(msg))
	for _, b := range p.as.readBytes(at, len(msg)) {
		if b != 0 {
			t.Fatalf("zeroMem left %#x", b)
		}
	}

	pages := p.segs.release(id)
	if pages != 3 {
		t.Errorf("released %d pages, want 3", pages)
	}
	if g := p.as.generation(seg.base); g != -1 {
		t.Errorf("released page generation = %d", g)
	}
	if err := p.Verify(); err != nil {
		t.Error(err)
	}
}

func TestUnmappedAccessPanics(t *testing.T) {
	p := newTestPCB(t, testConfig())
	defer func() {
		if recover() == nil {
			t.Error("load of address 8 did not panic")
		}
	}()
	p.as.load(8)
}
