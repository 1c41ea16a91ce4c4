package heap

import (
	"testing"

	"github.com/inhies/go-bytesize"

	"github.com/chazu/ikheap/config"
	"github.com/chazu/ikheap/value"
)

// testConfig returns a small heap so collections happen quickly.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Heap.NurserySize = 64 * bytesize.KB
	cfg.Heap.SegmentGrowthCap = 128 * bytesize.KB
	cfg.Heap.RedlineMargin = 8 * bytesize.KB
	cfg.Heap.ToSpaceSegment = 16 * bytesize.KB
	cfg.Heap.PageBatch = 16
	cfg.Heap.PageSource = "go"
	cfg.Heap.StackSlots = 1024
	return cfg
}

func newTestPCB(t *testing.T, cfg config.Config, opts ...Option) *PCB {
	t.Helper()
	p, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

// mustf returns a checker for (value, error) constructor results.
func mustf(t *testing.T) func(value.Word, error) value.Word {
	return func(w value.Word, err error) value.Word {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return w
	}
}

func mustCollect(t *testing.T, p *PCB, maxGen int) CollectionRecord {
	t.Helper()
	rec, err := p.Collect(maxGen)
	if err != nil {
		t.Fatalf("Collect(%d): %v", maxGen, err)
	}
	if err := p.Verify(); err != nil {
		t.Fatalf("Verify after collection %d: %v", rec.ID, err)
	}
	return rec
}

func fx(n int64) value.Word {
	return value.MustFixnum(n)
}
