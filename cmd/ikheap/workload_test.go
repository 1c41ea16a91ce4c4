package main

import (
	"path/filepath"
	"testing"

	"github.com/inhies/go-bytesize"

	"github.com/chazu/ikheap/config"
	"github.com/chazu/ikheap/gcstats"
	"github.com/chazu/ikheap/heap"
	"github.com/chazu/ikheap/value"
)

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.Heap.NurserySize = 64 * bytesize.KB
	cfg.Heap.SegmentGrowthCap = 256 * bytesize.KB
	cfg.Heap.ToSpaceSegment = 32 * bytesize.KB
	cfg.Heap.PageSource = "go"
	return cfg
}

func TestWorkloadSurvivesCollections(t *testing.T) {
	rec := gcstats.NewRecorder(16)
	p, err := heap.New(smallConfig(), heap.WithObserver(rec.Observe))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	w := newWorkload(p, 64)
	if err := w.setup(); err != nil {
		t.Fatal(err)
	}
	for i := range 3000 {
		if err := w.step(i); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if p.Stats().Collections == 0 {
		t.Fatal("workload never collected")
	}

	// Every table slot holds something the workload built, intact.
	for i := range p.VectorLength(w.table) {
		x := p.VectorRef(w.table, i)
		switch k := p.KindOf(x); k {
		case value.KindBoolean, value.KindFixnum, value.KindPair, value.KindRecord,
			value.KindClosure, value.KindSymbol, value.KindVector:
		default:
			t.Errorf("slot %d holds a %s", i, k)
		}
	}
	if _, err := p.Collect(heap.Major); err != nil {
		t.Fatal(err)
	}
	// Weak entries hold a scratch number or BWP once it was overwritten.
	cleared := 0
	for i := range p.VectorLength(w.table) {
		x := p.VectorRef(w.table, i)
		if !p.IsWeakPair(x) {
			continue
		}
		switch k := p.KindOf(p.Car(x)); k {
		case value.KindBWP:
			cleared++
		case value.KindBoolean, value.KindFlonum, value.KindBignum:
		default:
			t.Errorf("weak slot %d holds a %s", i, k)
		}
	}
	t.Logf("%d weak table entries cleared", cleared)
	if err := p.Verify(); err != nil {
		t.Fatal(err)
	}
	if rec.Total() != p.Stats().Collections {
		t.Errorf("recorder saw %d of %d collections", rec.Total(), p.Stats().Collections)
	}
}

func TestRunWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	cfg := smallConfig()
	cfg.Dir = dir
	cfg.Stats.SQLite = "gc.db"
	cfg.Stats.Snapshot = "gc.cbor"

	if err := run(&cfg, 500, 32, true); err != nil {
		t.Fatal(err)
	}
	snap, err := gcstats.ReadSnapshot(filepath.Join(dir, "gc.cbor"))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Totals.MajorCollections < 1 {
		t.Errorf("snapshot totals = %+v", snap.Totals)
	}
}
