package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/chazu/ikheap/heap"
	"github.com/chazu/ikheap/value"
)

// workload mutates a long-lived table so that old objects keep acquiring
// references to young ones. Every value that must survive an allocation is
// reachable from a registered root.
type workload struct {
	p   *heap.PCB
	rng *rand.Rand

	table   value.Word // root 0: long-lived slots
	scratch value.Word // root 1: intermediate values
	rtd     value.Word // root 2
	code    value.Word // root 3

	tableSize int
}

const (
	scratchA = iota
	scratchB
	scratchSize
)

func newWorkload(p *heap.PCB, tableSize int) *workload {
	w := &workload{
		p:       p,
		rng:     rand.New(rand.NewPCG(1, 2)),
		table:   value.False,
		scratch: value.False,
		rtd:     value.False,
		code:    value.False,
	}
	p.RegisterRoot(0, &w.table)
	p.RegisterRoot(1, &w.scratch)
	p.RegisterRoot(2, &w.rtd)
	p.RegisterRoot(3, &w.code)
	if tableSize < 1 {
		tableSize = 1
	}
	w.tableSize = tableSize
	return w
}

func (w *workload) setup() error {
	var err error
	if w.table, err = w.p.MakeVector(w.tableSize, value.False); err != nil {
		return err
	}
	if w.scratch, err = w.p.MakeVector(scratchSize, value.False); err != nil {
		return err
	}
	if w.rtd, err = w.p.MakeRTD("point", "x", "y", "tag"); err != nil {
		return err
	}
	// ret
	w.code, err = w.p.MakeCode([]byte{0xC3}, 2, value.False, value.False)
	return err
}

func (w *workload) run(iterations int) error {
	if err := w.setup(); err != nil {
		return err
	}
	for i := range iterations {
		if err := w.step(i); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
	}
	w.p.UnregisterRoot(0)
	w.p.UnregisterRoot(1)
	w.p.UnregisterRoot(2)
	w.p.UnregisterRoot(3)
	return nil
}

func (w *workload) step(i int) error {
	p := w.p
	slot := w.rng.IntN(p.VectorLength(w.table))

	var x value.Word
	var err error
	switch i % 6 {
	case 0:
		x, err = p.ListFromStrings([]string{"alpha", "beta", "gamma", fmt.Sprint(i)})
	case 1:
		x, err = w.point(i)
	case 2:
		x, err = w.closure(i)
	case 3:
		x, err = w.numbers(i)
	case 4:
		x, err = p.MakeGensym("w")
	case 5:
		if err = w.frames(i); err == nil {
			// Weakly holds whatever scratch A last kept; cleared to BWP
			// once a later step overwrites it and a collection runs.
			x, err = p.MakeWeakPair(p.VectorRef(w.scratch, scratchA), value.MustFixnum(int64(i)))
		}
	}
	if err != nil {
		return err
	}
	// Old table, young value: the write barrier remembers the table.
	p.VectorSet(w.table, slot, x)

	// Short-lived garbage.
	for range 4 {
		if _, err := p.MakeBytevector(64 + w.rng.IntN(192)); err != nil {
			return err
		}
	}
	return nil
}

func (w *workload) point(i int) (value.Word, error) {
	p := w.p
	f, err := p.MakeFlonum(float64(i) / 3)
	if err != nil {
		return 0, err
	}
	p.VectorSet(w.scratch, scratchA, f)
	tag, err := p.Intern("point")
	if err != nil {
		return 0, err
	}
	return p.MakeRecord(w.rtd, value.MustFixnum(int64(i)), p.VectorRef(w.scratch, scratchA), tag)
}

func (w *workload) closure(i int) (value.Word, error) {
	p := w.p
	s, err := p.MakeString(fmt.Sprintf("free-%d", i))
	if err != nil {
		return 0, err
	}
	return p.MakeClosure(w.code, s, value.MustFixnum(int64(i)))
}

func (w *workload) numbers(i int) (value.Word, error) {
	p := w.p
	big, err := p.Integer(value.MostPositiveFixnum + int64(i))
	if err != nil {
		return 0, err
	}
	p.VectorSet(w.scratch, scratchA, big)
	z, err := p.MakeCflonum(complex(float64(i), -1))
	if err != nil {
		return 0, err
	}
	p.VectorSet(w.scratch, scratchB, z)
	return p.Vector(p.VectorRef(w.scratch, scratchA), p.VectorRef(w.scratch, scratchB))
}

// frames pushes a few stack slots, freezes them into a continuation, and
// resumes it, leaving the stack as it was.
func (w *workload) frames(i int) error {
	p := w.p
	depth := p.StackDepth()
	s, err := p.MakeString(fmt.Sprintf("frame-%d", i))
	if err != nil {
		return err
	}
	if err := p.Push(s); err != nil {
		return err
	}
	if err := p.Push(value.MustFixnum(int64(i))); err != nil {
		return err
	}
	if _, err := p.CaptureContinuation(); err != nil {
		return err
	}
	// The continuation may move here; reload it from the chain.
	if _, err := p.MakeBytevector(512); err != nil {
		return err
	}
	if err := p.ResumeContinuation(p.NextContinuation()); err != nil {
		return err
	}
	p.Pop()
	p.Pop()
	if p.StackDepth() != depth {
		return fmt.Errorf("stack depth %d after resume, want %d", p.StackDepth(), depth)
	}
	return nil
}
