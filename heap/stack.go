package heap

import (
	"fmt"

	"github.com/chazu/ikheap/value"
)

// The native stack holds the frames of running compiled code. Every slot
// is a root. Capturing a continuation freezes the whole stack into a heap
// frame and links it in front of the continuation chain.

// Push appends w to the stack.
func (p *PCB) Push(w value.Word) error {
	if len(p.stack) >= p.stackLimit {
		return fmt.Errorf("push at depth %d: %w", len(p.stack), ErrStackOverflow)
	}
	p.stack = append(p.stack, w)
	return nil
}

// Pop removes and returns the top slot.
func (p *PCB) Pop() (value.Word, error) {
	n := len(p.stack)
	if n == 0 {
		return 0, ErrStackUnderflow
	}
	w := p.stack[n-1]
	p.stack[n-1] = 0
	p.stack = p.stack[:n-1]
	return w, nil
}

// StackDepth returns the number of live slots.
func (p *PCB) StackDepth() int {
	return len(p.stack)
}

// StackRef returns slot i counted from the base.
func (p *PCB) StackRef(i int) value.Word {
	checkIndex("stack-ref", i, len(p.stack))
	return p.stack[i]
}

// StackSet replaces slot i counted from the base.
func (p *PCB) StackSet(i int, w value.Word) {
	checkIndex("stack-set!", i, len(p.stack))
	p.stack[i] = w
}

// NextContinuation returns the head of the continuation chain, or the
// empty list when nothing has been captured.
func (p *PCB) NextContinuation() value.Word {
	return p.nextK
}

// CaptureContinuation moves the stack into a new continuation object that
// becomes the head of the chain. The stack is empty afterwards.
func (p *PCB) CaptureContinuation() (value.Word, error) {
	n := len(p.stack)
	frame, err := p.MakeVector(n, 0)
	if err != nil {
		return 0, err
	}
	for i, w := range p.stack {
		p.as.store(fieldAddr(frame, value.OffVectorData+i*value.WordSize), w)
	}
	defer p.protect(&frame)()
	k, err := p.Alloc(value.ContinuationSize, value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(k.Base(), value.ContinuationTag)
	p.as.store(fieldAddr(k, value.OffContinuationTop), frame)
	p.as.store(fieldAddr(k, value.OffContinuationSize), value.MustFixnum(int64(n)))
	p.as.store(fieldAddr(k, value.OffContinuationNext), p.nextK)
	p.nextK = k
	clear(p.stack)
	p.stack = p.stack[:0]
	return k, nil
}

// ResumeContinuation reinstates the frame of k as the stack and makes k's
// successor the head of the chain.
func (p *PCB) ResumeContinuation(k value.Word) error {
	if got := p.KindOf(k); got != value.KindContinuation {
		return &KindError{Op: "resume", Want: value.KindContinuation.String(), Got: got.String()}
	}
	frame := p.Ref(k, value.OffContinuationTop)
	n := int(p.Ref(k, value.OffContinuationSize).FixnumValue())
	if n > p.stackLimit {
		return fmt.Errorf("resume frame of %d slots: %w", n, ErrStackOverflow)
	}
	clear(p.stack)
	p.stack = p.stack[:0]
	for i := range n {
		p.stack = append(p.stack, p.Ref(frame, value.OffVectorData+i*value.WordSize))
	}
	p.nextK = p.Ref(k, value.OffContinuationNext)
	return nil
}

// MakeSystemContinuation builds a continuation over a native frame. top is
// usually a pointer object describing the saved frame.
func (p *PCB) MakeSystemContinuation(top, next value.Word) (value.Word, error) {
	defer p.protect(&top, &next)()
	k, err := p.Alloc(value.SystemContinuationSize, value.VectorTag)
	if err != nil {
		return 0, err
	}
	p.as.store(k.Base(), value.SystemContinuationTag)
	p.as.store(fieldAddr(k, value.OffSystemContinuationTop), top)
	p.as.store(fieldAddr(k, value.OffSystemContinuationNext), next)
	return k, nil
}
