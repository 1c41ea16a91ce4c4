package heap

import (
	"fmt"

	"github.com/chazu/ikheap/value"
)

// MakeWeakPair allocates a pair whose car does not keep its referent alive.
// When a collection finds the referent otherwise unreachable, the car is
// replaced by value.BWP. The cdr is an ordinary field.
//
// Weak pairs must be written through SetCar and SetCdr. Their pages are
// never card-scanned, so the card-only barrier does not cover them.
func (p *PCB) MakeWeakPair(car, cdr value.Word) (value.Word, error) {
	defer p.protect(&car, &cdr)()
	base, err := p.allocWeak()
	if err != nil {
		return 0, err
	}
	w := value.Tagged(base, value.PairTag)
	p.as.store(fieldAddr(w, value.OffCar), car)
	p.as.store(fieldAddr(w, value.OffCdr), cdr)
	return w, nil
}

// IsWeakPair reports whether w was made by MakeWeakPair.
func (p *PCB) IsWeakPair(w value.Word) bool {
	return w.IsPair() && p.as.spaceOf(w.Base()) == spaceWeak
}

// allocWeak bumps a pair in the weak segment. One weak segment is mapped per
// collection cycle; filling it schedules a collection.
func (p *PCB) allocWeak() (uint64, error) {
	if err := p.usable(); err != nil {
		return 0, err
	}
	const size = value.PairSize
	if p.weakAP+size > p.weakEnd {
		if p.weakEnd != 0 {
			if _, err := p.collect(-1, 0); err != nil {
				return 0, err
			}
		}
		id, err := p.segs.newSegment(p.toSpaceSize, 0, spaceWeak, false)
		if err != nil {
			p.oomPending = true
			return 0, fmt.Errorf("weak pair segment: %w", err)
		}
		seg := &p.segs.segs[id]
		p.weakAP, p.weakEnd = seg.base, seg.end()
	}
	a := p.weakAP
	p.weakAP += size
	p.as.zeroMem(a, size)
	p.stats.BytesAllocated += size
	return a, nil
}

// markFields marks every object w points at, except the referent of a weak
// pair.
func (c *collection) markFields(w value.Word, k value.Kind) {
	p := c.p
	weak := p.IsWeakPair(w)
	p.forEachField(w, k, func(a uint64) {
		if weak && a == w.Base() {
			return
		}
		c.mark(p.as.load(a))
	})
}

// clearDeadReferent stores BWP at a when the word there points into
// from-space at an object that was not copied. It reports whether it did.
func (c *collection) clearDeadReferent(a uint64) bool {
	w := c.p.as.load(a)
	if !w.IsHeapPointer() || !c.inScope(w.Base()) {
		return false
	}
	if _, ok := c.forward[w.Base()]; ok {
		return false
	}
	c.p.as.store(a, value.BWP)
	return true
}
