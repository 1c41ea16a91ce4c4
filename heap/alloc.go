package heap

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"

	"github.com/chazu/ikheap/value"
)

var allocLog = commonlog.GetLogger("ikheap.alloc")

// Alloc returns size bytes of zeroed nursery memory tagged with tag. When
// the request crosses the redline the collector runs first, so Alloc only
// fails with a Fatal-OOM error, on a closed PCB, or with ErrBadAllocation.
func (p *PCB) Alloc(size int, tag uint64) (value.Word, error) {
	if err := checkAlloc(size, tag); err != nil {
		return 0, err
	}
	base, err := p.allocBytes(size)
	if err != nil {
		return 0, err
	}
	return value.Tagged(base, tag), nil
}

// UnsafeAlloc returns size bytes of zeroed nursery memory tagged with tag
// without ever collecting. Only the true end of the nursery is checked; when
// it is reached a new nursery segment is linked behind the current one. On
// ErrOutOfMemory the next collection is forced to be major.
func (p *PCB) UnsafeAlloc(size int, tag uint64) (value.Word, error) {
	if err := p.usable(); err != nil {
		return 0, err
	}
	if err := checkAlloc(size, tag); err != nil {
		return 0, err
	}
	size = value.Align(size)
	if p.ap+uint64(size) > p.end {
		if err := p.extendNursery(size); err != nil {
			p.oomPending = true
			return 0, err
		}
	}
	return value.Tagged(p.bump(size), tag), nil
}

// checkAlloc rejects requests that would move the allocation pointer
// backwards, alias the next object, or produce a word the collector does not
// trace.
func checkAlloc(size int, tag uint64) error {
	if size <= 0 {
		return fmt.Errorf("%w: size %d", ErrBadAllocation, size)
	}
	switch tag {
	case value.PairTag, value.BytevectorTag, value.ClosureTag, value.VectorTag, value.StringTag:
		return nil
	}
	return fmt.Errorf("%w: tag %d is not a heap object tag", ErrBadAllocation, tag)
}

// AllocationPointer returns the next free nursery address.
func (p *PCB) AllocationPointer() uint64 {
	return p.ap
}

// Redline returns the address past which inline allocation must call Alloc.
func (p *PCB) Redline() uint64 {
	return p.redline
}

func (p *PCB) allocBytes(size int) (uint64, error) {
	if err := p.usable(); err != nil {
		return 0, err
	}
	size = value.Align(size)
	if p.ap+uint64(size) > p.redline {
		if _, err := p.collect(-1, size); err != nil {
			return 0, err
		}
	}
	return p.bump(size), nil
}

func (p *PCB) bump(size int) uint64 {
	a := p.ap
	p.ap += uint64(size)
	p.as.zeroMem(a, size)
	p.stats.BytesAllocated += uint64(size)
	return a
}

// setNursery makes segment id the allocation target.
func (p *PCB) setNursery(id int32) {
	seg := &p.segs.segs[id]
	p.ap = seg.base
	p.end = seg.end()
	p.redline = p.end - uint64(p.redlineMargin)
}

// extendNursery links a new nursery segment large enough for request.
func (p *PCB) extendNursery(request int) error {
	size := p.nextSegmentSize(request)
	id, err := p.segs.newSegment(size, 0, spaceNursery, false)
	if err != nil {
		allocLog.Warningf("pcb %s: nursery extension of %s failed: %v", p.id, humanize.IBytes(uint64(size)), err)
		return err
	}
	p.heapPages = append(p.heapPages, id)
	p.setNursery(id)
	p.stats.NurseryExtensions++
	allocLog.Infof("pcb %s: nursery extended by %s (chain of %d)", p.id, humanize.IBytes(uint64(size)), len(p.heapPages))
	return nil
}

// nextSegmentSize returns the size of the next nursery extension and
// advances the schedule: geometric up to the cap, then linear by the cap.
func (p *PCB) nextSegmentSize(request int) int {
	size := max(p.growth, roundPages(request+p.redlineMargin))
	if p.growth < p.growthCap {
		p.growth = min(p.growth*2, p.growthCap)
	} else {
		p.growth += p.growthCap
	}
	return size
}

// freshNurserySize is the size of the nursery installed after a collection.
func (p *PCB) freshNurserySize(request int) int {
	return max(p.nurserySize, roundPages(request+p.redlineMargin))
}
