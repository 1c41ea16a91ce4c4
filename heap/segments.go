package heap

import (
	"fmt"

	"github.com/chazu/ikheap/value"
)

// space partitions segments by what their objects may contain.
type space uint8

const (
	// spaceNursery holds freshly allocated objects of every kind.
	spaceNursery space = iota + 1
	// spacePointers holds objects whose every word is a tagged value, so a
	// dirty page can be scanned word by word.
	spacePointers
	// spaceData holds objects without pointer fields.
	spaceData
	// spaceCode holds code objects; written only through the full barrier.
	spaceCode
	// spaceWeak holds weak pairs. It is never card-scanned: a weak pair's
	// car must not be traced.
	spaceWeak

	numSpaces = int(spaceWeak) + 1
)

var spaceNames = [...]string{
	spaceNursery:  "nursery",
	spacePointers: "pointers",
	spaceData:     "data",
	spaceCode:     "code",
	spaceWeak:     "weak",
}

func (s space) String() string {
	if s > 0 && int(s) < len(spaceNames) {
		return spaceNames[s]
	}
	return fmt.Sprintf("space(%d)", s)
}

// segment is a node of the segment arena.
type segment struct {
	base  uint64
	start int
	pages int
	gen   int
	space space
	live  bool

	// toSpace is set while the segment receives copies during a collection.
	toSpace bool
}

func (s *segment) size() int {
	return s.pages * pageSize
}

func (s *segment) end() uint64 {
	return s.base + uint64(s.size())
}

// segmentManager hands out segments: page runs reserved in the address
// space and described by the segment vector.
type segmentManager struct {
	as    *addressSpace
	cache *pageCache

	segs []segment
	free []int32
}

// newSegment maps a segment of at least size bytes. On failure no existing
// segment is touched and pages taken for this request go back to the cache.
// To-space segments are zeroed and flagged as new generation.
func (m *segmentManager) newSegment(size, gen int, sp space, toSpace bool) (int32, error) {
	n := roundPages(size) / pageSize
	pages := make([][]byte, 0, n)
	for len(pages) < n {
		pg, err := m.cache.acquire(toSpace)
		if err != nil {
			for _, p := range pages {
				m.cache.release(p)
			}
			return -1, fmt.Errorf("segment of %d pages: %w", n, err)
		}
		pages = append(pages, pg)
	}

	start := m.as.reserve(n)
	sv := svInUse | byte(sp)<<svSpaceShift | byte(gen)
	if toSpace {
		sv |= svNewGen
	}
	for i, pg := range pages {
		m.as.pages[start+i] = pg
		m.as.segmentVector[start+i] = sv
		m.as.dirtyVector[start+i] = 0
	}

	seg := segment{
		base:    pageAddr(start),
		start:   start,
		pages:   n,
		gen:     gen,
		space:   sp,
		live:    true,
		toSpace: toSpace,
	}
	var id int32
	if k := len(m.free); k > 0 {
		id = m.free[k-1]
		m.free = m.free[:k-1]
		m.segs[id] = seg
	} else {
		m.segs = append(m.segs, seg)
		id = int32(len(m.segs) - 1)
	}
	return id, nil
}

// release returns a segment's pages to the cache and turns its range into a
// hole. It returns the number of pages released.
func (m *segmentManager) release(id int32) int {
	seg := &m.segs[id]
	if !seg.live {
		return 0
	}
	for i := 0; i < seg.pages; i++ {
		m.cache.release(m.as.pages[seg.start+i])
	}
	m.as.unreserve(seg.start, seg.pages)
	n := seg.pages
	*seg = segment{}
	m.free = append(m.free, id)
	return n
}

// settle clears the new-generation flag of a to-space segment.
func (m *segmentManager) settle(id int32) {
	seg := &m.segs[id]
	seg.toSpace = false
	for i := seg.start; i < seg.start+seg.pages; i++ {
		m.as.segmentVector[i] &^= svNewGen
	}
}

// SegmentInfo describes one live segment.
type SegmentInfo struct {
	Base       uint64
	Size       int
	Generation int
	Space      string
}

// Segments lists the live segments in arena order.
func (p *PCB) Segments() []SegmentInfo {
	var out []SegmentInfo
	for i := range p.segs.segs {
		if s := &p.segs.segs[i]; s.live {
			out = append(out, s.info())
		}
	}
	return out
}

// NurseryChain lists the nursery segments allocated since the last
// collection, oldest first.
func (p *PCB) NurseryChain() []SegmentInfo {
	out := make([]SegmentInfo, 0, len(p.heapPages))
	for _, id := range p.heapPages {
		out = append(out, p.segs.segs[id].info())
	}
	return out
}

func (s *segment) info() SegmentInfo {
	return SegmentInfo{Base: s.base, Size: s.size(), Generation: s.gen, Space: s.space.String()}
}

// Generation returns the generation of the object w points at, or -1 for
// values that are not heap pointers into a live segment.
func (p *PCB) Generation(w value.Word) int {
	if !w.IsHeapPointer() {
		return -1
	}
	return p.as.generation(w.Base())
}

// Verify checks that the segment vector agrees with the segment arena: every
// page of a live segment is mapped and carries the segment's generation and
// space, and no other page is marked in use.
func (p *PCB) Verify() error {
	owned := make([]bool, len(p.as.pages))
	for id := range p.segs.segs {
		s := &p.segs.segs[id]
		if !s.live {
			continue
		}
		want := svInUse | byte(s.space)<<svSpaceShift | byte(s.gen)
		if s.toSpace {
			want |= svNewGen
		}
		for i := s.start; i < s.start+s.pages; i++ {
			if owned[i] {
				return fmt.Errorf("heap: page %#x owned by two segments", pageAddr(i))
			}
			owned[i] = true
			if p.as.pages[i] == nil {
				return fmt.Errorf("heap: segment %d page %#x is unmapped", id, pageAddr(i))
			}
			if got := p.as.segmentVector[i]; got != want {
				return fmt.Errorf("heap: segment %d page %#x: segment vector %#02x, want %#02x", id, pageAddr(i), got, want)
			}
		}
	}
	for i, sv := range p.as.segmentVector {
		if !owned[i] && sv != 0 {
			return fmt.Errorf("heap: page %#x marked %#02x outside any segment", pageAddr(i), sv)
		}
	}
	return nil
}
