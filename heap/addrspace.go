package heap

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/chazu/ikheap/value"
)

// basePage is the first virtual page number handed out. Address zero and
// the pages below it are never valid heap addresses.
const basePage = 0x10000

// Segment vector bits. A zero byte is a hole.
const (
	svInUse      byte = 0x80
	svNewGen     byte = 0x40
	svSpaceShift      = 3
	svSpaceMask  byte = 0x38
	svGenMask    byte = 0x07
)

type pageRange struct {
	start int
	n     int
}

// addressSpace is the simulated virtual address space of a PCB. Page i of
// the tables covers addresses [(basePage+i)<<pageShift, +pageSize).
type addressSpace struct {
	pages         [][]byte
	segmentVector []byte
	dirtyVector   []byte

	// holes lists unreserved ranges, sorted and coalesced.
	holes []pageRange
}

func pageAddr(i int) uint64 {
	return uint64(basePage+i) << pageShift
}

// pageIndex returns the table index of addr, or -1 outside the space.
func (as *addressSpace) pageIndex(addr uint64) int {
	vpn := addr >> pageShift
	if vpn < basePage || vpn-basePage >= uint64(len(as.pages)) {
		return -1
	}
	return int(vpn - basePage)
}

// reserve finds n consecutive unused table entries, first fit, growing the
// tables when no hole is large enough.
func (as *addressSpace) reserve(n int) int {
	for i, r := range as.holes {
		if r.n < n {
			continue
		}
		if r.n == n {
			as.holes = slices.Delete(as.holes, i, i+1)
		} else {
			as.holes[i] = pageRange{r.start + n, r.n - n}
		}
		return r.start
	}
	start := len(as.pages)
	as.pages = append(as.pages, make([][]byte, n)...)
	as.segmentVector = append(as.segmentVector, make([]byte, n)...)
	as.dirtyVector = append(as.dirtyVector, make([]byte, n)...)
	return start
}

// unreserve marks n entries from start as a hole.
func (as *addressSpace) unreserve(start, n int) {
	for i := start; i < start+n; i++ {
		as.pages[i] = nil
		as.segmentVector[i] = 0
		as.dirtyVector[i] = 0
	}
	i, _ := slices.BinarySearchFunc(as.holes, start, func(r pageRange, s int) int { return r.start - s })
	as.holes = slices.Insert(as.holes, i, pageRange{start, n})
	if i+1 < len(as.holes) && as.holes[i].start+as.holes[i].n == as.holes[i+1].start {
		as.holes[i].n += as.holes[i+1].n
		as.holes = slices.Delete(as.holes, i+1, i+2)
	}
	if i > 0 && as.holes[i-1].start+as.holes[i-1].n == as.holes[i].start {
		as.holes[i-1].n += as.holes[i].n
		as.holes = slices.Delete(as.holes, i, i+1)
	}
}

// generation returns the generation of the segment containing addr, or -1
// when addr is not inside an in-use segment.
func (as *addressSpace) generation(addr uint64) int {
	i := as.pageIndex(addr)
	if i < 0 {
		return -1
	}
	sv := as.segmentVector[i]
	if sv&svInUse == 0 {
		return -1
	}
	return int(sv & svGenMask)
}

func (as *addressSpace) spaceOf(addr uint64) space {
	i := as.pageIndex(addr)
	if i < 0 {
		return 0
	}
	return space((as.segmentVector[i] & svSpaceMask) >> svSpaceShift)
}

// markDirty records that the page holding addr may point into gen.
func (as *addressSpace) markDirty(addr uint64, gen int) {
	if i := as.pageIndex(addr); i >= 0 {
		as.dirtyVector[i] |= 1 << gen
	}
}

func (as *addressSpace) page(addr uint64) []byte {
	i := as.pageIndex(addr)
	if i < 0 || as.pages[i] == nil {
		panic(fmt.Sprintf("heap: access to unmapped address %#x", addr))
	}
	return as.pages[i]
}

// load reads the word at addr. Words are aligned and never straddle pages.
func (as *addressSpace) load(addr uint64) value.Word {
	off := addr & pageMask
	return value.Word(binary.LittleEndian.Uint64(as.page(addr)[off : off+8]))
}

func (as *addressSpace) store(addr uint64, w value.Word) {
	off := addr & pageMask
	binary.LittleEndian.PutUint64(as.page(addr)[off:off+8], uint64(w))
}

func (as *addressSpace) load32(addr uint64) uint32 {
	off := addr & pageMask
	return binary.LittleEndian.Uint32(as.page(addr)[off : off+4])
}

func (as *addressSpace) store32(addr uint64, v uint32) {
	off := addr & pageMask
	binary.LittleEndian.PutUint32(as.page(addr)[off:off+4], v)
}

// readBytes copies n bytes starting at addr into a new slice.
func (as *addressSpace) readBytes(addr uint64, n int) []byte {
	out := make([]byte, n)
	for done := 0; done < n; {
		off := int((addr + uint64(done)) & pageMask)
		done += copy(out[done:], as.page(addr + uint64(done))[off:])
	}
	return out
}

// writeBytes copies b to addr.
func (as *addressSpace) writeBytes(addr uint64, b []byte) {
	for done := 0; done < len(b); {
		a := addr + uint64(done)
		off := int(a & pageMask)
		done += copy(as.page(a)[off:], b[done:])
	}
}

// zeroMem clears n bytes from addr.
func (as *addressSpace) zeroMem(addr uint64, n int) {
	for done := 0; done < n; {
		a := addr + uint64(done)
		off := int(a & pageMask)
		chunk := min(pageSize-off, n-done)
		clear(as.page(a)[off : off+chunk])
		done += chunk
	}
}

// copyMem copies n bytes from src to dst. The ranges never overlap.
func (as *addressSpace) copyMem(dst, src uint64, n int) {
	for done := 0; done < n; {
		s, d := src+uint64(done), dst+uint64(done)
		so, do := int(s&pageMask), int(d&pageMask)
		chunk := min(pageSize-so, pageSize-do, n-done)
		copy(as.page(d)[do:do+chunk], as.page(s)[so:so+chunk])
		done += chunk
	}
}
