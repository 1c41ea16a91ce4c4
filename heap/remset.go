package heap

import (
	"github.com/chazu/ikheap/value"
)

// ptrPageSize is how many entries a remembered-set page holds: a page minus
// the count and link words.
const ptrPageSize = (pageSize - 2*value.WordSize) / value.WordSize

const nilPage int32 = -1

type ptrPage struct {
	count int
	next  int32
	ptr   [ptrPageSize]value.Word
}

// remStore holds the per-generation remembered sets as chains of ptrPages in
// one arena. Each set lists containers of its generation that may point into
// a younger one.
type remStore struct {
	pages  []ptrPage
	free   []int32
	heads  [Generations]int32
	counts [Generations]int
}

func (s *remStore) init() {
	for g := range s.heads {
		s.heads[g] = nilPage
	}
}

// add appends w to gen's set. An entry equal to the most recent one is
// dropped, which absorbs repeated stores into the same container.
func (s *remStore) add(gen int, w value.Word) {
	h := s.heads[gen]
	if h != nilPage {
		pg := &s.pages[h]
		if pg.count > 0 && pg.ptr[pg.count-1] == w {
			return
		}
		if pg.count < ptrPageSize {
			pg.ptr[pg.count] = w
			pg.count++
			s.counts[gen]++
			return
		}
	}
	id := s.newPage(h)
	s.pages[id].ptr[0] = w
	s.pages[id].count = 1
	s.heads[gen] = id
	s.counts[gen]++
}

func (s *remStore) newPage(next int32) int32 {
	var id int32
	if n := len(s.free); n > 0 {
		id = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		s.pages = append(s.pages, ptrPage{})
		id = int32(len(s.pages) - 1)
	}
	s.pages[id].count = 0
	s.pages[id].next = next
	return id
}

// entries returns gen's set, newest page first.
func (s *remStore) entries(gen int) []value.Word {
	out := make([]value.Word, 0, s.counts[gen])
	for id := s.heads[gen]; id != nilPage; id = s.pages[id].next {
		pg := &s.pages[id]
		out = append(out, pg.ptr[:pg.count]...)
	}
	return out
}

// reset empties gen's set and recycles its pages.
func (s *remStore) reset(gen int) {
	for id := s.heads[gen]; id != nilPage; {
		next := s.pages[id].next
		clear(s.pages[id].ptr[:s.pages[id].count])
		s.pages[id].count = 0
		s.free = append(s.free, id)
		id = next
	}
	s.heads[gen] = nilPage
	s.counts[gen] = 0
}

// RememberedCount returns the number of entries in gen's remembered set.
func (p *PCB) RememberedCount(gen int) int {
	return p.remembered.counts[gen]
}

// Remembered reports whether w is listed in gen's remembered set.
func (p *PCB) Remembered(gen int, w value.Word) bool {
	for _, e := range p.remembered.entries(gen) {
		if e == w {
			return true
		}
	}
	return false
}
