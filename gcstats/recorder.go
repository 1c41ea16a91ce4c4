package gcstats

import (
	"time"

	"github.com/chazu/ikheap/heap"
)

// Recorder keeps the most recent collection records in a ring. Pass its
// Observe method to heap.WithObserver.
type Recorder struct {
	ring  []heap.CollectionRecord
	next  int
	full  bool
	total int
}

// NewRecorder returns a Recorder holding up to keep records.
func NewRecorder(keep int) *Recorder {
	if keep < 1 {
		keep = 1
	}
	return &Recorder{ring: make([]heap.CollectionRecord, keep)}
}

// Observe stores r, evicting the oldest record when the ring is full.
func (r *Recorder) Observe(rec heap.CollectionRecord) {
	r.ring[r.next] = rec
	r.next++
	r.total++
	if r.next == len(r.ring) {
		r.next = 0
		r.full = true
	}
}

// Total is the number of records observed, including evicted ones.
func (r *Recorder) Total() int {
	return r.total
}

// Records returns the retained records, oldest first.
func (r *Recorder) Records() []heap.CollectionRecord {
	if !r.full {
		return append([]heap.CollectionRecord(nil), r.ring[:r.next]...)
	}
	out := make([]heap.CollectionRecord, 0, len(r.ring))
	out = append(out, r.ring[r.next:]...)
	return append(out, r.ring[:r.next]...)
}

// Snapshot combines the PCB's cumulative counters with the retained records.
func (r *Recorder) Snapshot(p *heap.PCB) *Snapshot {
	s := &Snapshot{
		Instance: p.ID().String(),
		Taken:    time.Now().UnixNano(),
		Totals:   FromStats(p.Stats()),
	}
	for _, rec := range r.Records() {
		s.Recent = append(s.Recent, FromRecord(rec))
	}
	return s
}
