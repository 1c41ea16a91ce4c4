package heap

import (
	"time"
)

// CollectionRecord describes one completed collection.
type CollectionRecord struct {
	ID       int
	Instance string
	Start    time.Time

	// Scope is the oldest generation collected.
	Scope     int
	Major     bool
	Requested int

	LiveObjects   int
	BytesCopied   uint64
	BytesPromoted uint64
	BytesFreed    uint64
	PagesReleased int

	// Remembered holds the remembered-set sizes per generation afterwards.
	Remembered [Generations]int

	Wall time.Duration
	User time.Duration
	Sys  time.Duration
}

// Stats accumulates counters over the life of a PCB.
type Stats struct {
	Collections       int
	MajorCollections  int
	BytesAllocated    uint64
	BytesCopied       uint64
	BytesPromoted     uint64
	BytesFreed        uint64
	PagesReleased     uint64
	NurseryExtensions int

	GCWall time.Duration
	GCUser time.Duration
	GCSys  time.Duration

	// Filled in by PCB.Stats.
	Pages    PageCacheStats
	Segments int
	HeapSize uint64
}

// Stats returns a snapshot of the cumulative counters.
func (p *PCB) Stats() Stats {
	s := p.stats
	s.Pages = p.cache.stats
	for i := range p.segs.segs {
		if seg := &p.segs.segs[i]; seg.live {
			s.Segments++
			s.HeapSize += uint64(seg.size())
		}
	}
	return s
}

func (s *Stats) add(r *CollectionRecord) {
	s.Collections++
	if r.Major {
		s.MajorCollections++
	}
	s.BytesCopied += r.BytesCopied
	s.BytesPromoted += r.BytesPromoted
	s.BytesFreed += r.BytesFreed
	s.PagesReleased += uint64(r.PagesReleased)
	s.GCWall += r.Wall
	s.GCUser += r.User
	s.GCSys += r.Sys
}
