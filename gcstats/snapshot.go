// Package gcstats collects heap statistics and writes them out as CBOR
// snapshots or rows in a SQLite collection log.
package gcstats

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/ikheap/heap"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("gcstats: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Record is the serialized form of one heap.CollectionRecord. Times are Unix
// nanoseconds and durations are nanoseconds.
type Record struct {
	ID            int    `cbor:"1,keyasint"`
	Start         int64  `cbor:"2,keyasint"`
	Scope         int    `cbor:"3,keyasint"`
	Major         bool   `cbor:"4,keyasint"`
	LiveObjects   int    `cbor:"5,keyasint"`
	BytesCopied   uint64 `cbor:"6,keyasint"`
	BytesPromoted uint64 `cbor:"7,keyasint"`
	BytesFreed    uint64 `cbor:"8,keyasint"`
	PagesReleased int    `cbor:"9,keyasint"`
	Remembered    []int  `cbor:"10,keyasint,omitempty"`
	Wall          int64  `cbor:"11,keyasint"`
	User          int64  `cbor:"12,keyasint"`
	Sys           int64  `cbor:"13,keyasint"`
}

// Totals mirrors heap.Stats.
type Totals struct {
	Collections       int    `cbor:"1,keyasint"`
	MajorCollections  int    `cbor:"2,keyasint"`
	BytesAllocated    uint64 `cbor:"3,keyasint"`
	BytesCopied       uint64 `cbor:"4,keyasint"`
	BytesPromoted     uint64 `cbor:"5,keyasint"`
	BytesFreed        uint64 `cbor:"6,keyasint"`
	PagesReleased     uint64 `cbor:"7,keyasint"`
	NurseryExtensions int    `cbor:"8,keyasint"`
	GCWall            int64  `cbor:"9,keyasint"`
	GCUser            int64  `cbor:"10,keyasint"`
	GCSys             int64  `cbor:"11,keyasint"`
	PageMaps          uint64 `cbor:"12,keyasint"`
	MappedBytes       uint64 `cbor:"13,keyasint"`
	PageHits          uint64 `cbor:"14,keyasint"`
	PageMisses        uint64 `cbor:"15,keyasint"`
	Segments          int    `cbor:"16,keyasint"`
	HeapSize          uint64 `cbor:"17,keyasint"`
}

// Snapshot is the state of one PCB's statistics at a point in time.
type Snapshot struct {
	Instance string   `cbor:"1,keyasint"`
	Taken    int64    `cbor:"2,keyasint"`
	Totals   Totals   `cbor:"3,keyasint"`
	Recent   []Record `cbor:"4,keyasint,omitempty"`
}

// FromRecord converts a collection record to its serialized form.
func FromRecord(r heap.CollectionRecord) Record {
	return Record{
		ID:            r.ID,
		Start:         r.Start.UnixNano(),
		Scope:         r.Scope,
		Major:         r.Major,
		LiveObjects:   r.LiveObjects,
		BytesCopied:   r.BytesCopied,
		BytesPromoted: r.BytesPromoted,
		BytesFreed:    r.BytesFreed,
		PagesReleased: r.PagesReleased,
		Remembered:    append([]int(nil), r.Remembered[:]...),
		Wall:          int64(r.Wall),
		User:          int64(r.User),
		Sys:           int64(r.Sys),
	}
}

// FromStats converts cumulative heap counters.
func FromStats(s heap.Stats) Totals {
	return Totals{
		Collections:       s.Collections,
		MajorCollections:  s.MajorCollections,
		BytesAllocated:    s.BytesAllocated,
		BytesCopied:       s.BytesCopied,
		BytesPromoted:     s.BytesPromoted,
		BytesFreed:        s.BytesFreed,
		PagesReleased:     s.PagesReleased,
		NurseryExtensions: s.NurseryExtensions,
		GCWall:            int64(s.GCWall),
		GCUser:            int64(s.GCUser),
		GCSys:             int64(s.GCSys),
		PageMaps:          s.Pages.Maps,
		MappedBytes:       s.Pages.MappedBytes,
		PageHits:          s.Pages.Hits,
		PageMisses:        s.Pages.Misses,
		Segments:          s.Segments,
		HeapSize:          s.HeapSize,
	}
}

// StartTime returns Start as a time.Time.
func (r Record) StartTime() time.Time {
	return time.Unix(0, r.Start)
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("gcstats: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// WriteSnapshot writes s to path, replacing any existing file.
func WriteSnapshot(path string, s *Snapshot) error {
	data, err := MarshalSnapshot(s)
	if err != nil {
		return fmt.Errorf("gcstats: marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("gcstats: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("gcstats: write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gcstats: read snapshot: %w", err)
	}
	return UnmarshalSnapshot(data)
}
