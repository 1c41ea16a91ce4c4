// Package heap implements the process control block of an engine instance:
// bump allocation into OS-backed segments, the root registry, the
// remembered-set and write-barrier store and the generational copying
// collector that ties them together.
//
// A PCB is owned by a single mutator. None of its methods are safe for
// concurrent use, and independent PCBs share nothing.
package heap

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/ikheap/config"
	"github.com/chazu/ikheap/value"
)

var log = commonlog.GetLogger("ikheap.heap")

// Generations is the number of collector generations.
const Generations = config.Generations

// oldestGeneration never promotes further.
const oldestGeneration = Generations - 1

const (
	pageSize  = value.PageSize
	pageShift = value.PageShift
	pageMask  = pageSize - 1
)

// PCB is the process control block: the single owner of all heap state of
// one engine instance.
type PCB struct {
	id  uuid.UUID
	cfg config.Config

	// Nursery bump allocation. Compiled code reads ap and redline.
	ap      uint64
	redline uint64
	end     uint64

	// heapPages chains every nursery segment since the last collection; the
	// last entry is the active one.
	heapPages     []int32
	nurserySize   int
	redlineMargin int
	growth        int
	growthCap     int
	toSpaceSize   int

	// Weak pairs are bumped in their own generation 0 segment.
	weakAP  uint64
	weakEnd uint64

	source PageSource
	cache  *pageCache
	as     addressSpace
	segs   segmentManager

	// Native stack and the continuation chain (next_k).
	stack      []value.Word
	stackLimit int
	nextK      value.Word

	roots         [RootSlots]*value.Word
	callbacks     []callbackLocative
	freeCallbacks []int
	temps         []*value.Word

	remembered remStore

	symbols    map[string]value.Word
	gensyms    map[string]value.Word
	gensymSeq  uint64
	baseRTD    value.Word
	promoteAt  [Generations]int
	cadence    int
	majorLimit uint64

	state              GCState
	collectionID       int
	survivals          [Generations]int
	promotedSinceMajor uint64
	oomPending         bool
	fatal              error
	closed             bool

	stats     Stats
	observers []func(CollectionRecord)
	onFatal   func(*FatalError)
}

// Option configures a PCB at construction.
type Option func(*PCB)

// WithPageSource overrides the page source selected by the configuration.
func WithPageSource(src PageSource) Option {
	return func(p *PCB) { p.source = src }
}

// WithObserver registers fn to receive a record after every collection.
func WithObserver(fn func(CollectionRecord)) Option {
	return func(p *PCB) { p.observers = append(p.observers, fn) }
}

// WithFatalHandler replaces the default Fatal-OOM handler, which logs at
// critical level.
func WithFatalHandler(fn func(*FatalError)) Option {
	return func(p *PCB) { p.onFatal = fn }
}

// New builds a PCB with a fresh nursery.
func New(cfg config.Config, opts ...Option) (*PCB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("heap: %w", err)
	}

	p := &PCB{
		id:            uuid.New(),
		cfg:           cfg,
		nurserySize:   roundPages(int(cfg.Heap.NurserySize)),
		redlineMargin: int(cfg.Heap.RedlineMargin),
		growthCap:     roundPages(int(cfg.Heap.SegmentGrowthCap)),
		toSpaceSize:   roundPages(int(cfg.Heap.ToSpaceSegment)),
		stackLimit:    cfg.Heap.StackSlots,
		nextK:         value.Null,
		baseRTD:       value.False,
		cadence:       cfg.GC.Cadence,
		majorLimit:    uint64(cfg.GC.MajorThreshold),
		symbols:       make(map[string]value.Word),
		gensyms:       make(map[string]value.Word),
		onFatal:       logFatal,
	}
	copy(p.promoteAt[:], cfg.GC.PromoteAfter)
	p.growth = p.nurserySize

	for _, opt := range opts {
		opt(p)
	}
	if p.source == nil {
		if cfg.Heap.PageSource == "go" {
			p.source = goSource{}
		} else {
			p.source = OSPageSource()
		}
	}

	p.cache = newPageCache(p.source, cfg.Heap.PageBatch)
	p.segs = segmentManager{as: &p.as, cache: p.cache}
	p.remembered.init()

	id, err := p.segs.newSegment(p.nurserySize, 0, spaceNursery, false)
	if err != nil {
		p.cache.close()
		return nil, fmt.Errorf("heap: initial nursery: %w", err)
	}
	p.heapPages = []int32{id}
	p.setNursery(id)

	if err := p.initBaseRTD(); err != nil {
		p.Close()
		return nil, err
	}

	log.Debugf("pcb %s: nursery %s, redline margin %s", p.id,
		humanize.IBytes(uint64(p.nurserySize)), humanize.IBytes(uint64(p.redlineMargin)))
	return p, nil
}

// ID returns the instance identifier used in logs and statistics.
func (p *PCB) ID() uuid.UUID {
	return p.id
}

// Config returns the configuration the PCB was built with.
func (p *PCB) Config() config.Config {
	return p.cfg
}

// Close releases every segment and unmaps all memory. Values taken from
// the PCB must not be used afterwards.
func (p *PCB) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	for i := range p.segs.segs {
		if p.segs.segs[i].live {
			p.segs.release(int32(i))
		}
	}
	p.heapPages = nil
	p.ap, p.redline, p.end = 0, 0, 0
	p.weakAP, p.weakEnd = 0, 0
	return p.cache.close()
}

// usable reports why the PCB cannot allocate or collect, if it cannot.
func (p *PCB) usable() error {
	if p.closed {
		return ErrClosed
	}
	return p.fatal
}

// Fatal returns the Fatal-OOM error that killed the PCB, or nil.
func (p *PCB) Fatal() error {
	return p.fatal
}

func logFatal(e *FatalError) {
	log.Criticalf("%v", e)
}

func roundPages(n int) int {
	return (n + pageMask) &^ pageMask
}
