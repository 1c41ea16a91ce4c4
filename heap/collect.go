package heap

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"

	"github.com/chazu/ikheap/value"
)

var gcLog = commonlog.GetLogger("ikheap.gc")

// GCState is the collector phase.
type GCState uint8

const (
	StateIdle GCState = iota
	StateScanningRoots
	StateTracing
	StateRelocating
	StateFixingUp
)

var gcStateNames = [...]string{
	StateIdle:          "idle",
	StateScanningRoots: "scanning-roots",
	StateTracing:       "tracing",
	StateRelocating:    "relocating",
	StateFixingUp:      "fixing-up",
}

func (s GCState) String() string {
	if int(s) < len(gcStateNames) {
		return gcStateNames[s]
	}
	return fmt.Sprintf("GCState(%d)", s)
}

// Major is the scope of a collection of every generation.
const Major = oldestGeneration

// Scheduled lets the collector choose the scope.
const Scheduled = -1

// GCState returns the current collector phase.
func (p *PCB) GCState() GCState {
	return p.state
}

// CollectionID returns the number of collections started so far.
func (p *PCB) CollectionID() int {
	return p.collectionID
}

// Collect runs a collection of generations 0 through maxGen, or of the
// scheduled scope when maxGen is Scheduled. A pending out-of-memory
// condition or the promotion threshold widens any scope to Major.
func (p *PCB) Collect(maxGen int) (CollectionRecord, error) {
	return p.collect(min(maxGen, Major), 0)
}

func (p *PCB) collect(maxGen, request int) (CollectionRecord, error) {
	if err := p.usable(); err != nil {
		return CollectionRecord{}, err
	}
	if p.state != StateIdle {
		panic(fmt.Sprintf("heap: collection started while %s", p.state))
	}
	p.collectionID++
	c := p.newCollection(p.scope(maxGen), request)
	err := c.run()
	return c.rec, err
}

// scope picks the oldest generation to collect: generation g takes part in
// every cadence^g-th collection.
func (p *PCB) scope(requested int) int {
	if p.oomPending || p.promotedSinceMajor >= p.majorLimit {
		return Major
	}
	if requested >= 0 {
		return requested
	}
	k := 0
	for m := p.cadence; k < Major && p.collectionID%m == 0; m *= p.cadence {
		k++
	}
	return k
}

type cursor struct {
	ap, end uint64
}

// collection is the state of one stop-the-world collection.
type collection struct {
	p       *PCB
	k       int
	request int
	targets [Generations]int

	// live holds every reached object in trace order; kinds, sizes and moved
	// run parallel to it.
	live  []value.Word
	kinds []value.Kind
	sizes []int
	moved []value.Word
	seen  map[uint64]struct{}

	// forward maps old base addresses to new ones. Object headers are
	// never overwritten.
	forward map[uint64]uint64

	// Older containers scanned as roots.
	containers [Generations][]value.Word
	cards      []int

	cursors [Generations][numSpaces]cursor
	fresh   []int32

	rec   CollectionRecord
	user0 time.Duration
	sys0  time.Duration
}

func (p *PCB) newCollection(k, request int) *collection {
	c := &collection{
		p:       p,
		k:       k,
		request: request,
		seen:    make(map[uint64]struct{}),
		forward: make(map[uint64]uint64),
		rec: CollectionRecord{
			ID:        p.collectionID,
			Instance:  p.id.String(),
			Start:     time.Now(),
			Scope:     k,
			Major:     k == Major,
			Requested: request,
		},
	}
	c.user0, c.sys0 = cpuTimes()
	for g := 0; g <= k; g++ {
		c.targets[g] = g
		if g == oldestGeneration {
			continue
		}
		p.survivals[g]++
		if p.survivals[g] >= p.promoteAt[g] {
			c.targets[g] = g + 1
			p.survivals[g] = 0
		}
	}
	return c
}

func (c *collection) run() error {
	c.scanRoots()
	c.trace()
	if err := c.relocate(); err != nil {
		return c.fail(StateRelocating, err)
	}
	if err := c.fixUp(); err != nil {
		return c.fail(StateFixingUp, err)
	}
	c.finish()
	return nil
}

func (c *collection) lowMask() byte {
	return byte(1)<<(c.k+1) - 1
}

// inScope reports whether base lies in from-space.
func (c *collection) inScope(base uint64) bool {
	i := c.p.as.pageIndex(base)
	if i < 0 {
		return false
	}
	sv := c.p.as.segmentVector[i]
	return sv&svInUse != 0 && sv&svNewGen == 0 && int(sv&svGenMask) <= c.k
}

func (c *collection) mark(w value.Word) {
	if !w.IsHeapPointer() {
		return
	}
	base := w.Base()
	if !c.inScope(base) {
		return
	}
	if _, ok := c.seen[base]; ok {
		return
	}
	c.seen[base] = struct{}{}
	c.live = append(c.live, w)
}

func (c *collection) scanRoots() {
	p := c.p
	p.state = StateScanningRoots
	p.forEachRoot(func(loc *value.Word) { c.mark(*loc) })

	for g := c.k + 1; g < Generations; g++ {
		c.containers[g] = p.remembered.entries(g)
		for _, obj := range c.containers[g] {
			k, _ := p.shape(obj)
			c.markFields(obj, k)
		}
	}

	low := c.lowMask()
	for id := range p.segs.segs {
		s := &p.segs.segs[id]
		if !s.live || s.gen <= c.k || s.space != spacePointers {
			continue
		}
		for i := s.start; i < s.start+s.pages; i++ {
			if p.as.dirtyVector[i]&low == 0 {
				continue
			}
			c.cards = append(c.cards, i)
			for a, end := pageAddr(i), pageAddr(i+1); a < end; a += value.WordSize {
				c.mark(p.as.load(a))
			}
		}
	}
}

func (c *collection) trace() {
	p := c.p
	p.state = StateTracing
	for i := 0; i < len(c.live); i++ {
		w := c.live[i]
		k, size := p.shape(w)
		c.kinds = append(c.kinds, k)
		c.sizes = append(c.sizes, size)
		c.markFields(w, k)
	}
	c.rec.LiveObjects = len(c.live)
}

func (c *collection) relocate() error {
	p := c.p
	p.state = StateRelocating
	c.moved = make([]value.Word, len(c.live))
	for i, w := range c.live {
		base := w.Base()
		gen := p.as.generation(base)
		target := c.targets[gen]
		size := c.sizes[i]
		sp := spaceFor(c.kinds[i])
		if p.as.spaceOf(base) == spaceWeak {
			sp = spaceWeak
		}
		nb, err := c.allocTo(target, sp, size)
		if err != nil {
			return err
		}
		p.as.copyMem(nb, base, size)
		c.forward[base] = nb
		c.moved[i] = w.Retag(nb)
		c.rec.BytesCopied += uint64(size)
		if target > gen {
			c.rec.BytesPromoted += uint64(size)
		}
	}
	return nil
}

// allocTo bumps size bytes in the to-space of (gen, sp).
func (c *collection) allocTo(gen int, sp space, size int) (uint64, error) {
	cur := &c.cursors[gen][sp]
	if cur.ap+uint64(size) > cur.end {
		id, err := c.p.segs.newSegment(max(c.p.toSpaceSize, size), gen, sp, true)
		if err != nil {
			return 0, err
		}
		c.fresh = append(c.fresh, id)
		seg := &c.p.segs.segs[id]
		cur.ap, cur.end = seg.base, seg.end()
	}
	a := cur.ap
	cur.ap += uint64(size)
	return a, nil
}

func (c *collection) fwd(w value.Word) value.Word {
	if !w.IsHeapPointer() {
		return w
	}
	if nb, ok := c.forward[w.Base()]; ok {
		return w.Retag(nb)
	}
	return w
}

// fixField forwards the word at a and records it as an intergenerational
// pointer when it points below gen. It reports whether it did.
func (c *collection) fixField(a uint64, gen int) bool {
	p := c.p
	w := p.as.load(a)
	nw := c.fwd(w)
	if nw != w {
		p.as.store(a, nw)
	}
	if vg := p.Generation(nw); vg >= 0 && vg < gen {
		p.as.markDirty(a, vg)
		return true
	}
	return false
}

// fixFields forwards every field of obj, which lives in generation gen, and
// reports whether any of them now points below gen.
func (c *collection) fixFields(obj value.Word, k value.Kind, gen int) bool {
	weak := c.p.IsWeakPair(obj)
	young := false
	c.p.forEachField(obj, k, func(a uint64) {
		if weak && a == obj.Base() && c.clearDeadReferent(a) {
			return
		}
		if c.fixField(a, gen) {
			young = true
		}
	})
	return young
}

func (c *collection) fixUp() error {
	p := c.p
	p.state = StateFixingUp

	p.forEachRoot(func(loc *value.Word) { *loc = c.fwd(*loc) })

	// Old pages keep only their bits for generations that were not
	// collected; everything else is rebuilt from what was scanned.
	low := c.lowMask()
	for id := range p.segs.segs {
		s := &p.segs.segs[id]
		if !s.live || s.toSpace || s.gen <= c.k {
			continue
		}
		for i := s.start; i < s.start+s.pages; i++ {
			p.as.dirtyVector[i] &^= low
		}
	}
	for _, i := range c.cards {
		gen := int(p.as.segmentVector[i] & svGenMask)
		for a, end := pageAddr(i), pageAddr(i+1); a < end; a += value.WordSize {
			c.fixField(a, gen)
		}
	}

	for g := range Generations {
		p.remembered.reset(g)
	}
	for g := c.k + 1; g < Generations; g++ {
		done := make(map[value.Word]struct{}, len(c.containers[g]))
		for _, obj := range c.containers[g] {
			if _, ok := done[obj]; ok {
				continue
			}
			done[obj] = struct{}{}
			k, _ := p.shape(obj)
			if c.fixFields(obj, k, g) {
				p.remembered.add(g, obj)
			}
		}
	}

	for i, obj := range c.moved {
		gen := p.as.generation(obj.Base())
		if c.fixFields(obj, c.kinds[i], gen) {
			p.remembered.add(gen, obj)
		}
	}

	// The new nursery is mapped before from-space goes back, so it never
	// lands on the address range just collected.
	var from []int32
	for id := range p.segs.segs {
		s := &p.segs.segs[id]
		if s.live && !s.toSpace && s.gen <= c.k {
			from = append(from, int32(id))
		}
	}
	nursery, err := p.segs.newSegment(p.freshNurserySize(c.request), 0, spaceNursery, false)
	if err != nil {
		return err
	}

	var released uint64
	for _, id := range from {
		released += uint64(p.segs.segs[id].size())
		c.rec.PagesReleased += p.segs.release(id)
	}
	if released > c.rec.BytesCopied {
		c.rec.BytesFreed = released - c.rec.BytesCopied
	}
	for _, id := range c.fresh {
		p.segs.settle(id)
	}
	c.fresh = nil

	p.heapPages = []int32{nursery}
	p.setNursery(nursery)
	p.weakAP, p.weakEnd = 0, 0
	p.growth = p.nurserySize
	return nil
}

func (c *collection) finish() {
	p := c.p
	r := &c.rec
	r.Wall = time.Since(r.Start)
	u, s := cpuTimes()
	r.User, r.Sys = u-c.user0, s-c.sys0
	for g := range Generations {
		r.Remembered[g] = p.remembered.counts[g]
	}

	p.promotedSinceMajor += r.BytesPromoted
	if r.Major {
		p.promotedSinceMajor = 0
	}
	p.oomPending = false
	p.stats.add(r)
	p.state = StateIdle

	gcLog.Debugf("pcb %s: collection %d of gens 0..%d: %d live, copied %s, promoted %s, freed %s in %s",
		r.Instance, r.ID, r.Scope, r.LiveObjects, humanize.IBytes(r.BytesCopied),
		humanize.IBytes(r.BytesPromoted), humanize.IBytes(r.BytesFreed), r.Wall)

	for _, fn := range p.observers {
		fn(*r)
	}
}

// fail makes the PCB unusable. A failure while relocating hands the partial
// to-space back; from-space has not been modified and stays mapped.
func (c *collection) fail(phase GCState, err error) error {
	p := c.p
	if phase == StateRelocating {
		for _, id := range c.fresh {
			p.segs.release(id)
		}
		c.fresh = nil
	}
	fe := &FatalError{
		CollectionID: c.rec.ID,
		Phase:        phase,
		Requested:    c.request,
		Err:          err,
	}
	p.fatal = fe
	p.state = StateIdle
	if p.onFatal != nil {
		p.onFatal(fe)
	}
	return fe
}
