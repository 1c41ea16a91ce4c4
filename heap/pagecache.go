package heap

import (
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
)

var pagesLog = commonlog.GetLogger("ikheap.pages")

const nilNode int32 = -1

// pageNode is one metadata node of the page cache arena. A node is either on
// the cached list, describing a mapped page ready for reuse, or on the spare
// list with no page.
type pageNode struct {
	page []byte
	next int32
}

// PageCacheStats counts page cache traffic.
type PageCacheStats struct {
	Maps        uint64
	MappedBytes uint64
	Hits        uint64
	Misses      uint64
	Releases    uint64
	Cached      int
}

// pageCache recycles pages between segments so that released memory is
// reused before the OS is asked for more.
type pageCache struct {
	source PageSource
	batch  int

	nodes  []pageNode
	cached int32
	spare  int32

	mappings [][]byte
	stats    PageCacheStats
}

func newPageCache(src PageSource, batch int) *pageCache {
	if batch < 1 {
		batch = 1
	}
	return &pageCache{
		source: src,
		batch:  batch,
		cached: nilNode,
		spare:  nilNode,
	}
}

// acquire returns one page. A cached page is zeroed only when zero is set;
// freshly mapped pages are always zero.
func (c *pageCache) acquire(zero bool) ([]byte, error) {
	if c.cached != nilNode {
		i := c.cached
		n := &c.nodes[i]
		page := n.page
		c.cached = n.next
		n.page = nil
		n.next = c.spare
		c.spare = i
		c.stats.Hits++
		c.stats.Cached--
		if zero {
			clear(page)
		}
		return page, nil
	}

	c.stats.Misses++
	mem, err := c.source.Map(c.batch * pageSize)
	if err != nil {
		return nil, err
	}
	c.mappings = append(c.mappings, mem)
	c.stats.Maps++
	c.stats.MappedBytes += uint64(len(mem))
	pagesLog.Debugf("mapped %s (%d pages)", humanize.IBytes(uint64(len(mem))), len(mem)/pageSize)

	for off := pageSize; off+pageSize <= len(mem); off += pageSize {
		c.push(mem[off : off+pageSize : off+pageSize])
	}
	return mem[:pageSize:pageSize], nil
}

// release returns a page to the cache.
func (c *pageCache) release(page []byte) {
	c.stats.Releases++
	c.push(page)
}

func (c *pageCache) push(page []byte) {
	var i int32
	if c.spare != nilNode {
		i = c.spare
		c.spare = c.nodes[i].next
	} else {
		c.nodes = append(c.nodes, pageNode{})
		i = int32(len(c.nodes) - 1)
	}
	c.nodes[i] = pageNode{page: page, next: c.cached}
	c.cached = i
	c.stats.Cached++
}

// close unmaps every mapping. Pages handed out earlier become invalid.
func (c *pageCache) close() error {
	var errs []error
	for _, mem := range c.mappings {
		if err := c.source.Unmap(mem); err != nil {
			errs = append(errs, err)
		}
	}
	c.mappings = nil
	c.nodes = nil
	c.cached, c.spare = nilNode, nilNode
	c.stats.Cached = 0
	return errors.Join(errs...)
}
