// Package config handles ikheap.toml heap configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/inhies/go-bytesize"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "ikheap.toml"

// Generations is the number of collector generations, 0 (nursery) to 4.
const Generations = 5

// Config represents an ikheap.toml configuration.
type Config struct {
	Heap  Heap  `toml:"heap"`
	GC    GC    `toml:"gc"`
	Stats Stats `toml:"stats"`

	// Dir is the directory containing the ikheap.toml file (set at load time).
	Dir string `toml:"-"`
}

// Heap configures segments, the nursery and the page cache.
type Heap struct {
	// NurserySize is the size of a fresh allocation segment.
	NurserySize bytesize.ByteSize `toml:"nursery-size"`

	// SegmentGrowthCap bounds geometric growth of new segments; past it
	// segments grow linearly by this amount.
	SegmentGrowthCap bytesize.ByteSize `toml:"segment-growth-cap"`

	// RedlineMargin is the gap between the allocation redline and the true
	// end of the nursery. It is also the largest request compiled code may
	// bump inline without a check.
	RedlineMargin bytesize.ByteSize `toml:"redline-margin"`

	// ToSpaceSegment is the size of collector to-space segments.
	ToSpaceSegment bytesize.ByteSize `toml:"to-space-segment"`

	// PageBatch is how many pages are mapped from the OS at once.
	PageBatch int `toml:"page-batch"`

	// PageSource selects the OS page source: "mmap" or "go".
	PageSource string `toml:"page-source"`

	// StackSlots is the capacity of the native stack in words.
	StackSlots int `toml:"stack-slots"`
}

// GC configures collection scope and promotion.
type GC struct {
	// Cadence selects the scope: generation g is included in every
	// Cadence^g-th collection.
	Cadence int `toml:"cadence"`

	// PromoteAfter[g] is how many collections generation g survives before
	// its survivors move to g+1.
	PromoteAfter []int `toml:"promote-after"`

	// MajorThreshold forces a major collection once this many bytes have
	// been promoted since the last one.
	MajorThreshold bytesize.ByteSize `toml:"major-threshold"`
}

// Stats configures statistics sinks.
type Stats struct {
	SQLite   string `toml:"sqlite"`
	Snapshot string `toml:"snapshot"`
	Keep     int    `toml:"keep"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Heap: Heap{
			NurserySize:      8 * bytesize.MB,
			SegmentGrowthCap: 64 * bytesize.MB,
			RedlineMargin:    8 * bytesize.KB,
			ToSpaceSegment:   128 * bytesize.KB,
			PageBatch:        16,
			PageSource:       "mmap",
			StackSlots:       64 * 1024,
		},
		GC: GC{
			Cadence:        4,
			PromoteAfter:   []int{1, 1, 1, 1, 1},
			MajorThreshold: 64 * bytesize.MB,
		},
		Stats: Stats{
			Keep: 64,
		},
	}
}

// Validate checks the configuration for values the heap cannot honour.
func (c *Config) Validate() error {
	var errs []error
	const page = 4096

	if c.Heap.NurserySize < 4*page {
		errs = append(errs, fmt.Errorf("heap.nursery-size %v is below four pages", c.Heap.NurserySize))
	}
	if c.Heap.RedlineMargin < page || c.Heap.RedlineMargin%page != 0 {
		errs = append(errs, fmt.Errorf("heap.redline-margin %v must be a positive multiple of %d", c.Heap.RedlineMargin, page))
	}
	if c.Heap.RedlineMargin*2 > c.Heap.NurserySize {
		errs = append(errs, fmt.Errorf("heap.redline-margin %v leaves no room in a %v nursery", c.Heap.RedlineMargin, c.Heap.NurserySize))
	}
	if c.Heap.SegmentGrowthCap < c.Heap.NurserySize {
		errs = append(errs, fmt.Errorf("heap.segment-growth-cap %v is below the nursery size", c.Heap.SegmentGrowthCap))
	}
	if c.Heap.ToSpaceSegment < page {
		errs = append(errs, fmt.Errorf("heap.to-space-segment %v is below one page", c.Heap.ToSpaceSegment))
	}
	if c.Heap.PageBatch < 1 {
		errs = append(errs, fmt.Errorf("heap.page-batch must be at least 1, got %d", c.Heap.PageBatch))
	}
	switch c.Heap.PageSource {
	case "mmap", "go":
	default:
		errs = append(errs, fmt.Errorf("heap.page-source %q is not one of mmap, go", c.Heap.PageSource))
	}
	if c.Heap.StackSlots < 16 {
		errs = append(errs, fmt.Errorf("heap.stack-slots must be at least 16, got %d", c.Heap.StackSlots))
	}
	if c.GC.Cadence < 2 {
		errs = append(errs, fmt.Errorf("gc.cadence must be at least 2, got %d", c.GC.Cadence))
	}
	if len(c.GC.PromoteAfter) != Generations {
		errs = append(errs, fmt.Errorf("gc.promote-after needs %d entries, got %d", Generations, len(c.GC.PromoteAfter)))
	}
	for g, n := range c.GC.PromoteAfter {
		if n < 1 {
			errs = append(errs, fmt.Errorf("gc.promote-after[%d] must be at least 1, got %d", g, n))
		}
	}
	return errors.Join(errs...)
}

// Load parses an ikheap.toml file from the given directory. Keys missing
// from the file keep their default values.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find an ikheap.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// StatsPath resolves a stats output path relative to the config directory.
func (c *Config) StatsPath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}
