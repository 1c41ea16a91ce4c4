// ikheap CLI - drives a synthetic mutator workload against a heap and
// reports collector statistics
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/ikheap/config"
	"github.com/chazu/ikheap/gcstats"
	"github.com/chazu/ikheap/heap"
)

func main() {
	configDir := flag.String("config", "", "Directory containing ikheap.toml (default: search upward from the working directory)")
	verbosity := flag.Int("v", 0, "Log verbosity (-4 none, 0 notice, 1 info, 2 debug)")
	iterations := flag.Int("n", 2000, "Workload iterations")
	tableSize := flag.Int("table", 256, "Slots in the long-lived table")
	sqlitePath := flag.String("sqlite", "", "Append collection records to this SQLite database")
	snapshotPath := flag.String("snapshot", "", "Write a CBOR statistics snapshot to this file")
	finalMajor := flag.Bool("major", true, "Run a major collection before reporting")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ikheap [options]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a synthetic allocation workload and prints collector statistics.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ikheap -n 10000                    # Longer run with defaults\n")
		fmt.Fprintf(os.Stderr, "  ikheap -config ./bench -v 2        # Use ./bench/ikheap.toml, debug logging\n")
		fmt.Fprintf(os.Stderr, "  ikheap -sqlite gc.db -snapshot gc.cbor\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Command-line outputs override the configuration file and are relative
	// to the working directory.
	if *sqlitePath != "" {
		cfg.Stats.SQLite = absPath(*sqlitePath)
	}
	if *snapshotPath != "" {
		cfg.Stats.Snapshot = absPath(*snapshotPath)
	}

	if err := run(cfg, *iterations, *tableSize, *finalMajor); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(dir string) (*config.Config, error) {
	if dir != "" {
		return config.Load(dir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	return cfg, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func run(cfg *config.Config, iterations, tableSize int, finalMajor bool) error {
	recorder := gcstats.NewRecorder(cfg.Stats.Keep)
	opts := []heap.Option{heap.WithObserver(recorder.Observe)}

	var sink *gcstats.SQLiteSink
	if path := cfg.StatsPath(cfg.Stats.SQLite); path != "" {
		var err error
		if sink, err = gcstats.OpenSQLite(path); err != nil {
			return err
		}
		defer sink.Close()
		opts = append(opts, heap.WithObserver(sink.Observe))
	}

	p, err := heap.New(*cfg, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	start := time.Now()
	w := newWorkload(p, tableSize)
	if err := w.run(iterations); err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	if finalMajor {
		if _, err := p.Collect(heap.Major); err != nil {
			return err
		}
	}
	if err := p.Verify(); err != nil {
		return fmt.Errorf("heap verification: %w", err)
	}
	elapsed := time.Since(start)

	report(p, recorder, elapsed)

	if path := cfg.StatsPath(cfg.Stats.Snapshot); path != "" {
		if err := gcstats.WriteSnapshot(path, recorder.Snapshot(p)); err != nil {
			return err
		}
		fmt.Printf("Snapshot written to %s\n", path)
	}
	if sink != nil {
		sum, err := sink.Summarize(p.ID().String())
		if err != nil {
			return err
		}
		fmt.Printf("SQLite log: %d collections (%d major), slowest %s\n",
			sum.Collections, sum.Major, time.Duration(sum.MaxWallNS))
	}
	return nil
}

func report(p *heap.PCB, recorder *gcstats.Recorder, elapsed time.Duration) {
	s := p.Stats()
	fmt.Printf("Instance    %s\n", p.ID())
	fmt.Printf("Elapsed     %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Allocated   %s\n", humanize.IBytes(s.BytesAllocated))
	fmt.Printf("Collections %s (%s major)\n", humanize.Comma(int64(s.Collections)), humanize.Comma(int64(s.MajorCollections)))
	fmt.Printf("Copied      %s (%s promoted)\n", humanize.IBytes(s.BytesCopied), humanize.IBytes(s.BytesPromoted))
	fmt.Printf("Freed       %s in %s pages\n", humanize.IBytes(s.BytesFreed), humanize.Comma(int64(s.PagesReleased)))
	fmt.Printf("GC time     %s wall, %s user, %s sys\n", s.GCWall.Round(time.Microsecond), s.GCUser, s.GCSys)
	fmt.Printf("Heap        %s in %d segments\n", humanize.IBytes(s.HeapSize), s.Segments)
	fmt.Printf("Pages       %s mapped, %d hits, %d misses, %d cached\n",
		humanize.IBytes(s.Pages.MappedBytes), s.Pages.Hits, s.Pages.Misses, s.Pages.Cached)
	if s.NurseryExtensions > 0 {
		fmt.Printf("Extensions  %d\n", s.NurseryExtensions)
	}

	recs := recorder.Records()
	if len(recs) == 0 {
		return
	}
	fmt.Printf("\nLast %d collections:\n", len(recs))
	for _, r := range recs {
		kind := "minor"
		if r.Major {
			kind = "major"
		}
		fmt.Printf("  #%-5d %s k=%d live=%-6d copied=%-9s freed=%-9s %s\n",
			r.ID, kind, r.Scope, r.LiveObjects, humanize.IBytes(r.BytesCopied),
			humanize.IBytes(r.BytesFreed), r.Wall.Round(time.Microsecond))
	}
}
