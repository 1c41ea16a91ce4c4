package gcstats

import (
	"database/sql"
	"fmt"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/ikheap/heap"
)

var log = commonlog.GetLogger("ikheap.stats")

const schema = `CREATE TABLE IF NOT EXISTS collections (
	instance TEXT NOT NULL,
	id INTEGER NOT NULL,
	start INTEGER NOT NULL,
	scope INTEGER NOT NULL,
	major INTEGER NOT NULL,
	live_objects INTEGER NOT NULL,
	bytes_copied INTEGER NOT NULL,
	bytes_promoted INTEGER NOT NULL,
	bytes_freed INTEGER NOT NULL,
	pages_released INTEGER NOT NULL,
	wall_ns INTEGER NOT NULL,
	user_ns INTEGER NOT NULL,
	sys_ns INTEGER NOT NULL,
	PRIMARY KEY (instance, id)
)`

// SQLiteSink appends one row per collection to a SQLite database.
type SQLiteSink struct {
	db     *sql.DB
	dbPath string
	insert *sql.Stmt
}

// OpenSQLite opens (creating if needed) the collection log at dbPath.
func OpenSQLite(dbPath string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	insert, err := db.Prepare(`INSERT OR REPLACE INTO collections
		(instance, id, start, scope, major, live_objects, bytes_copied,
		 bytes_promoted, bytes_freed, pages_released, wall_ns, user_ns, sys_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing insert: %w", err)
	}
	return &SQLiteSink{db: db, dbPath: dbPath, insert: insert}, nil
}

// Insert writes one collection record.
func (s *SQLiteSink) Insert(r heap.CollectionRecord) error {
	major := 0
	if r.Major {
		major = 1
	}
	_, err := s.insert.Exec(r.Instance, r.ID, r.Start.UnixNano(), r.Scope, major,
		r.LiveObjects, int64(r.BytesCopied), int64(r.BytesPromoted), int64(r.BytesFreed),
		r.PagesReleased, int64(r.Wall), int64(r.User), int64(r.Sys))
	if err != nil {
		return fmt.Errorf("inserting collection %d: %w", r.ID, err)
	}
	return nil
}

// Observe is the heap.WithObserver hook. Write failures are logged, not
// returned, since the collector cannot act on them.
func (s *SQLiteSink) Observe(r heap.CollectionRecord) {
	if err := s.Insert(r); err != nil {
		log.Errorf("%s: %s", s.dbPath, err)
	}
}

// Count returns how many collections are logged for instance.
func (s *SQLiteSink) Count(instance string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM collections WHERE instance = ?", instance).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting collections: %w", err)
	}
	return n, nil
}

// Summary aggregates the log for instance.
type Summary struct {
	Collections int
	Major       int
	BytesCopied uint64
	BytesFreed  uint64
	MaxWallNS   int64
}

// Summarize aggregates the rows logged for instance.
func (s *SQLiteSink) Summarize(instance string) (Summary, error) {
	var sum Summary
	var copied, freed int64
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(major), 0),
		COALESCE(SUM(bytes_copied), 0), COALESCE(SUM(bytes_freed), 0), COALESCE(MAX(wall_ns), 0)
		FROM collections WHERE instance = ?`, instance).
		Scan(&sum.Collections, &sum.Major, &copied, &freed, &sum.MaxWallNS)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing collections: %w", err)
	}
	sum.BytesCopied, sum.BytesFreed = uint64(copied), uint64(freed)
	return sum, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	if s.insert != nil {
		s.insert.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
