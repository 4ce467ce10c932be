// Package profile persists hot-spot statistics in SQLite so a restarted
// host can pick up where the previous one left off.
package profile

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	evo "github.com/juoon/evo-sub000/core"
)

const schema = `CREATE TABLE IF NOT EXISTS hot_spots (
	fingerprint    TEXT PRIMARY KEY,
	source         TEXT NOT NULL,
	count          INTEGER NOT NULL,
	total_ns       INTEGER NOT NULL,
	last_run       INTEGER NOT NULL,
	compiled       INTEGER NOT NULL,
	compiled_at    INTEGER NOT NULL,
	optimized_runs INTEGER NOT NULL
)`

const upsert = `INSERT INTO hot_spots
	(fingerprint, source, count, total_ns, last_run, compiled, compiled_at, optimized_runs)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(fingerprint) DO UPDATE SET
		source = excluded.source,
		count = excluded.count,
		total_ns = excluded.total_ns,
		last_run = excluded.last_run,
		compiled = excluded.compiled,
		compiled_at = excluded.compiled_at,
		optimized_runs = excluded.optimized_runs`

// Store is a SQLite file of hot-spot profiles keyed by fingerprint.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	log.Printf("opened profile database: %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file the store was opened with.
func (s *Store) Path() string { return s.path }

// Save upserts every profile in a single transaction.
func (s *Store) Save(stats []evo.HotSpotStats) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(upsert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, st := range stats {
		_, err := stmt.Exec(
			st.Fingerprint,
			st.Source,
			st.Count,
			int64(st.TotalTime),
			unixNano(st.LastRun),
			st.Compiled,
			unixNano(st.CompiledAt),
			st.OptimizedRuns,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("save %s: %w", st.Fingerprint, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns every saved profile, most executed first.
func (s *Store) Load() ([]evo.HotSpotStats, error) {
	rows, err := s.db.Query(`SELECT fingerprint, source, count, total_ns, last_run, compiled, compiled_at, optimized_runs
		FROM hot_spots ORDER BY count DESC, fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []evo.HotSpotStats
	for rows.Next() {
		var (
			st                    evo.HotSpotStats
			totalNS, last, compAt int64
		)
		if err := rows.Scan(&st.Fingerprint, &st.Source, &st.Count, &totalNS, &last, &st.Compiled, &compAt, &st.OptimizedRuns); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		st.TotalTime = time.Duration(totalNS)
		st.LastRun = fromUnixNano(last)
		st.CompiledAt = fromUnixNano(compAt)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return err
	}
	log.Printf("closed profile database: %s", s.path)
	return nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
