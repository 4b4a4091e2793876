// Package scancache keeps downloaded sweep files in a local SQLite
// database so repeated runs against the same time window do not re-download
// from the archive.
package scancache

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/arcus-data/radarvol/internal/opendata"
	"github.com/arcus-data/radarvol/internal/timeutil"
)

// Cache is a SQLite-backed store of raw sweep files keyed by source URL.
// It implements opendata.Cache.
type Cache struct {
	db    *sql.DB
	clock timeutil.Clock
}

// Stats summarizes cache contents.
type Stats struct {
	Entries   int64
	Bytes     int64
	OldestFet time.Time
	NewestFet time.Time
}

// Open opens (creating if needed) the cache database at path and brings its
// schema up to date.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("scancache: opening %s: %w", path, err)
	}
	c := &Cache{db: db, clock: timeutil.RealClock{}}
	if err := c.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached payload for url; ok is false on a miss.
func (c *Cache) Get(url string) ([]byte, bool, error) {
	var payload []byte
	err := c.db.QueryRow(`SELECT payload FROM sweeps WHERE url = ?`, url).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scancache: reading %s: %w", url, err)
	}
	return payload, true, nil
}

// Put stores a downloaded sweep, replacing any previous entry for the same
// URL.
func (c *Cache) Put(ref opendata.SweepRef, data []byte) error {
	_, err := c.db.Exec(`
		INSERT INTO sweeps (id, url, filename, site, wmo, moment, elevation, nominal_time, byte_size, fetched_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			byte_size = excluded.byte_size,
			fetched_at = excluded.fetched_at,
			payload = excluded.payload`,
		uuid.NewString(), ref.URL, ref.Filename, ref.Site, ref.WMO, ref.Moment,
		ref.Elevation, ref.Nominal.UTC(), len(data), c.clock.Now().UTC(), data)
	if err != nil {
		return fmt.Errorf("scancache: storing %s: %w", ref.Filename, err)
	}
	return nil
}

// Prune removes entries fetched before the cutoff and returns how many
// were deleted.
func (c *Cache) Prune(olderThan time.Duration) (int64, error) {
	cutoff := c.clock.Now().UTC().Add(-olderThan)
	res, err := c.db.Exec(`DELETE FROM sweeps WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("scancache: pruning: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("scancache: pruned %d entries older than %s", n, olderThan)
	}
	return n, nil
}

// Stats reports entry count, total payload bytes, and fetch-time bounds.
func (c *Cache) Stats() (Stats, error) {
	var s Stats
	var oldest, newest sql.NullString
	err := c.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(byte_size), 0), MIN(fetched_at), MAX(fetched_at)
		FROM sweeps`).Scan(&s.Entries, &s.Bytes, &oldest, &newest)
	if err != nil {
		return s, fmt.Errorf("scancache: stats: %w", err)
	}
	if oldest.Valid {
		s.OldestFet, _ = parseDBTime(oldest.String)
	}
	if newest.Valid {
		s.NewestFet, _ = parseDBTime(newest.String)
	}
	return s, nil
}

// parseDBTime accepts the timestamp layouts SQLite hands back.
func parseDBTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("scancache: unparseable timestamp %q", s)
}
