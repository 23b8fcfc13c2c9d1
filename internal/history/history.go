// Package history records cache stats reports in a SQL database so hit
// rates can be charted over time. Cache contents are never stored here.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/electwix/apicache/internal/cache"
	"github.com/electwix/apicache/internal/registry"
)

// Supported sink drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrUnknownDriver is returned for a driver other than sqlite or postgres.
var ErrUnknownDriver = errors.New("unknown history driver")

// Sink names the database a Recorder writes to.
type Sink struct {
	Driver string
	DSN    string
}

type dialect struct {
	sqlDriver   string
	createTable string
	createIndex string
	placeholder func(n int) string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		sqlDriver: "sqlite",
		createTable: `CREATE TABLE IF NOT EXISTS cache_stats (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	cache TEXT NOT NULL,
	size INTEGER NOT NULL,
	hits INTEGER NOT NULL,
	misses INTEGER NOT NULL,
	hit_rate REAL NOT NULL,
	recorded_at INTEGER NOT NULL
)`,
		createIndex: `CREATE INDEX IF NOT EXISTS cache_stats_cache_recorded ON cache_stats (cache, recorded_at)`,
		placeholder: func(int) string { return "?" },
	},
	DriverPostgres: {
		sqlDriver: "pgx",
		createTable: `CREATE TABLE IF NOT EXISTS cache_stats (
	seq BIGSERIAL PRIMARY KEY,
	id UUID NOT NULL UNIQUE,
	cache TEXT NOT NULL,
	size BIGINT NOT NULL,
	hits BIGINT NOT NULL,
	misses BIGINT NOT NULL,
	hit_rate DOUBLE PRECISION NOT NULL,
	recorded_at BIGINT NOT NULL
)`,
		createIndex: `CREATE INDEX IF NOT EXISTS cache_stats_cache_recorded ON cache_stats (cache, recorded_at)`,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	},
}

func (d dialect) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range count {
		parts[i] = d.placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}

// Row is one recorded stats sample.
type Row struct {
	ID         uuid.UUID
	Cache      registry.Name
	Stats      cache.Stats
	RecordedAt time.Time
}

// Recorder writes reports to cache_stats. It satisfies telemetry.Observer.
type Recorder struct {
	db          *sql.DB
	insertQuery string
	recentQuery string
}

// Open connects to sink and makes sure the cache_stats table exists.
func Open(ctx context.Context, sink Sink) (*Recorder, error) {
	d, ok := dialects[sink.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, sink.Driver)
	}

	db, err := sql.Open(d.sqlDriver, sink.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s history: %w", sink.Driver, err)
	}
	if sink.Driver == DriverSQLite {
		// An in-memory database exists per connection.
		db.SetMaxOpenConns(1)
	}

	rec, err := newRecorder(ctx, db, d)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s history: %w", sink.Driver, err)
	}
	return rec, nil
}

func newRecorder(ctx context.Context, db *sql.DB, d dialect) (*Recorder, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, d.createTable); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	if _, err := db.ExecContext(ctx, d.createIndex); err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &Recorder{
		db: db,
		insertQuery: "INSERT INTO cache_stats (id, cache, size, hits, misses, hit_rate, recorded_at) VALUES (" +
			d.placeholders(1, 7) + ")",
		recentQuery: "SELECT id, cache, size, hits, misses, hit_rate, recorded_at FROM cache_stats WHERE cache = " +
			d.placeholder(1) + " ORDER BY recorded_at DESC, seq DESC LIMIT " + d.placeholder(2),
	}, nil
}

// Observe stores one row per cache in rep within a single transaction.
func (r *Recorder) Observe(ctx context.Context, rep registry.Report) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, name := range registry.Names() {
		st, ok := rep.Caches[name]
		if !ok {
			continue
		}
		_, err := tx.ExecContext(ctx, r.insertQuery,
			uuid.New(),
			name.String(),
			int64(st.Size),
			int64(st.Hits),
			int64(st.Misses),
			st.HitRate,
			rep.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("record %s stats: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record stats: %w", err)
	}
	return nil
}

// Recent returns up to limit rows for name, newest first.
func (r *Recorder) Recent(ctx context.Context, name registry.Name, limit int) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, r.recentQuery, name.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query %s history: %w", name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row        Row
			cacheName  string
			size       int64
			hits       int64
			misses     int64
			recordedAt int64
		)
		if err := rows.Scan(&row.ID, &cacheName, &size, &hits, &misses, &row.Stats.HitRate, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan %s history: %w", name, err)
		}
		if row.Cache, err = registry.ParseName(cacheName); err != nil {
			return nil, fmt.Errorf("scan %s history: %w", name, err)
		}
		row.Stats.Size = int(size)
		row.Stats.Hits = uint64(hits)
		row.Stats.Misses = uint64(misses)
		row.RecordedAt = time.UnixMilli(recordedAt)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s history: %w", name, err)
	}
	return out, nil
}

// Close releases the database handle.
func (r *Recorder) Close() error {
	return r.db.Close()
}
