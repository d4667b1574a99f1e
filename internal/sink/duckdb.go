// Package sink persists joined pipeline output into a DuckDB table with
// full-replace snapshot semantics.
package sink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/skyward-data/weatherpipe/internal/merge"
	"github.com/skyward-data/weatherpipe/pkg/pipeline/schema"
)

// DefaultTable matches the table name the original workflow loaded into.
const DefaultTable = "merged_data"

// PersistenceError reports a failed sink write. The prior table contents
// are guaranteed intact when this is returned.
type PersistenceError struct {
	Table string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e == nil {
		return "persistence error"
	}
	return fmt.Sprintf("persist table %q: %v", e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DuckDB writes joined rows into an embedded DuckDB database.
//
// The connection pool is owned by the sink and released by Close on every
// exit path; the orchestrator registers Close as always-run cleanup.
type DuckDB struct {
	db       *sql.DB
	table    string
	contract schema.TableContract
}

// Open opens (or creates) the database file at path. An empty path opens an
// in-memory database.
func Open(path, table string) (*DuckDB, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identRe.MatchString(table) {
		return nil, &PersistenceError{Table: table, Err: fmt.Errorf("invalid table name")}
	}

	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, &PersistenceError{Table: table, Err: fmt.Errorf("open duckdb %q: %w", path, err)}
	}
	db := sql.OpenDB(connector)
	// Single writer; replace semantics have no use for a wide pool.
	db.SetMaxOpenConns(2)

	return &DuckDB{
		db:       db,
		table:    table,
		contract: schema.Merged(table),
	}, nil
}

// Table returns the target table name.
func (s *DuckDB) Table() string { return s.table }

// Store replaces the table's full contents with rows in one transaction.
//
// Rows are inserted into a staging table first and swapped in at commit, so
// a concurrent reader observes either the prior table or the new one, never
// a mixture. Any failure rolls back and leaves the prior table unchanged.
func (s *DuckDB) Store(ctx context.Context, rows []merge.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Table: s.table, Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	staging := s.table + "__staging"
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staging)); err != nil {
		return &PersistenceError{Table: s.table, Err: err}
	}
	if _, err := tx.ExecContext(ctx, s.contract.CreateDDL(staging)); err != nil {
		return &PersistenceError{Table: s.table, Err: err}
	}

	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s",
		staging,
		strings.Join(s.contract.Columns(), ", "),
		s.contract.Placeholders(),
	)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return &PersistenceError{Table: s.table, Err: err}
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.City,
			r.Country,
			r.Population,
			r.Temperature,
			r.WeatherDescription,
			r.Humidity,
			r.Pressure,
			r.WindSpeed,
			r.Clouds,
		); err != nil {
			return &PersistenceError{Table: s.table, Err: fmt.Errorf("insert row city=%q: %w", r.City, err)}
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", s.table)); err != nil {
		return &PersistenceError{Table: s.table, Err: err}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", staging, s.table)); err != nil {
		return &PersistenceError{Table: s.table, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Table: s.table, Err: err}
	}
	return nil
}

// Count returns the current row count of the target table. Used by callers
// to report persisted counts and by tests to observe snapshots.
func (s *DuckDB) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", s.table)).Scan(&n)
	if err != nil {
		return 0, &PersistenceError{Table: s.table, Err: err}
	}
	return n, nil
}

// DB exposes the underlying pool for ad-hoc queries against the snapshot.
func (s *DuckDB) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *DuckDB) Close() error {
	return s.db.Close()
}
