// Package database opens the installation's relational database and adapts
// queries to the selected driver. Queries are written once with "?"
// placeholders and a "<PREFIX>" marker in front of table names:
//
//	SELECT * FROM <PREFIX>sessions WHERE id = ?
//
// The marker is replaced by the configured table prefix and placeholders are
// rebound to the driver's native syntax by sqlx.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/specialistvlad/infernum/internal/config"
)

// PrefixMarker is replaced by the table prefix in every query.
const PrefixMarker = "<PREFIX>"

// Dialect captures what differs between the supported drivers.
type Dialect struct {
	// Name is the name the driver is selected by in the system config.
	Name string
	// SQLDriver is the database/sql driver name. sqlx derives the
	// placeholder style from it.
	SQLDriver string
	// Blob is the column type for binary data.
	Blob string
}

var dialects = map[string]Dialect{
	"postgres": {Name: "postgres", SQLDriver: "postgres", Blob: "BYTEA"},
	"sqlite":   {Name: "sqlite", SQLDriver: "sqlite", Blob: "BLOB"},
}

// Drivers lists the supported driver names.
func Drivers() []string {
	out := make([]string, 0, len(dialects))
	for name := range dialects {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DB is a connection pool bound to a dialect and a table prefix.
type DB struct {
	conn    *sqlx.DB
	dialect Dialect
	prefix  string
}

// Open connects to the database described by cfg and verifies the
// connection.
func Open(ctx context.Context, cfg config.Database) (*DB, error) {
	dialect, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("database driver %q not found or invalid", cfg.Driver)
	}

	conn, err := sqlx.Open(dialect.SQLDriver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect.Name, err)
	}
	if dialect.Name == "sqlite" {
		// A single writer avoids SQLITE_BUSY under concurrent requests.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect.Name, err)
	}

	return &DB{conn: conn, dialect: dialect, prefix: cfg.Prefix}, nil
}

// Dialect returns the dialect the database was opened with.
func (d *DB) Dialect() Dialect { return d.dialect }

// Prefix returns the table prefix.
func (d *DB) Prefix() string { return d.prefix }

// Conn exposes the underlying connection pool.
func (d *DB) Conn() *sql.DB { return d.conn.DB }

// Close closes the connection pool.
func (d *DB) Close() error { return d.conn.Close() }

// Rewrite applies the table prefix and rebinds placeholders. Question
// marks inside string literals are rebound too, so queries pass literal
// values as arguments.
func (d *DB) Rewrite(query string) string {
	query = strings.ReplaceAll(query, PrefixMarker, d.prefix)
	return sqlx.Rebind(sqlx.BindType(d.dialect.SQLDriver), query)
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.conn.ExecContext(ctx, d.Rewrite(query), args...)
}

// Query runs a query returning rows.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.conn.QueryContext(ctx, d.Rewrite(query), args...)
}

// QueryRow runs a query returning at most one row.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn.QueryRowContext(ctx, d.Rewrite(query), args...)
}

// Get runs a query returning one row and scans it into dest, a struct with
// `db` tags. A missing row yields sql.ErrNoRows.
func (d *DB) Get(ctx context.Context, dest any, query string, args ...any) error {
	return d.conn.GetContext(ctx, dest, d.Rewrite(query), args...)
}
