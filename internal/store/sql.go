package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// SQLStore is a Store backed by database/sql: a local SQLite file through
// modernc.org/sqlite or a remote Turso database through libsql.
type SQLStore struct {
	records
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// OpenSQLite opens (creating if needed) a SQLite file and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create database directory")
		}
		if err := MigrateSQLite(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One connection keeps pragmas applied and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
		`PRAGMA synchronous=NORMAL`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}

	if path == ":memory:" {
		if err := applyScripts(ctx, sqlExec{db}, sqliteMigrations); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return newSQLStore(db), nil
}

// OpenLibSQL connects to a Turso database and creates the schema if missing.
func OpenLibSQL(ctx context.Context, url, authToken string) (*SQLStore, error) {
	connStr := url
	if authToken != "" {
		connStr = fmt.Sprintf("%s?authToken=%s", url, authToken)
	}

	db, err := sql.Open("libsql", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Turso")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping Turso")
	}

	if err := applyScripts(ctx, sqlExec{db}, sqliteMigrations); err != nil {
		db.Close()
		return nil, err
	}

	return newSQLStore(db), nil
}

func newSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{records: records{db: sqlBackend{db}}, db: db}
}

// Close closes the underlying connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle for custom queries
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

type sqlBackend struct {
	db *sql.DB
}

func (b sqlBackend) exec(ctx context.Context, q string, args ...any) error {
	_, err := b.db.ExecContext(ctx, q, args...)
	return err
}

func (b sqlBackend) queryRow(ctx context.Context, q string, args ...any) rowScanner {
	return b.db.QueryRowContext(ctx, q, args...)
}

func (b sqlBackend) query(ctx context.Context, q string, args ...any) (rowIterator, error) {
	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (b sqlBackend) noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() {
	_ = r.Rows.Close()
}

type sqlExec struct {
	db *sql.DB
}

func (e sqlExec) Exec(ctx context.Context, q string) error {
	_, err := e.db.ExecContext(ctx, q)
	return err
}
