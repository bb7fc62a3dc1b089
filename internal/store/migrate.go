package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"
)

//go:embed migrations
var migrationsFS embed.FS

const (
	sqliteMigrations   = "migrations/sqlite"
	postgresMigrations = "migrations/postgres"
)

// MigrateSQLite applies pending migrations to a SQLite file using
// golang-migrate with the embedded migration set.
func MigrateSQLite(dbPath string) error {
	sub, err := fs.Sub(migrationsFS, sqliteMigrations)
	if err != nil {
		return errors.Wrap(err, "access migrations directory")
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return errors.Wrap(err, "create migration source")
	}

	// Windows paths need forward slashes and a leading slash in the URL
	normalized := filepath.ToSlash(dbPath)
	if filepath.IsAbs(dbPath) && normalized[0] != '/' {
		normalized = "/" + normalized
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+normalized)
	if err != nil {
		return errors.Wrap(err, "create migration instance")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

type scriptExecer interface {
	Exec(ctx context.Context, q string) error
}

// applyScripts runs every *.up.sql file of a migration set in version order,
// one statement at a time. The scripts are idempotent, which is what lets
// libSQL and Postgres reuse them without a migration driver.
func applyScripts(ctx context.Context, db scriptExecer, dir string) error {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationsFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return errors.Wrapf(err, "read %s", name)
		}
		for _, stmt := range splitStatements(string(body)) {
			if err := db.Exec(ctx, stmt); err != nil {
				return errors.Wrap(err, fmt.Sprintf("apply %s", name))
			}
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
