package store

import (
	"context"
	"fmt"
)

// Supported values for Open's driver argument.
const (
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
	DriverPostgres = "postgres"
)

// Open connects to the store named by driver. dsn is a file path for sqlite
// and a connection URL otherwise; authToken is only used by libsql.
func Open(ctx context.Context, driver, dsn, authToken string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, dsn)
	case DriverLibSQL:
		return OpenLibSQL(ctx, dsn, authToken)
	case DriverPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
