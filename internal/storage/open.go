// internal/storage/open.go
package storage

import "fmt"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the Storage for driver. dsn is a file path for SQLite and a
// connection string for PostgreSQL.
func Open(driver, dsn string) (Storage, error) {
	switch driver {
	case "", DriverSQLite:
		return NewSQLiteStorage(dsn)
	case DriverPostgres:
		return NewPostgresStorage(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
