package storage

import (
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendBolt     = "bolt"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open constructs the configured backend. For file backed stores location is
// a path; for SQL stores it is the DSN.
func Open(backend, location string) (Database, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendMemory:
		return NewMemDB(), nil
	case "", BackendLevelDB:
		if location == "" {
			return nil, fmt.Errorf("storage: leveldb path required")
		}
		return NewLevelDB(location)
	case BackendBolt:
		if location == "" {
			return nil, fmt.Errorf("storage: bolt path required")
		}
		return NewBoltDB(location, nil)
	case BackendSQLite, BackendPostgres:
		if location == "" {
			return nil, fmt.Errorf("storage: %s dsn required", backend)
		}
		return NewSQLDB(strings.ToLower(strings.TrimSpace(backend)), location)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
