// Package storage persists session records for the mind package, either as
// one JSON document (datastore) or as rows in an SQLite database.
package storage

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/keshon/kokoroflow/internal/config"
	"github.com/keshon/kokoroflow/internal/mind"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Backend is a mind.Persister that owns resources.
type Backend interface {
	mind.Persister
	Close() error
}

// Open returns the backend selected by cfg.Driver.
func Open(cfg config.Storage, log zerolog.Logger) (Backend, error) {
	switch cfg.Driver {
	case DriverJSON, "":
		return OpenJSON(cfg.Path, log)
	case DriverSQLite:
		return OpenSQLite(cfg.Path, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
