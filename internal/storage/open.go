package storage

import (
	"context"
	"errors"
	"strings"

	logx "github.com/DW8888/alfred/pkg/logx"
)

// Store is the persistence API for generated package records.
type Store interface {
	SavePackage(ctx context.Context, p PackageRecord) (id string, err error)
	ListPackages(ctx context.Context, limit int) ([]PackageRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
