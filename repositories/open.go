package repositories

import (
	"citychat/clock"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
	"github.com/dgraph-io/badger/v4"
)

type Driver string

const (
	DriverBadger Driver = "badger"
	DriverPebble Driver = "pebble"
)

// Open opens the history store of the given driver rooted at path.
func Open(driver Driver, path string, log *slog.Logger, c clock.Clock) (IHistoryRepository, error) {
	switch driver {
	case DriverBadger, "":
		db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, fmt.Errorf("badger opening failed: %w", err)
		}
		return NewBadgerHistoryRepository(db, log, c), nil
	case DriverPebble:
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, err
		}
		db, err := pebble.Open(filepath.Clean(path), &pebble.Options{})
		if err != nil {
			return nil, fmt.Errorf("pebble opening failed: %w", err)
		}
		return NewPebbleHistoryRepository(db, log, c), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
