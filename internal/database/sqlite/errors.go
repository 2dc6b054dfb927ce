package sqlite

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/mattn/go-sqlite3"
)

// mapError translates busy and locked errors into database.ErrConcurrentModification.
func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
		return fmt.Errorf("%w: %w", database.ErrConcurrentModification, err)
	}
	return err
}
