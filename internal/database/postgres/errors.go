package postgres

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/lib/pq"
)

// SQLSTATE codes reported when a transaction loses a race.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// mapError translates lost-race driver errors into database.ErrConcurrentModification.
// Other errors are returned unchanged.
func mapError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %w", database.ErrConcurrentModification, err)
	}
	return err
}
