package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/postgres"
	"github.com/kozaktomas/attendance/internal/database/sqlite"
)

// openStorage initializes the configured backend and registers it with the
// database package. PostgreSQL wins when both are configured.
func openStorage(cfg *config.Config, verbose bool) (func(), error) {
	switch {
	case cfg.Database.URL != "":
		if verbose {
			fmt.Println("Connecting to PostgreSQL database...")
		}
		if err := postgres.Initialize(&cfg.Database); err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		pool := postgres.GetGlobalPool()
		return func() { pool.Close() }, nil

	case cfg.SQLite.Path != "":
		if verbose {
			fmt.Printf("Opening SQLite database %s...\n", cfg.SQLite.Path)
		}
		store, err := sqlite.Initialize(&cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		return func() { store.Close() }, nil

	default:
		return nil, errors.New("DATABASE_URL or SQLITE_PATH environment variable is required")
	}
}

// newService opens storage and builds the attendance service over it.
func newService(ctx context.Context, cfg *config.Config, verbose bool) (*attendance.Service, func(), error) {
	closeStorage, err := openStorage(cfg, verbose)
	if err != nil {
		return nil, nil, err
	}

	roster, err := database.GetRosterWriter(ctx)
	if err != nil {
		closeStorage()
		return nil, nil, fmt.Errorf("roster storage: %w", err)
	}
	store, err := database.GetAttendanceStore(ctx)
	if err != nil {
		closeStorage()
		return nil, nil, fmt.Errorf("attendance storage: %w", err)
	}

	if verbose {
		fmt.Printf("Using %s backend\n", database.BackendName())
	}
	return attendance.NewService(roster, store, &cfg.Matching), closeStorage, nil
}
