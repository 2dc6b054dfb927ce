// Package sqlite is the embedded single-file storage backend.
//
// All connections go through one *sql.DB limited to a single open connection,
// and every transaction starts with BEGIN IMMEDIATE, so writes to the database
// are fully serialized. That is what makes a classroom day's read-merge-write
// atomic on this backend.
package sqlite

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// Store provides durable storage for classrooms, students and attendance.
type Store struct {
	db *sql.DB

	// indexes caches nearest-student graphs per classroom; roster writes drop
	// them and bump indexGen, so a graph built before a write is never cached.
	indexMu  sync.Mutex
	indexes  map[indexKey]*database.StudentIndex
	indexGen uint64
}

type indexKey struct {
	classroomID int64
	ownerID     int64
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - immediate transactions, taking the write lock at BEGIN
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, indexes: make(map[indexKey]*database.StudentIndex)}, nil
}

// Initialize opens the database at cfg.Path and registers it as the active
// storage backend.
func Initialize(cfg *config.SQLiteConfig) (*Store, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	s, err := Open(cfg.Path)
	if err != nil {
		return nil, err
	}

	database.RegisterBackend("sqlite",
		func() database.RosterWriter { return NewRosterRepository(s) },
		func() database.AttendanceStore { return NewAttendanceRepository(s) },
	)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) dropIndexes() {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	clear(s.indexes)
	s.indexGen++
}

// cachedIndex returns the cached graph of key, if any, and the current generation.
func (s *Store) cachedIndex(key indexKey) (*database.StudentIndex, uint64, bool) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	idx, ok := s.indexes[key]
	return idx, s.indexGen, ok
}

// cacheIndex stores idx unless the roster changed since generation gen.
func (s *Store) cacheIndex(key indexKey, idx *database.StudentIndex, gen uint64) bool {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if gen != s.indexGen {
		return false
	}
	s.indexes[key] = idx
	return true
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist. This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}
