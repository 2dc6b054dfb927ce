package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

const studentColumns = `id, classroom_id, owner_id, name, email, roll_number, face_encoding, active, created_at, updated_at`

// RosterRepository provides SQLite-backed classroom and student storage.
// Nearest-neighbor search runs on an in-memory HNSW graph built per classroom.
type RosterRepository struct {
	store *Store
}

// NewRosterRepository creates a new SQLite roster repository.
func NewRosterRepository(store *Store) *RosterRepository {
	return &RosterRepository{store: store}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (database.StoredStudent, error) {
	var s database.StoredStudent
	var encoding sql.NullString
	err := row.Scan(&s.ID, &s.ClassroomID, &s.OwnerID, &s.Name, &s.Email, &s.RollNumber,
		&encoding, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return s, err
	}
	if encoding.Valid {
		v := encoding.String
		s.FaceEncoding = &v
	}
	return s, nil
}

func scanStudents(rows *sql.Rows) ([]database.StoredStudent, error) {
	var students []database.StoredStudent
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// GetClassroom returns the classroom if it belongs to the owner.
func (r *RosterRepository) GetClassroom(ctx context.Context, classroomID, ownerID int64) (*database.StoredClassroom, error) {
	var c database.StoredClassroom
	err := r.store.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, description, subject, grade_level, created_at
		FROM classrooms
		WHERE id = ? AND owner_id = ?
	`, classroomID, ownerID).Scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.Subject, &c.GradeLevel, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get classroom: %w", err)
	}
	return &c, nil
}

// ListStudents returns the active students of a classroom ordered by id.
func (r *RosterRepository) ListStudents(ctx context.Context, classroomID, ownerID int64) ([]database.StoredStudent, error) {
	return listStudents(ctx, r.store.db, classroomID, ownerID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listStudents(ctx context.Context, q querier, classroomID, ownerID int64) ([]database.StoredStudent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE classroom_id = ? AND owner_id = ? AND active = 1
		ORDER BY id
	`, classroomID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// GetStudent returns a student owned by the owner.
func (r *RosterRepository) GetStudent(ctx context.Context, studentID, ownerID int64) (*database.StoredStudent, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE id = ? AND owner_id = ?
	`, studentID, ownerID)
	s, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	return &s, nil
}

// ListOwnerStudents returns every student of the owner, including inactive ones.
func (r *RosterRepository) ListOwnerStudents(ctx context.Context, ownerID int64) ([]database.StoredStudent, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE owner_id = ?
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query owner students: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// classroomIndex returns the cached HNSW graph of a classroom, building it on first use.
func (r *RosterRepository) classroomIndex(ctx context.Context, classroomID, ownerID int64) (*database.StudentIndex, error) {
	key := indexKey{classroomID: classroomID, ownerID: ownerID}

	idx, gen, ok := r.store.cachedIndex(key)
	if ok {
		return idx, nil
	}

	students, err := r.ListStudents(ctx, classroomID, ownerID)
	if err != nil {
		return nil, err
	}

	idx = database.NewStudentIndex()
	for _, s := range students {
		if s.FaceEncoding == nil {
			continue
		}
		n := facematch.Normalize(*s.FaceEncoding)
		if !n.Valid() {
			continue
		}
		idx.Add(s, n.Embedding.Float32())
	}

	// A stale graph still answers this call; only the cache skips it.
	r.store.cacheIndex(key, idx, gen)
	return idx, nil
}

// FindNearestStudents returns up to k active students nearest to the probe by L2 distance.
func (r *RosterRepository) FindNearestStudents(ctx context.Context, classroomID, ownerID int64, probe []float32, k int) ([]database.NearestStudent, error) {
	idx, err := r.classroomIndex(ctx, classroomID, ownerID)
	if err != nil {
		return nil, err
	}
	if idx.Count() == 0 {
		return nil, nil
	}

	results, err := idx.Search(probe, k)
	if err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}
	return results, nil
}

// CreateClassroom inserts a classroom and sets its ID.
func (r *RosterRepository) CreateClassroom(ctx context.Context, c *database.StoredClassroom) error {
	c.CreatedAt = time.Now().UTC()
	result, err := r.store.db.ExecContext(ctx, `
		INSERT INTO classrooms (owner_id, name, description, subject, grade_level, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.OwnerID, c.Name, c.Description, c.Subject, c.GradeLevel, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert classroom: %w", err)
	}
	if c.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("insert classroom: %w", err)
	}
	return nil
}

// CreateStudent inserts a student and sets its ID.
func (r *RosterRepository) CreateStudent(ctx context.Context, s *database.StoredStudent) error {
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	result, err := r.store.db.ExecContext(ctx, `
		INSERT INTO students (classroom_id, owner_id, name, email, roll_number, face_encoding, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ClassroomID, s.OwnerID, s.Name, s.Email, s.RollNumber, s.FaceEncoding, s.Active, now, now)
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	if s.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	r.store.dropIndexes()
	return nil
}

// UpdateFaceEncoding replaces the stored encoding text of a student. The
// vector is not stored; indexes rebuild from the text.
func (r *RosterRepository) UpdateFaceEncoding(ctx context.Context, studentID int64, encoding string, _ []float32) error {
	result, err := r.store.db.ExecContext(ctx, `
		UPDATE students SET face_encoding = ?, updated_at = ?
		WHERE id = ?
	`, encoding, time.Now().UTC(), studentID)
	if err != nil {
		return fmt.Errorf("update face encoding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update face encoding: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("student %d: %w", studentID, database.ErrNotFound)
	}
	r.store.dropIndexes()
	return nil
}
