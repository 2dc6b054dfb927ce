package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/pgvector/pgvector-go"
)

const studentColumns = `id, classroom_id, owner_id, name, email, roll_number, face_encoding, active, created_at, updated_at`

// RosterRepository provides PostgreSQL-backed classroom and student storage.
// Nearest-neighbor search runs on the pgvector embedding column.
type RosterRepository struct {
	pool *Pool
}

// NewRosterRepository creates a new PostgreSQL roster repository.
func NewRosterRepository(pool *Pool) *RosterRepository {
	return &RosterRepository{pool: pool}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner, extra ...any) (database.StoredStudent, error) {
	var s database.StoredStudent
	var encoding sql.NullString
	dest := append([]any{
		&s.ID, &s.ClassroomID, &s.OwnerID, &s.Name, &s.Email, &s.RollNumber,
		&encoding, &s.Active, &s.CreatedAt, &s.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
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

// embeddingParam derives the vector column value from stored encoding text.
// Returns nil (NULL) when the text does not normalize.
func embeddingParam(encoding *string) any {
	if encoding == nil {
		return nil
	}
	n := facematch.Normalize(*encoding)
	if !n.Valid() {
		return nil
	}
	return pgvector.NewVector(n.Embedding.Float32())
}

// GetClassroom returns the classroom if it belongs to the owner.
func (r *RosterRepository) GetClassroom(ctx context.Context, classroomID, ownerID int64) (*database.StoredClassroom, error) {
	var c database.StoredClassroom
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, description, subject, grade_level, created_at
		FROM classrooms
		WHERE id = $1 AND owner_id = $2
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
	rows, err := r.pool.Query(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE classroom_id = $1 AND owner_id = $2 AND active
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
	row := r.pool.QueryRow(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE id = $1 AND owner_id = $2
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
	rows, err := r.pool.Query(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE owner_id = $1
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query owner students: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

// FindNearestStudents returns up to k active students nearest to the probe by L2 distance.
func (r *RosterRepository) FindNearestStudents(ctx context.Context, classroomID, ownerID int64, probe []float32, k int) ([]database.NearestStudent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+studentColumns+`, embedding <-> $3::vector AS distance
		FROM students
		WHERE classroom_id = $1 AND owner_id = $2 AND active AND embedding IS NOT NULL
		ORDER BY embedding <-> $3::vector, id
		LIMIT $4
	`, classroomID, ownerID, pgvector.NewVector(probe), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest students: %w", err)
	}
	defer rows.Close()

	var result []database.NearestStudent
	for rows.Next() {
		var distance float64
		s, err := scanStudent(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan nearest student: %w", err)
		}
		result = append(result, database.NearestStudent{Student: s, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest students: %w", err)
	}
	return result, nil
}

// CreateClassroom inserts a classroom and sets its ID.
func (r *RosterRepository) CreateClassroom(ctx context.Context, c *database.StoredClassroom) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO classrooms (owner_id, name, description, subject, grade_level)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, c.OwnerID, c.Name, c.Description, c.Subject, c.GradeLevel).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert classroom: %w", err)
	}
	return nil
}

// CreateStudent inserts a student and sets its ID. The embedding column is
// derived from the encoding text.
func (r *RosterRepository) CreateStudent(ctx context.Context, s *database.StoredStudent) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO students (classroom_id, owner_id, name, email, roll_number, face_encoding, embedding, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, s.ClassroomID, s.OwnerID, s.Name, s.Email, s.RollNumber, s.FaceEncoding, embeddingParam(s.FaceEncoding), s.Active,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert student: %w", err)
	}
	return nil
}

// UpdateFaceEncoding replaces the stored encoding text and vector of a student.
func (r *RosterRepository) UpdateFaceEncoding(ctx context.Context, studentID int64, encoding string, embedding []float32) error {
	var vec any
	if embedding != nil {
		vec = pgvector.NewVector(embedding)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE students SET face_encoding = $2, embedding = $3, updated_at = NOW()
		WHERE id = $1
	`, studentID, encoding, vec)
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
	return nil
}
