package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/lib/pq"
)

// AttendanceRepository provides PostgreSQL-backed attendance storage.
//
// Writes to one classroom day are serialized with a transaction-scoped advisory
// lock keyed by (classroom, yyyymmdd), so the read-merge-write of a
// reconciliation never interleaves with another one for the same day.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// nullDate returns the date for a DATE parameter, or nil for an open bound.
func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(database.DateLayout)
}

// WithinDay runs fn in one transaction holding the advisory lock of the key.
func (r *AttendanceRepository) WithinDay(ctx context.Context, key database.DayKey, fn func(tx database.DayTx) error) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback()

	// Classroom ids beyond int32 only share locks, which over-serializes but stays correct.
	lockClassroom := int32(key.ClassroomID) //nolint:gosec // see above
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1::int, $2::int)", lockClassroom, key.DateNumber()); err != nil {
		return mapError(fmt.Errorf("acquire day lock: %w", err))
	}

	if err := fn(&dayTx{tx: tx, key: key}); err != nil {
		return mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// StudentHistory returns a student's records in the range, newest first.
func (r *AttendanceRepository) StudentHistory(ctx context.Context, studentID int64, rng database.DateRange) ([]database.StoredAttendance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, student_id, classroom_id, owner_id, date, status, created_at, updated_at
		FROM attendance
		WHERE student_id = $1
		  AND ($2::date IS NULL OR date >= $2::date)
		  AND ($3::date IS NULL OR date <= $3::date)
		ORDER BY date DESC
	`, studentID, nullDate(rng.From), nullDate(rng.To))
	if err != nil {
		return nil, fmt.Errorf("query student history: %w", err)
	}
	defer rows.Close()

	return scanAttendance(rows)
}

// ClassroomRange returns the classroom's records in the range, newest date first, then by name.
func (r *AttendanceRepository) ClassroomRange(ctx context.Context, classroomID, ownerID int64, rng database.DateRange) ([]database.StudentDayRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.student_id, s.name, s.email, s.roll_number, a.date, a.status, a.updated_at
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.classroom_id = $1 AND a.owner_id = $2
		  AND ($3::date IS NULL OR a.date >= $3::date)
		  AND ($4::date IS NULL OR a.date <= $4::date)
		ORDER BY a.date DESC, s.name
	`, classroomID, ownerID, nullDate(rng.From), nullDate(rng.To))
	if err != nil {
		return nil, fmt.Errorf("query classroom range: %w", err)
	}
	defer rows.Close()

	var result []database.StudentDayRecord
	for rows.Next() {
		var rec database.StudentDayRecord
		if err := rows.Scan(&rec.StudentID, &rec.StudentName, &rec.StudentEmail, &rec.StudentRoll,
			&rec.Date, &rec.Status, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan classroom range: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classroom range: %w", err)
	}
	return result, nil
}

// ListEvents returns the audit events of a classroom day, oldest first.
func (r *AttendanceRepository) ListEvents(ctx context.Context, key database.DayKey) ([]database.AttendanceEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT capture_id, classroom_id, owner_id, date, kind, faces_detected, faces_matched,
		       present_count, absent_count, reason, created_at
		FROM attendance_events
		WHERE classroom_id = $1 AND owner_id = $2 AND date = $3::date
		ORDER BY created_at, capture_id
	`, key.ClassroomID, key.OwnerID, key.DateString())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []database.AttendanceEvent
	for rows.Next() {
		var e database.AttendanceEvent
		if err := rows.Scan(&e.CaptureID, &e.ClassroomID, &e.OwnerID, &e.Date, &e.Kind,
			&e.FacesDetected, &e.FacesMatched, &e.PresentCount, &e.AbsentCount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanAttendance(rows *sql.Rows) ([]database.StoredAttendance, error) {
	var result []database.StoredAttendance
	for rows.Next() {
		var a database.StoredAttendance
		if err := rows.Scan(&a.ID, &a.StudentID, &a.ClassroomID, &a.OwnerID, &a.Date, &a.Status,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return result, nil
}

// dayTx is a database.DayTx over one PostgreSQL transaction.
type dayTx struct {
	tx  *sql.Tx
	key database.DayKey
}

func (t *dayTx) Students(ctx context.Context) ([]database.StoredStudent, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+studentColumns+`
		FROM students
		WHERE classroom_id = $1 AND owner_id = $2 AND active
		ORDER BY id
	`, t.key.ClassroomID, t.key.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	return scanStudents(rows)
}

func (t *dayTx) Statuses(ctx context.Context) (map[int64]database.StoredAttendance, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, student_id, classroom_id, owner_id, date, status, created_at, updated_at
		FROM attendance
		WHERE classroom_id = $1 AND date = $2::date
	`, t.key.ClassroomID, t.key.DateString())
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	records, err := scanAttendance(rows)
	if err != nil {
		return nil, err
	}
	result := make(map[int64]database.StoredAttendance, len(records))
	for _, rec := range records {
		result[rec.StudentID] = rec
	}
	return result, nil
}

// SaveStatuses upserts all records in one statement. Rows whose status did
// not change are left untouched, keeping their updated_at.
func (t *dayTx) SaveStatuses(ctx context.Context, records []database.StoredAttendance) error {
	if len(records) == 0 {
		return nil
	}

	studentIDs := make([]int64, len(records))
	classroomIDs := make([]int64, len(records))
	ownerIDs := make([]int64, len(records))
	dates := make([]string, len(records))
	statuses := make([]string, len(records))
	for i, rec := range records {
		studentIDs[i] = rec.StudentID
		classroomIDs[i] = rec.ClassroomID
		ownerIDs[i] = rec.OwnerID
		dates[i] = rec.Date.Format(database.DateLayout)
		statuses[i] = string(rec.Status)
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO attendance (student_id, classroom_id, owner_id, date, status)
		SELECT * FROM unnest($1::bigint[], $2::bigint[], $3::bigint[], $4::date[], $5::text[])
		ON CONFLICT (student_id, date) DO UPDATE
		SET status = EXCLUDED.status, updated_at = NOW()
		WHERE attendance.status IS DISTINCT FROM EXCLUDED.status
	`, pq.Array(studentIDs), pq.Array(classroomIDs), pq.Array(ownerIDs), pq.Array(dates), pq.Array(statuses))
	if err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}

func (t *dayTx) RecordEvent(ctx context.Context, e *database.AttendanceEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO attendance_events (capture_id, classroom_id, owner_id, date, kind, faces_detected,
		                               faces_matched, present_count, absent_count, reason, created_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11)
	`, e.CaptureID, e.ClassroomID, e.OwnerID, e.Date.Format(database.DateLayout), string(e.Kind),
		e.FacesDetected, e.FacesMatched, e.PresentCount, e.AbsentCount, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
