package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
)

// AttendanceRepository provides SQLite-backed attendance storage.
type AttendanceRepository struct {
	store *Store
}

// NewAttendanceRepository creates a new SQLite attendance repository.
func NewAttendanceRepository(store *Store) *AttendanceRepository {
	return &AttendanceRepository{store: store}
}

// openBound returns the date text of a range bound, "" for an open bound.
func openBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(database.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	t, err := database.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored date: %w", err)
	}
	return t, nil
}

// WithinDay runs fn in one immediate transaction. BEGIN IMMEDIATE takes the
// database write lock, which covers the whole classroom day.
func (r *AttendanceRepository) WithinDay(ctx context.Context, key database.DayKey, fn func(tx database.DayTx) error) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

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
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT id, student_id, classroom_id, owner_id, date, status, created_at, updated_at
		FROM attendance
		WHERE student_id = ?1
		  AND (?2 = '' OR date >= ?2)
		  AND (?3 = '' OR date <= ?3)
		ORDER BY date DESC
	`, studentID, openBound(rng.From), openBound(rng.To))
	if err != nil {
		return nil, fmt.Errorf("query student history: %w", err)
	}
	defer rows.Close()

	return scanAttendance(rows)
}

// ClassroomRange returns the classroom's records in the range, newest date first, then by name.
func (r *AttendanceRepository) ClassroomRange(ctx context.Context, classroomID, ownerID int64, rng database.DateRange) ([]database.StudentDayRecord, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT a.student_id, s.name, s.email, s.roll_number, a.date, a.status, a.updated_at
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.classroom_id = ?1 AND a.owner_id = ?2
		  AND (?3 = '' OR a.date >= ?3)
		  AND (?4 = '' OR a.date <= ?4)
		ORDER BY a.date DESC, s.name
	`, classroomID, ownerID, openBound(rng.From), openBound(rng.To))
	if err != nil {
		return nil, fmt.Errorf("query classroom range: %w", err)
	}
	defer rows.Close()

	var result []database.StudentDayRecord
	for rows.Next() {
		var rec database.StudentDayRecord
		var date string
		if err := rows.Scan(&rec.StudentID, &rec.StudentName, &rec.StudentEmail, &rec.StudentRoll,
			&date, &rec.Status, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan classroom range: %w", err)
		}
		if rec.Date, err = parseDate(date); err != nil {
			return nil, err
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
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT capture_id, classroom_id, owner_id, date, kind, faces_detected, faces_matched,
		       present_count, absent_count, reason, created_at
		FROM attendance_events
		WHERE classroom_id = ? AND owner_id = ? AND date = ?
		ORDER BY created_at, rowid
	`, key.ClassroomID, key.OwnerID, key.DateString())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []database.AttendanceEvent
	for rows.Next() {
		var e database.AttendanceEvent
		var date string
		if err := rows.Scan(&e.CaptureID, &e.ClassroomID, &e.OwnerID, &date, &e.Kind,
			&e.FacesDetected, &e.FacesMatched, &e.PresentCount, &e.AbsentCount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if e.Date, err = parseDate(date); err != nil {
			return nil, err
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
		var date string
		if err := rows.Scan(&a.ID, &a.StudentID, &a.ClassroomID, &a.OwnerID, &date, &a.Status,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		var err error
		if a.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attendance: %w", err)
	}
	return result, nil
}

// dayTx is a database.DayTx over one SQLite transaction.
type dayTx struct {
	tx  *sql.Tx
	key database.DayKey
}

func (t *dayTx) Students(ctx context.Context) ([]database.StoredStudent, error) {
	return listStudents(ctx, t.tx, t.key.ClassroomID, t.key.OwnerID)
}

func (t *dayTx) Statuses(ctx context.Context) (map[int64]database.StoredAttendance, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, student_id, classroom_id, owner_id, date, status, created_at, updated_at
		FROM attendance
		WHERE classroom_id = ? AND date = ?
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

// SaveStatuses upserts every record. Rows whose status did not change are
// left untouched, keeping their updated_at.
func (t *dayTx) SaveStatuses(ctx context.Context, records []database.StoredAttendance) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO attendance (student_id, classroom_id, owner_id, date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, date) DO UPDATE
		SET status = excluded.status, updated_at = excluded.updated_at
		WHERE attendance.status <> excluded.status
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.StudentID, rec.ClassroomID, rec.OwnerID,
			rec.Date.Format(database.DateLayout), string(rec.Status), now, now); err != nil {
			return fmt.Errorf("upsert attendance for student %d: %w", rec.StudentID, err)
		}
	}
	return nil
}

func (t *dayTx) RecordEvent(ctx context.Context, e *database.AttendanceEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO attendance_events (capture_id, classroom_id, owner_id, date, kind, faces_detected,
		                               faces_matched, present_count, absent_count, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.CaptureID, e.ClassroomID, e.OwnerID, e.Date.Format(database.DateLayout), string(e.Kind),
		e.FacesDetected, e.FacesMatched, e.PresentCount, e.AbsentCount, e.Reason, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}
