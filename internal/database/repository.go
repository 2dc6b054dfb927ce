package database

import (
	"context"
)

// RosterReader provides read-only access to classrooms and enrolled students
type RosterReader interface {
	// GetClassroom returns the classroom if it belongs to the owner, nil if not found
	GetClassroom(ctx context.Context, classroomID, ownerID int64) (*StoredClassroom, error)
	// ListStudents returns the active students of a classroom ordered by id (enrollment order)
	ListStudents(ctx context.Context, classroomID, ownerID int64) ([]StoredStudent, error)
	// GetStudent returns a student owned by the owner, nil if not found
	GetStudent(ctx context.Context, studentID, ownerID int64) (*StoredStudent, error)
	// ListOwnerStudents returns every student of the owner, including inactive ones
	ListOwnerStudents(ctx context.Context, ownerID int64) ([]StoredStudent, error)
	// FindNearestStudents returns up to k active students of the classroom nearest to the probe
	// by Euclidean distance. Students without a usable encoding are never returned.
	FindNearestStudents(ctx context.Context, classroomID, ownerID int64, probe []float32, k int) ([]NearestStudent, error)
}

// RosterWriter provides write access to classrooms and students
type RosterWriter interface {
	RosterReader

	// CreateClassroom inserts a classroom and sets its ID
	CreateClassroom(ctx context.Context, classroom *StoredClassroom) error
	// CreateStudent inserts a student and sets its ID
	CreateStudent(ctx context.Context, student *StoredStudent) error
	// UpdateFaceEncoding replaces the stored encoding text of a student.
	// embedding is the canonical vector (nil clears any derived vector column).
	UpdateFaceEncoding(ctx context.Context, studentID int64, encoding string, embedding []float32) error
}

// DayTx is a transaction scoped to one classroom day. All reads and writes of a
// reconciliation go through it so the snapshot is read and written atomically.
type DayTx interface {
	// Students returns the active roster of the classroom ordered by id
	Students(ctx context.Context) ([]StoredStudent, error)
	// Statuses returns existing records for the date keyed by student id
	Statuses(ctx context.Context) (map[int64]StoredAttendance, error)
	// SaveStatuses upserts one record per student; unchanged statuses keep their timestamps
	SaveStatuses(ctx context.Context, records []StoredAttendance) error
	// RecordEvent appends an audit event
	RecordEvent(ctx context.Context, event *AttendanceEvent) error
}

// AttendanceReader provides read-only access to attendance history
type AttendanceReader interface {
	// StudentHistory returns a student's records in the range, newest first
	StudentHistory(ctx context.Context, studentID int64, r DateRange) ([]StoredAttendance, error)
	// ClassroomRange returns the classroom's records in the range, newest date first, then by name
	ClassroomRange(ctx context.Context, classroomID, ownerID int64, r DateRange) ([]StudentDayRecord, error)
	// ListEvents returns the audit events of a classroom day, oldest first
	ListEvents(ctx context.Context, key DayKey) ([]AttendanceEvent, error)
}

// AttendanceStore provides transactional access to attendance state
type AttendanceStore interface {
	AttendanceReader

	// WithinDay runs fn in one transaction holding the exclusive critical section
	// for the key. The transaction commits when fn returns nil and rolls back otherwise.
	WithinDay(ctx context.Context, key DayKey, fn func(tx DayTx) error) error
}
