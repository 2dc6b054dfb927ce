package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire and storage format for attendance dates.
const DateLayout = "2006-01-02"

// Status is the attendance status of a student for one date.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// StoredClassroom represents a classroom owned by a teacher account
type StoredClassroom struct {
	ID          int64
	OwnerID     int64
	Name        string
	Description string
	Subject     string
	GradeLevel  string
	CreatedAt   time.Time
}

// StoredStudent represents an enrolled student with their stored face encoding
type StoredStudent struct {
	ID          int64
	ClassroomID int64
	OwnerID     int64
	Name        string
	Email       string
	RollNumber  string
	// FaceEncoding is the encoding exactly as persisted (nil when none was enrolled).
	// Historical producers wrote several shapes; see facematch.Normalize.
	FaceEncoding *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StoredAttendance is the status of one student on one date
type StoredAttendance struct {
	ID          int64
	StudentID   int64
	ClassroomID int64
	OwnerID     int64
	Date        time.Time
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StudentDayRecord is an attendance record joined with the student's name
type StudentDayRecord struct {
	StudentID    int64
	StudentName  string
	StudentEmail string
	StudentRoll  string
	Date         time.Time
	Status       Status
	UpdatedAt    time.Time
}

// NearestStudent is a roster entry together with its distance to a probe
type NearestStudent struct {
	Student  StoredStudent
	Distance float64
}

// EventKind identifies which operation wrote an attendance snapshot.
type EventKind string

const (
	EventReconcile   EventKind = "reconcile"
	EventManual      EventKind = "manual"
	EventForceAbsent EventKind = "force_absent"
)

// AttendanceEvent is the audit record of one write to a classroom's day
type AttendanceEvent struct {
	CaptureID     uuid.UUID
	ClassroomID   int64
	OwnerID       int64
	Date          time.Time
	Kind          EventKind
	FacesDetected int
	FacesMatched  int
	PresentCount  int
	AbsentCount   int
	Reason        string
	CreatedAt     time.Time
}

// DayKey addresses one classroom's attendance for one date.
type DayKey struct {
	ClassroomID int64
	OwnerID     int64
	Date        time.Time
}

// NewDayKey builds a key with the date truncated to midnight UTC.
func NewDayKey(classroomID, ownerID int64, date time.Time) DayKey {
	y, m, d := date.Date()
	return DayKey{
		ClassroomID: classroomID,
		OwnerID:     ownerID,
		Date:        time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}
}

// DateString returns the date in DateLayout.
func (k DayKey) DateString() string {
	return k.Date.Format(DateLayout)
}

// LockKey identifies the critical section of this key. Owner is not part of it:
// a classroom belongs to exactly one owner.
func (k DayKey) LockKey() string {
	return fmt.Sprintf("%d/%s", k.ClassroomID, k.DateString())
}

// DateNumber returns the date as yyyymmdd, used for advisory lock keys.
func (k DayKey) DateNumber() int32 {
	y, m, d := k.Date.Date()
	return int32(y*10000 + int(m)*100 + d) //nolint:gosec // years are 4 digits
}

func (k DayKey) String() string {
	return fmt.Sprintf("classroom=%d owner=%d date=%s", k.ClassroomID, k.OwnerID, k.DateString())
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DateRange is an inclusive date range; zero bounds are open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}
