package attendance

import (
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// AttendanceType tells how a present student became present.
type AttendanceType string

const (
	NewlyMarkedPresent AttendanceType = "newly_marked_present"
	PreviouslyPresent  AttendanceType = "previously_present"
)

// RosterEntry is a student prepared for matching.
type RosterEntry struct {
	StudentID int64
	Name      string
	Roll      string
	// HasEmbedding is false when the stored encoding is missing or invalid;
	// such entries never match but are still reconciled.
	HasEmbedding bool
	Embedding    facematch.Embedding
}

// StudentResult is one student in an outcome list.
type StudentResult struct {
	StudentID      int64          `json:"student_id"`
	StudentName    string         `json:"student_name"`
	StudentRoll    string         `json:"student_roll"`
	AttendanceType AttendanceType `json:"attendance_type,omitempty"`
}

// Outcome is the per-classroom-day projection of a reconciliation.
// Present is the union of NewlyMarkedPresent and PreviouslyPresent; every
// roster entry appears in exactly one of Present or Absent.
type Outcome struct {
	Present            []StudentResult `json:"present"`
	Absent             []StudentResult `json:"absent"`
	NewlyMarkedPresent []StudentResult `json:"newly_marked_present"`
	PreviouslyPresent  []StudentResult `json:"previously_present"`

	// Statuses is the resulting status of every roster entry.
	Statuses map[int64]database.Status `json:"-"`
}

// FaceDetection summarizes the capture that drove a reconciliation.
type FaceDetection struct {
	TotalFacesDetected int `json:"total_faces_detected"`
	ProbesDecoded      int `json:"probes_decoded"`
	ProbesRejected     int `json:"probes_rejected"`
	FacesMatched       int `json:"faces_matched"`
}

// Match is a resolved probe with the student it matched.
type Match struct {
	StudentID   int64   `json:"student_id"`
	StudentName string  `json:"student_name"`
	StudentRoll string  `json:"student_roll"`
	FaceIndex   int     `json:"face_index"`
	Distance    float64 `json:"distance"`
	Confidence  float64 `json:"confidence"`
}

// InvalidEncoding reports a roster entry excluded from matching.
type InvalidEncoding struct {
	StudentID int64  `json:"student_id"`
	Reason    string `json:"reason"`
}

// Report is the result of every attendance operation.
type Report struct {
	CaptureID string  `json:"capture_id,omitempty"`
	Date      string  `json:"attendance_date"`
	Message   string  `json:"message"`
	Results   Outcome `json:"results"`
	// Fallback is true when no reconciliation happened and Results is the prior state.
	Fallback         bool              `json:"fallback"`
	Reason           string            `json:"reason,omitempty"`
	FaceDetection    *FaceDetection    `json:"face_detection,omitempty"`
	Matches          []Match           `json:"matches,omitempty"`
	InvalidEncodings []InvalidEncoding `json:"invalid_encodings,omitempty"`
}

// Capture is the probe evidence extracted from one image.
type Capture struct {
	// FacesDetected is the number of faces the detector found.
	FacesDetected int
	Probes        facematch.ProbeSet
}

// DayEntry is one student's status on a date.
type DayEntry struct {
	StudentID    int64           `json:"student_id"`
	StudentName  string          `json:"student_name"`
	StudentEmail string          `json:"student_email"`
	StudentRoll  string          `json:"student_roll"`
	Status       database.Status `json:"status"`
	MarkedAt     *time.Time      `json:"marked_at"`
}

// DayAttendance lists every active student of a classroom with their status on a date.
type DayAttendance struct {
	Classroom  string     `json:"classroom"`
	Date       string     `json:"date"`
	Attendance []DayEntry `json:"attendance"`
}
