package attendance

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// StudentSummary identifies a student in query results.
type StudentSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Roll  string `json:"roll_number"`
}

// HistoryRecord is one date of a student's history.
type HistoryRecord struct {
	Date      string          `json:"date"`
	Status    database.Status `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HistoryStats aggregates a student's history.
type HistoryStats struct {
	TotalRecords   int     `json:"total_records"`
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// StudentHistory is the attendance history of one student.
type StudentHistory struct {
	Student    StudentSummary  `json:"student"`
	Attendance []HistoryRecord `json:"attendance"`
	Stats      HistoryStats    `json:"stats"`
}

// StudentHistory returns a student's records in the range, newest first.
func (s *Service) StudentHistory(ctx context.Context, ownerID, studentID int64, r database.DateRange) (*StudentHistory, error) {
	student, err := s.roster.GetStudent(ctx, studentID, ownerID)
	if err != nil {
		return nil, classify(fmt.Errorf("get student: %w", err), database.DayKey{})
	}
	if student == nil {
		return nil, notFound("Student not found")
	}

	records, err := s.store.StudentHistory(ctx, studentID, r)
	if err != nil {
		return nil, classify(fmt.Errorf("student history: %w", err), database.DayKey{})
	}

	history := &StudentHistory{
		Student: StudentSummary{
			ID:    student.ID,
			Name:  student.Name,
			Email: student.Email,
			Roll:  student.RollNumber,
		},
		Attendance: make([]HistoryRecord, 0, len(records)),
	}
	for _, rec := range records {
		history.Attendance = append(history.Attendance, HistoryRecord{
			Date:      rec.Date.Format(database.DateLayout),
			Status:    rec.Status,
			UpdatedAt: rec.UpdatedAt,
		})
		if rec.Status == database.StatusPresent {
			history.Stats.Present++
		} else {
			history.Stats.Absent++
		}
	}
	history.Stats.TotalRecords = len(records)
	if len(records) > 0 {
		rate := float64(history.Stats.Present) / float64(len(records)) * 100
		history.Stats.AttendanceRate = math.Round(rate*100) / 100
	}
	return history, nil
}

// RangeStudent is one record in a range report.
type RangeStudent struct {
	StudentID    int64           `json:"student_id"`
	StudentName  string          `json:"student_name"`
	StudentEmail string          `json:"student_email"`
	StudentRoll  string          `json:"student_roll"`
	Status       database.Status `json:"status"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// DateGroup holds the records of one date.
type DateGroup struct {
	Date     string         `json:"date"`
	Students []RangeStudent `json:"students"`
}

// DateStats aggregates one date. Rates are whole percentages.
type DateStats struct {
	Date           string `json:"date"`
	Total          int    `json:"total"`
	Present        int    `json:"present"`
	Absent         int    `json:"absent"`
	AttendanceRate int    `json:"attendance_rate"`
}

// RangeStats aggregates a range report.
type RangeStats struct {
	TotalDays             int         `json:"total_days"`
	TotalRecords          int         `json:"total_records"`
	TotalPresent          int         `json:"total_present"`
	TotalAbsent           int         `json:"total_absent"`
	OverallAttendanceRate int         `json:"overall_attendance_rate"`
	DateWise              []DateStats `json:"date_wise_stats"`
}

// RangeReport is the attendance of a classroom over a date range.
type RangeReport struct {
	Classroom string      `json:"classroom"`
	StartDate string      `json:"start_date"`
	EndDate   string      `json:"end_date"`
	Days      []DateGroup `json:"data"`
	Stats     RangeStats  `json:"stats"`
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// RangeReport groups the classroom's records in the range by date, newest first.
func (s *Service) RangeReport(ctx context.Context, classroomID, ownerID int64, r database.DateRange) (*RangeReport, error) {
	if r.From.IsZero() || r.To.IsZero() {
		return nil, invalidInput("start and end dates are required")
	}
	if r.To.Before(r.From) {
		return nil, invalidInput("end date must not be before start date")
	}
	if days := int(r.To.Sub(r.From).Hours()/24) + 1; days > constants.MaxRangeDays {
		return nil, invalidInput("date range must not exceed %d days", constants.MaxRangeDays)
	}

	key := database.NewDayKey(classroomID, ownerID, r.From)
	classroom, err := s.requireClassroom(ctx, key)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ClassroomRange(ctx, classroomID, ownerID, r)
	if err != nil {
		return nil, classify(fmt.Errorf("classroom range: %w", err), key)
	}

	report := &RangeReport{
		Classroom: classroom.Name,
		StartDate: r.From.Format(database.DateLayout),
		EndDate:   r.To.Format(database.DateLayout),
		Days:      []DateGroup{},
		Stats:     RangeStats{DateWise: []DateStats{}},
	}

	index := make(map[string]int)
	for _, rec := range records {
		date := rec.Date.Format(database.DateLayout)
		i, ok := index[date]
		if !ok {
			i = len(report.Days)
			index[date] = i
			report.Days = append(report.Days, DateGroup{Date: date})
			report.Stats.DateWise = append(report.Stats.DateWise, DateStats{Date: date})
		}

		report.Days[i].Students = append(report.Days[i].Students, RangeStudent{
			StudentID:    rec.StudentID,
			StudentName:  rec.StudentName,
			StudentEmail: rec.StudentEmail,
			StudentRoll:  rec.StudentRoll,
			Status:       rec.Status,
			UpdatedAt:    rec.UpdatedAt,
		})

		stats := &report.Stats.DateWise[i]
		stats.Total++
		if rec.Status == database.StatusPresent {
			stats.Present++
			report.Stats.TotalPresent++
		} else {
			stats.Absent++
			report.Stats.TotalAbsent++
		}
	}

	for i := range report.Stats.DateWise {
		st := &report.Stats.DateWise[i]
		st.AttendanceRate = percent(st.Present, st.Total)
	}
	report.Stats.TotalDays = len(report.Days)
	report.Stats.TotalRecords = len(records)
	report.Stats.OverallAttendanceRate = percent(report.Stats.TotalPresent, len(records))
	return report, nil
}

// EncodingStatus describes the stored encoding of one student.
type EncodingStatus struct {
	StudentID       int64  `json:"student_id"`
	Name            string `json:"name"`
	Roll            string `json:"roll_number"`
	HasFaceEncoding bool   `json:"has_face_encoding"`
	EncodingLength  int    `json:"encoding_length"`
	EncodingValid   bool   `json:"encoding_valid"`
	EncodingFormat  string `json:"encoding_format"`
	Reason          string `json:"reason,omitempty"`
}

// EncodingReport summarizes the stored encodings of a classroom.
type EncodingReport struct {
	ClassroomID                int64            `json:"classroom_id"`
	ClassroomName              string           `json:"classroom_name"`
	TotalStudents              int              `json:"total_students"`
	StudentsWithEncodings      int              `json:"students_with_encodings"`
	StudentsWithValidEncodings int              `json:"students_with_valid_encodings"`
	Students                   []EncodingStatus `json:"students"`
}

// EncodingReport inspects every active student's stored encoding without
// modifying anything.
func (s *Service) EncodingReport(ctx context.Context, classroomID, ownerID int64) (*EncodingReport, error) {
	key := database.DayKey{ClassroomID: classroomID, OwnerID: ownerID}
	classroom, err := s.requireClassroom(ctx, key)
	if err != nil {
		return nil, err
	}

	students, err := s.roster.ListStudents(ctx, classroomID, ownerID)
	if err != nil {
		return nil, classify(fmt.Errorf("list students: %w", err), key)
	}

	report := &EncodingReport{
		ClassroomID:   classroom.ID,
		ClassroomName: classroom.Name,
		TotalStudents: len(students),
		Students:      make([]EncodingStatus, 0, len(students)),
	}
	for _, st := range students {
		status := EncodingStatus{StudentID: st.ID, Name: st.Name, Roll: st.RollNumber, EncodingFormat: "none"}
		if st.FaceEncoding != nil {
			status.HasFaceEncoding = true
			status.EncodingLength = len(*st.FaceEncoding)
			report.StudentsWithEncodings++

			n := facematch.Normalize(*st.FaceEncoding)
			status.EncodingFormat = n.Describe()
			if n.Valid() {
				status.EncodingValid = true
				report.StudentsWithValidEncodings++
			} else {
				status.Reason = n.Reason
			}
		}
		report.Students = append(report.Students, status)
	}
	return report, nil
}

// Migration statuses.
const (
	MigrationMigrated  = "migrated"
	MigrationUnchanged = "unchanged"
	MigrationSkipped   = "skipped"
	MigrationError     = "error"
)

// MigrationEntry is the migration result of one student.
type MigrationEntry struct {
	StudentID  int64  `json:"student_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	FromFormat string `json:"from_format,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// MigrationReport summarizes a MigrateEncodings run.
type MigrationReport struct {
	Message        string           `json:"message"`
	TotalStudents  int              `json:"total_students"`
	MigratedCount  int              `json:"migrated_count"`
	UnchangedCount int              `json:"unchanged_count"`
	SkippedCount   int              `json:"skipped_count"`
	ErrorCount     int              `json:"error_count"`
	Results        []MigrationEntry `json:"results"`
}

// MigrateEncodings rewrites every stored encoding of the owner into the
// canonical flat JSON form and refreshes the derived vector. Failures of single
// students are reported per entry and do not stop the run. progress, if not
// nil, is called once per student.
func (s *Service) MigrateEncodings(ctx context.Context, ownerID int64, progress func()) (*MigrationReport, error) {
	students, err := s.roster.ListOwnerStudents(ctx, ownerID)
	if err != nil {
		return nil, classify(fmt.Errorf("list students: %w", err), database.DayKey{})
	}

	report := &MigrationReport{TotalStudents: len(students), Results: make([]MigrationEntry, 0, len(students))}
	for _, st := range students {
		if err := ctx.Err(); err != nil {
			return nil, classify(err, database.DayKey{})
		}

		entry := s.migrateOne(ctx, st)
		switch entry.Status {
		case MigrationMigrated:
			report.MigratedCount++
		case MigrationUnchanged:
			report.UnchangedCount++
		case MigrationSkipped:
			report.SkippedCount++
		default:
			report.ErrorCount++
		}
		report.Results = append(report.Results, entry)

		if progress != nil {
			progress()
		}
	}

	report.Message = fmt.Sprintf("Migrated %d students to canonical JSON format", report.MigratedCount)
	log.Printf("Encoding migration for owner %d: %d migrated, %d unchanged, %d skipped, %d errors",
		ownerID, report.MigratedCount, report.UnchangedCount, report.SkippedCount, report.ErrorCount)
	return report, nil
}

func (s *Service) migrateOne(ctx context.Context, st database.StoredStudent) MigrationEntry {
	entry := MigrationEntry{StudentID: st.ID, Name: st.Name}
	if st.FaceEncoding == nil || strings.TrimSpace(*st.FaceEncoding) == "" {
		entry.Status = MigrationSkipped
		entry.Reason = "No encoding"
		return entry
	}

	n := facematch.Normalize(*st.FaceEncoding)
	if !n.Valid() {
		entry.Status = MigrationError
		entry.Reason = "Could not extract valid encoding: " + n.Reason
		return entry
	}
	entry.FromFormat = n.Describe()

	canonical := n.Embedding.Canonical()
	if canonical == "" {
		entry.Status = MigrationError
		entry.Reason = "Encoding contains non-finite values"
		return entry
	}

	if err := s.roster.UpdateFaceEncoding(ctx, st.ID, canonical, n.Embedding.Float32()); err != nil {
		log.Printf("Error migrating encoding for student %d: %v", st.ID, err)
		entry.Status = MigrationError
		entry.Reason = err.Error()
		return entry
	}

	if canonical == *st.FaceEncoding {
		entry.Status = MigrationUnchanged
	} else {
		entry.Status = MigrationMigrated
	}
	return entry
}

// Candidate is a student near a probe.
type Candidate struct {
	StudentID       int64   `json:"student_id"`
	StudentName     string  `json:"student_name"`
	StudentRoll     string  `json:"student_roll"`
	Distance        float64 `json:"distance"`
	Confidence      float64 `json:"confidence"`
	WithinTolerance bool    `json:"within_tolerance"`
}

// IdentifyReport lists the nearest students to a probe.
type IdentifyReport struct {
	Tolerance  float64     `json:"tolerance"`
	Candidates []Candidate `json:"candidates"`
	BestMatch  *Candidate  `json:"best_match,omitempty"`
}

// Identify returns up to k active students of the classroom nearest to the
// probe. Nothing is written.
func (s *Service) Identify(ctx context.Context, classroomID, ownerID int64, probe facematch.Embedding, k int) (*IdentifyReport, error) {
	if k <= 0 {
		k = constants.DefaultIdentifyK
	}
	k = min(k, constants.MaxIdentifyK)

	key := database.DayKey{ClassroomID: classroomID, OwnerID: ownerID}
	if _, err := s.requireClassroom(ctx, key); err != nil {
		return nil, err
	}

	nearest, err := s.roster.FindNearestStudents(ctx, classroomID, ownerID, probe.Float32(), k)
	if err != nil {
		return nil, classify(fmt.Errorf("find nearest students: %w", err), key)
	}

	report := &IdentifyReport{Tolerance: s.matcher.Tolerance, Candidates: make([]Candidate, 0, len(nearest))}
	for _, n := range nearest {
		report.Candidates = append(report.Candidates, Candidate{
			StudentID:       n.Student.ID,
			StudentName:     n.Student.Name,
			StudentRoll:     n.Student.RollNumber,
			Distance:        n.Distance,
			Confidence:      facematch.Confidence(n.Distance),
			WithinTolerance: n.Distance < s.matcher.Tolerance,
		})
	}
	if len(report.Candidates) > 0 && report.Candidates[0].WithinTolerance {
		best := report.Candidates[0]
		report.BestMatch = &best
	}
	return report, nil
}

// Event is an audit record of one write.
type Event struct {
	CaptureID     string             `json:"capture_id"`
	Date          string             `json:"date"`
	Kind          database.EventKind `json:"kind"`
	FacesDetected int                `json:"faces_detected"`
	FacesMatched  int                `json:"faces_matched"`
	PresentCount  int                `json:"present_count"`
	AbsentCount   int                `json:"absent_count"`
	Reason        string             `json:"reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Events lists the writes made to a classroom day, oldest first.
func (s *Service) Events(ctx context.Context, key database.DayKey) ([]Event, error) {
	if _, err := s.requireClassroom(ctx, key); err != nil {
		return nil, err
	}

	stored, err := s.store.ListEvents(ctx, key)
	if err != nil {
		return nil, classify(fmt.Errorf("list events: %w", err), key)
	}

	events := make([]Event, 0, len(stored))
	for _, e := range stored {
		events = append(events, Event{
			CaptureID:     e.CaptureID.String(),
			Date:          e.Date.Format(database.DateLayout),
			Kind:          e.Kind,
			FacesDetected: e.FacesDetected,
			FacesMatched:  e.FacesMatched,
			PresentCount:  e.PresentCount,
			AbsentCount:   e.AbsentCount,
			Reason:        e.Reason,
			CreatedAt:     e.CreatedAt,
		})
	}
	return events, nil
}
