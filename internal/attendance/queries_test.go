package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/attendance/internal/database"
)

func (f *fixture) seed(studentID int64, date time.Time, status database.Status) {
	f.store.AddRecord(database.StoredAttendance{
		StudentID:   studentID,
		ClassroomID: f.classroom,
		OwnerID:     testOwner,
		Date:        date,
		Status:      status,
	})
}

func day(n int) time.Time {
	return testDate.AddDate(0, 0, n)
}

func TestService_StudentHistory(t *testing.T) {
	f := newFixture(t)
	ana := f.addStudent("ana", nil)
	f.seed(ana, day(0), database.StatusPresent)
	f.seed(ana, day(1), database.StatusAbsent)
	f.seed(ana, day(2), database.StatusPresent)

	history, err := f.svc.StudentHistory(context.Background(), testOwner, ana, database.DateRange{})
	require.NoError(t, err)

	assert.Equal(t, "ana", history.Student.Name)
	require.Len(t, history.Attendance, 3)
	assert.Equal(t, "2026-03-04", history.Attendance[0].Date)
	assert.Equal(t, 3, history.Stats.TotalRecords)
	assert.Equal(t, 2, history.Stats.Present)
	assert.Equal(t, 1, history.Stats.Absent)
	assert.InDelta(t, 66.67, history.Stats.AttendanceRate, 1e-9)
}

func TestService_StudentHistory_Range(t *testing.T) {
	f := newFixture(t)
	ana := f.addStudent("ana", nil)
	f.seed(ana, day(0), database.StatusPresent)
	f.seed(ana, day(5), database.StatusPresent)

	history, err := f.svc.StudentHistory(context.Background(), testOwner, ana, database.DateRange{From: day(3)})
	require.NoError(t, err)
	require.Len(t, history.Attendance, 1)
	assert.InDelta(t, 100.0, history.Stats.AttendanceRate, 1e-9)
}

func TestService_StudentHistory_Empty(t *testing.T) {
	f := newFixture(t)
	ana := f.addStudent("ana", nil)

	history, err := f.svc.StudentHistory(context.Background(), testOwner, ana, database.DateRange{})
	require.NoError(t, err)
	assert.NotNil(t, history.Attendance)
	assert.Zero(t, history.Stats.AttendanceRate)
}

func TestService_StudentHistory_OtherOwner(t *testing.T) {
	f := newFixture(t)
	ana := f.addStudent("ana", nil)

	_, err := f.svc.StudentHistory(context.Background(), testOwner+1, ana, database.DateRange{})
	assert.True(t, IsNotFound(err))
}

func TestService_RangeReport(t *testing.T) {
	f := newFixture(t)
	ana := f.addStudent("ana", nil)
	ben := f.addStudent("ben", nil)
	cid := f.addStudent("cid", nil)
	f.seed(ana, day(0), database.StatusPresent)
	f.seed(ben, day(0), database.StatusAbsent)
	f.seed(cid, day(0), database.StatusAbsent)
	f.seed(ana, day(1), database.StatusPresent)
	f.seed(ben, day(1), database.StatusPresent)
	f.seed(ana, day(9), database.StatusPresent)

	report, err := f.svc.RangeReport(context.Background(), f.classroom, testOwner, database.DateRange{From: day(0), To: day(1)})
	require.NoError(t, err)

	assert.Equal(t, "Physics 101", report.Classroom)
	assert.Equal(t, "2026-03-02", report.StartDate)
	assert.Equal(t, "2026-03-03", report.EndDate)
	require.Len(t, report.Days, 2)
	assert.Equal(t, "2026-03-03", report.Days[0].Date)
	assert.Len(t, report.Days[0].Students, 2)
	assert.Equal(t, "ana", report.Days[1].Students[0].StudentName)

	assert.Equal(t, 2, report.Stats.TotalDays)
	assert.Equal(t, 5, report.Stats.TotalRecords)
	assert.Equal(t, 3, report.Stats.TotalPresent)
	assert.Equal(t, 2, report.Stats.TotalAbsent)
	assert.Equal(t, 60, report.Stats.OverallAttendanceRate)
	assert.Equal(t, 100, report.Stats.DateWise[0].AttendanceRate)
	assert.Equal(t, 33, report.Stats.DateWise[1].AttendanceRate)
}

func TestService_RangeReport_InvalidRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		r    database.DateRange
	}{
		{"missing start", database.DateRange{To: day(1)}},
		{"missing end", database.DateRange{From: day(1)}},
		{"reversed", database.DateRange{From: day(2), To: day(1)}},
		{"too long", database.DateRange{From: day(0), To: day(400)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RangeReport(ctx, f.classroom, testOwner, tt.r)
			assert.True(t, IsInvalidInput(err))
		})
	}
}

func TestService_EncodingReport(t *testing.T) {
	f := newFixture(t)
	f.addStudent("ana", enc(face(0)))
	f.addStudent("ben", strPtr("["+face(1).Canonical()+"]"))
	f.addStudent("cid", strPtr("not json"))
	f.addStudent("dee", nil)

	report, err := f.svc.EncodingReport(context.Background(), f.classroom, testOwner)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalStudents)
	assert.Equal(t, 3, report.StudentsWithEncodings)
	assert.Equal(t, 2, report.StudentsWithValidEncodings)
	require.Len(t, report.Students, 4)
	assert.Equal(t, "json_text/flat", report.Students[0].EncodingFormat)
	assert.Equal(t, "json_text/nested", report.Students[1].EncodingFormat)
	assert.Equal(t, "invalid", report.Students[2].EncodingFormat)
	assert.NotEmpty(t, report.Students[2].Reason)
	assert.Equal(t, "none", report.Students[3].EncodingFormat)
	assert.False(t, report.Students[3].HasFaceEncoding)
}

func TestService_MigrateEncodings(t *testing.T) {
	f := newFixture(t)
	canonical := f.addStudent("ana", enc(face(0)))
	nested := f.addStudent("ben", strPtr("["+face(1).Canonical()+"]"))
	broken := f.addStudent("cid", strPtr("[1,2,3]"))
	empty := f.addStudent("dee", strPtr("  "))
	failing := f.addStudent("eve", strPtr("["+face(2).Canonical()+"]"))
	f.roster.UpdateEncodingErrors[failing] = errors.New("read-only replica")

	calls := 0
	report, err := f.svc.MigrateEncodings(context.Background(), testOwner, func() { calls++ })
	require.NoError(t, err)

	assert.Equal(t, 5, calls)
	assert.Equal(t, 5, report.TotalStudents)
	assert.Equal(t, 1, report.MigratedCount)
	assert.Equal(t, 1, report.UnchangedCount)
	assert.Equal(t, 1, report.SkippedCount)
	assert.Equal(t, 2, report.ErrorCount)
	assert.Equal(t, "Migrated 1 students to canonical JSON format", report.Message)

	byID := make(map[int64]MigrationEntry)
	for _, e := range report.Results {
		byID[e.StudentID] = e
	}
	assert.Equal(t, MigrationUnchanged, byID[canonical].Status)
	assert.Equal(t, MigrationMigrated, byID[nested].Status)
	assert.Equal(t, "json_text/nested", byID[nested].FromFormat)
	assert.Equal(t, MigrationError, byID[broken].Status)
	assert.Equal(t, MigrationSkipped, byID[empty].Status)
	assert.Equal(t, "read-only replica", byID[failing].Reason)

	assert.Equal(t, face(1).Canonical(), *f.roster.Encoding(nested))
	assert.Equal(t, "[1,2,3]", *f.roster.Encoding(broken))
}

func TestService_MigrateEncodings_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.addStudent("ana", strPtr("["+face(1).Canonical()+"]"))
	ctx := context.Background()

	_, err := f.svc.MigrateEncodings(ctx, testOwner, nil)
	require.NoError(t, err)
	report, err := f.svc.MigrateEncodings(ctx, testOwner, nil)
	require.NoError(t, err)

	assert.Zero(t, report.MigratedCount)
	assert.Equal(t, 1, report.UnchangedCount)
}

func TestService_Identify(t *testing.T) {
	f := newFixture(t)
	ana := f.addStudent("ana", enc(face(0)))
	ben := f.addStudent("ben", enc(face(10)))
	f.addStudent("cid", nil)

	report, err := f.svc.Identify(context.Background(), f.classroom, testOwner, near(face(0), 0.2), 0)
	require.NoError(t, err)

	assert.InDelta(t, 0.6, report.Tolerance, 1e-9)
	require.Len(t, report.Candidates, 2)
	assert.Equal(t, ana, report.Candidates[0].StudentID)
	assert.True(t, report.Candidates[0].WithinTolerance)
	assert.InDelta(t, 0.8, report.Candidates[0].Confidence, 1e-6)
	assert.Equal(t, ben, report.Candidates[1].StudentID)
	assert.False(t, report.Candidates[1].WithinTolerance)
	require.NotNil(t, report.BestMatch)
	assert.Equal(t, ana, report.BestMatch.StudentID)
}

func TestService_Identify_NoMatch(t *testing.T) {
	f := newFixture(t)
	f.addStudent("ana", enc(face(0)))

	report, err := f.svc.Identify(context.Background(), f.classroom, testOwner, face(40), 1)
	require.NoError(t, err)
	require.Len(t, report.Candidates, 1)
	assert.Nil(t, report.BestMatch)
}

func TestService_Events(t *testing.T) {
	f := newFixture(t)
	f.addStudent("ana", enc(face(0)))
	ctx := context.Background()

	first, err := f.svc.Reconcile(ctx, f.key, probes(face(0)))
	require.NoError(t, err)
	_, err = f.svc.ForceAbsent(ctx, f.key, "Fire drill")
	require.NoError(t, err)

	events, err := f.svc.Events(ctx, f.key)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.CaptureID, events[0].CaptureID)
	assert.Equal(t, database.EventReconcile, events[0].Kind)
	assert.Equal(t, 1, events[0].FacesMatched)
	assert.Equal(t, database.EventForceAbsent, events[1].Kind)
	assert.Equal(t, "Fire drill", events[1].Reason)

	other, err := f.svc.Events(ctx, database.NewDayKey(f.classroom, testOwner, day(1)))
	require.NoError(t, err)
	assert.Empty(t, other)
}
