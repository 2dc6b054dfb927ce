package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/attendance/internal/database"
)

func testRoster() []RosterEntry {
	return []RosterEntry{
		{StudentID: 1, Name: "Ana", HasEmbedding: true, Embedding: face(0)},
		{StudentID: 2, Name: "Ben", HasEmbedding: true, Embedding: face(10)},
		{StudentID: 3, Name: "Cid"},
	}
}

func TestReconcile_MatchedAndPrior(t *testing.T) {
	prior := map[int64]database.Status{1: database.StatusPresent, 2: database.StatusAbsent}
	out := Reconcile(testRoster(), prior, map[int64]bool{2: true})

	assert.Equal(t, []int64{1, 2}, ids(out.Present))
	assert.Equal(t, []int64{3}, ids(out.Absent))
	assert.Equal(t, []int64{2}, ids(out.NewlyMarkedPresent))
	assert.Equal(t, []int64{1}, ids(out.PreviouslyPresent))

	assert.Equal(t, PreviouslyPresent, out.Present[0].AttendanceType)
	assert.Equal(t, NewlyMarkedPresent, out.Present[1].AttendanceType)
	assert.Empty(t, out.NewlyMarkedPresent[0].AttendanceType)
}

func TestReconcile_PresentNeverRegresses(t *testing.T) {
	prior := map[int64]database.Status{1: database.StatusPresent, 2: database.StatusPresent, 3: database.StatusPresent}
	out := Reconcile(testRoster(), prior, nil)

	assert.Len(t, out.Present, 3)
	assert.Empty(t, out.Absent)
	assert.Empty(t, out.NewlyMarkedPresent)
	for _, id := range []int64{1, 2, 3} {
		assert.Equal(t, database.StatusPresent, out.Statuses[id])
	}
}

func TestReconcile_MatchOfPresentStudentIsNotNew(t *testing.T) {
	prior := map[int64]database.Status{1: database.StatusPresent}
	out := Reconcile(testRoster(), prior, map[int64]bool{1: true})

	assert.Empty(t, out.NewlyMarkedPresent)
	assert.Equal(t, []int64{1}, ids(out.PreviouslyPresent))
}

func TestReconcile_Idempotent(t *testing.T) {
	roster := testRoster()
	first := Reconcile(roster, nil, map[int64]bool{1: true})
	second := Reconcile(roster, first.Statuses, map[int64]bool{1: true})

	assert.Equal(t, first.Statuses, second.Statuses)
	assert.Equal(t, ids(first.Present), ids(second.Present))
	assert.Equal(t, ids(first.Absent), ids(second.Absent))
	assert.Empty(t, second.NewlyMarkedPresent)
}

func TestReconcile_FullCoverage(t *testing.T) {
	roster := testRoster()
	out := Reconcile(roster, map[int64]database.Status{99: database.StatusPresent}, map[int64]bool{3: true, 42: true})

	require.Len(t, out.Statuses, len(roster))
	assert.Equal(t, len(roster), len(out.Present)+len(out.Absent))
	assert.Equal(t, len(out.Present), len(out.NewlyMarkedPresent)+len(out.PreviouslyPresent))
	assert.NotContains(t, out.Statuses, int64(99))
	assert.NotContains(t, out.Statuses, int64(42))
}

func TestReconcile_EmptyRoster(t *testing.T) {
	out := Reconcile(nil, nil, map[int64]bool{1: true})

	assert.NotNil(t, out.Present)
	assert.NotNil(t, out.Absent)
	assert.Empty(t, out.Present)
	assert.Empty(t, out.Statuses)
}

func TestAbsentOutcome(t *testing.T) {
	out := AbsentOutcome(testRoster())

	assert.Empty(t, out.Present)
	assert.Equal(t, []int64{1, 2, 3}, ids(out.Absent))
	for _, status := range out.Statuses {
		assert.Equal(t, database.StatusAbsent, status)
	}
}

func TestSnapshot(t *testing.T) {
	key := database.NewDayKey(5, testOwner, testDate)
	roster := testRoster()
	out := Reconcile(roster, nil, map[int64]bool{2: true})

	records := snapshot(key, roster, out)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, int64(5), rec.ClassroomID)
		assert.Equal(t, testOwner, rec.OwnerID)
		assert.True(t, rec.Date.Equal(testDate))
	}
	assert.Equal(t, database.StatusAbsent, records[0].Status)
	assert.Equal(t, database.StatusPresent, records[1].Status)
}

func TestBuildRoster(t *testing.T) {
	students := []database.StoredStudent{
		{ID: 1, Name: "Ana", FaceEncoding: enc(face(0))},
		{ID: 2, Name: "Ben"},
		{ID: 3, Name: "Cid", FaceEncoding: strPtr("")},
		{ID: 4, Name: "Dee", FaceEncoding: strPtr("[1, 2, 3]")},
		{ID: 5, Name: "Eve", FaceEncoding: strPtr("[" + face(3).Canonical() + "]")},
	}

	roster, invalid := BuildRoster(students)

	require.Len(t, roster, 5)
	assert.True(t, roster[0].HasEmbedding)
	assert.False(t, roster[1].HasEmbedding)
	assert.False(t, roster[2].HasEmbedding)
	assert.False(t, roster[3].HasEmbedding)
	assert.True(t, roster[4].HasEmbedding)
	assert.Equal(t, face(3), roster[4].Embedding)

	require.Len(t, invalid, 2)
	assert.Equal(t, int64(3), invalid[0].StudentID)
	assert.Equal(t, int64(4), invalid[1].StudentID)
}
