package attendance

import (
	"testing"
	"time"

	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mock"
	"github.com/kozaktomas/attendance/internal/facematch"
)

const testOwner int64 = 7

var testDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// face returns an embedding that is at distance >= 1 from every other face.
func face(n int) facematch.Embedding {
	var e facematch.Embedding
	e[n%len(e)] = 1
	e[(n+1)%len(e)] = 0.5
	return e
}

// near returns e moved by delta along one axis.
func near(e facematch.Embedding, delta float64) facematch.Embedding {
	e[len(e)-1] += delta
	return e
}

func enc(e facematch.Embedding) *string {
	s := e.Canonical()
	return &s
}

func strPtr(s string) *string {
	return &s
}

func probes(embeddings ...facematch.Embedding) Capture {
	return Capture{FacesDetected: len(embeddings), Probes: facematch.ProbeSet{Probes: embeddings}}
}

type fixture struct {
	roster    *mock.MockRoster
	store     *mock.MockAttendanceStore
	svc       *Service
	classroom int64
	key       database.DayKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	roster := mock.NewMockRoster()
	store := mock.NewMockAttendanceStore(roster)
	classroom := roster.AddClassroom(database.StoredClassroom{OwnerID: testOwner, Name: "Physics 101"})

	cfg := config.Defaults().Matching
	return &fixture{
		roster:    roster,
		store:     store,
		svc:       NewService(roster, store, &cfg),
		classroom: classroom,
		key:       database.NewDayKey(classroom, testOwner, testDate),
	}
}

func (f *fixture) addStudent(name string, encoding *string) int64 {
	return f.roster.AddStudent(database.StoredStudent{
		ClassroomID:  f.classroom,
		OwnerID:      testOwner,
		Name:         name,
		RollNumber:   "R-" + name,
		Email:        name + "@school.test",
		FaceEncoding: encoding,
		Active:       true,
	})
}

func (f *fixture) status(studentID int64) (database.Status, bool) {
	rec, ok := f.store.Record(studentID, testDate)
	return rec.Status, ok
}

func ids(results []StudentResult) []int64 {
	out := make([]int64, 0, len(results))
	for _, r := range results {
		out = append(out, r.StudentID)
	}
	return out
}
