package attendance

import (
	"github.com/kozaktomas/attendance/internal/database"
)

func newOutcome(size int) Outcome {
	return Outcome{
		Present:            []StudentResult{},
		Absent:             []StudentResult{},
		NewlyMarkedPresent: []StudentResult{},
		PreviouslyPresent:  []StudentResult{},
		Statuses:           make(map[int64]database.Status, size),
	}
}

func resultFor(e RosterEntry) StudentResult {
	return StudentResult{StudentID: e.StudentID, StudentName: e.Name, StudentRoll: e.Roll}
}

// Reconcile merges the prior state of a date with newly matched students.
//
// Every roster entry is evaluated: it is present if it was present before or
// was matched now, and absent otherwise. Present never regresses, and calling
// Reconcile again with the same inputs yields the same outcome.
func Reconcile(roster []RosterEntry, prior map[int64]database.Status, matched map[int64]bool) Outcome {
	out := newOutcome(len(roster))

	for _, e := range roster {
		res := resultFor(e)
		wasPresent := prior[e.StudentID] == database.StatusPresent

		if !wasPresent && !matched[e.StudentID] {
			out.Statuses[e.StudentID] = database.StatusAbsent
			out.Absent = append(out.Absent, res)
			continue
		}

		out.Statuses[e.StudentID] = database.StatusPresent
		if wasPresent {
			out.PreviouslyPresent = append(out.PreviouslyPresent, res)
			res.AttendanceType = PreviouslyPresent
		} else {
			out.NewlyMarkedPresent = append(out.NewlyMarkedPresent, res)
			res.AttendanceType = NewlyMarkedPresent
		}
		out.Present = append(out.Present, res)
	}

	return out
}

// CurrentOutcome projects the prior state without any new evidence.
func CurrentOutcome(roster []RosterEntry, prior map[int64]database.Status) Outcome {
	return Reconcile(roster, prior, nil)
}

// AbsentOutcome marks every roster entry absent regardless of prior state.
func AbsentOutcome(roster []RosterEntry) Outcome {
	out := newOutcome(len(roster))
	for _, e := range roster {
		out.Statuses[e.StudentID] = database.StatusAbsent
		out.Absent = append(out.Absent, resultFor(e))
	}
	return out
}

// priorStatuses reduces stored records to their statuses.
func priorStatuses(records map[int64]database.StoredAttendance) map[int64]database.Status {
	prior := make(map[int64]database.Status, len(records))
	for id, rec := range records {
		prior[id] = rec.Status
	}
	return prior
}

// snapshot turns an outcome into one record per roster entry for the key.
func snapshot(key database.DayKey, roster []RosterEntry, out Outcome) []database.StoredAttendance {
	records := make([]database.StoredAttendance, 0, len(roster))
	for _, e := range roster {
		records = append(records, database.StoredAttendance{
			StudentID:   e.StudentID,
			ClassroomID: key.ClassroomID,
			OwnerID:     key.OwnerID,
			Date:        key.Date,
			Status:      out.Statuses[e.StudentID],
		})
	}
	return records
}
