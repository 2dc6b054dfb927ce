package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// Service reconciles classroom attendance from face evidence.
//
// Writes for the same classroom day are serialized twice: in-process by a
// keyed mutex and in storage by the backend's WithinDay critical section.
// Writes for different classrooms or dates run in parallel.
type Service struct {
	roster  database.RosterWriter
	store   database.AttendanceStore
	matcher *facematch.Matcher
	locks   *KeyedMutex
	retries int
	reasons config.ReasonsConfig
	now     func() time.Time
}

// NewService creates a service over the given repositories.
func NewService(roster database.RosterWriter, store database.AttendanceStore, cfg *config.MatchingConfig) *Service {
	if cfg.Degenerate() {
		log.Printf("Warning: match tolerance %v is outside (0, 2], matching is degenerate", cfg.Tolerance)
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = constants.DefaultReconcileRetries
	}
	return &Service{
		roster:  roster,
		store:   store,
		matcher: facematch.NewMatcher(cfg.Tolerance),
		locks:   NewKeyedMutex(),
		retries: retries,
		reasons: cfg.Reasons,
		now:     time.Now,
	}
}

// Tolerance returns the match tolerance in use.
func (s *Service) Tolerance() float64 {
	return s.matcher.Tolerance
}

// BuildRoster prepares stored students for matching. Students without an
// encoding stay in the roster without an embedding; students whose encoding
// does not normalize are logged and reported, and likewise never match.
func BuildRoster(students []database.StoredStudent) ([]RosterEntry, []InvalidEncoding) {
	roster := make([]RosterEntry, 0, len(students))
	var invalid []InvalidEncoding

	for _, st := range students {
		entry := RosterEntry{StudentID: st.ID, Name: st.Name, Roll: st.RollNumber}
		if st.FaceEncoding != nil {
			n := facematch.Normalize(*st.FaceEncoding)
			if n.Valid() {
				entry.HasEmbedding = true
				entry.Embedding = n.Embedding
			} else {
				log.Printf("Invalid face encoding for student %d: %s", st.ID, n.Reason)
				invalid = append(invalid, InvalidEncoding{StudentID: st.ID, Reason: n.Reason})
			}
		}
		roster = append(roster, entry)
	}
	return roster, invalid
}

// knownEmbeddings returns the matchable embeddings in roster order together
// with the entries they belong to.
func knownEmbeddings(roster []RosterEntry) ([]facematch.Embedding, []RosterEntry) {
	var known []facematch.Embedding
	var owners []RosterEntry
	for _, e := range roster {
		if e.HasEmbedding {
			known = append(known, e.Embedding)
			owners = append(owners, e)
		}
	}
	return known, owners
}

func (s *Service) requireClassroom(ctx context.Context, key database.DayKey) (*database.StoredClassroom, error) {
	classroom, err := s.roster.GetClassroom(ctx, key.ClassroomID, key.OwnerID)
	if err != nil {
		return nil, classify(fmt.Errorf("get classroom: %w", err), key)
	}
	if classroom == nil {
		return nil, notFound("Classroom not found")
	}
	return classroom, nil
}

func (s *Service) loadDay(ctx context.Context, tx database.DayTx) ([]RosterEntry, []InvalidEncoding, map[int64]database.StoredAttendance, error) {
	students, err := tx.Students(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load roster: %w", err)
	}
	records, err := tx.Statuses(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load attendance: %w", err)
	}
	roster, invalid := BuildRoster(students)
	return roster, invalid, records, nil
}

// write runs fn as one exclusive transaction for the key, retrying on
// concurrent modification.
func (s *Service) write(ctx context.Context, key database.DayKey, fn func(tx database.DayTx) error) error {
	unlock := s.locks.Lock(key.LockKey())
	defer unlock()

	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		err = s.store.WithinDay(ctx, key, fn)
		if err == nil || !errors.Is(err, database.ErrConcurrentModification) || attempt == s.retries {
			break
		}

		log.Printf("Concurrent modification on %s (attempt %d/%d), retrying", key, attempt, s.retries)
		select {
		case <-ctx.Done():
			return classify(ctx.Err(), key)
		case <-time.After(time.Duration(attempt) * constants.RetryBackoff):
		}
	}
	return classify(err, key)
}

func (s *Service) read(ctx context.Context, key database.DayKey, fn func(tx database.DayTx) error) error {
	return classify(s.store.WithinDay(ctx, key, fn), key)
}

func (s *Service) newEvent(key database.DayKey, kind database.EventKind, out Outcome) *database.AttendanceEvent {
	return &database.AttendanceEvent{
		CaptureID:    uuid.New(),
		ClassroomID:  key.ClassroomID,
		OwnerID:      key.OwnerID,
		Date:         key.Date,
		Kind:         kind,
		PresentCount: len(out.Present),
		AbsentCount:  len(out.Absent),
		CreatedAt:    s.now().UTC(),
	}
}

func fallbackReport(key database.DayKey, roster []RosterEntry, prior map[int64]database.StoredAttendance, reason string) *Report {
	msg := "No changes made."
	if reason != "" {
		msg += " " + reason
	}
	return &Report{
		Date:     key.DateString(),
		Message:  msg,
		Results:  CurrentOutcome(roster, priorStatuses(prior)),
		Fallback: true,
		Reason:   reason,
	}
}

func markedMessage(out Outcome) string {
	return fmt.Sprintf("Attendance marked successfully. Total Present: %d, Newly Marked: %d, Absent: %d",
		len(out.Present), len(out.NewlyMarkedPresent), len(out.Absent))
}

// Reconcile matches the capture against the classroom roster and merges the
// result with the attendance already recorded for the date.
//
// A capture without faces or without decodable probes, and a roster without
// any usable encoding, fall back to CurrentStatus: nothing is written.
func (s *Service) Reconcile(ctx context.Context, key database.DayKey, capture Capture) (*Report, error) {
	if _, err := s.requireClassroom(ctx, key); err != nil {
		return nil, err
	}

	faces := max(capture.FacesDetected, capture.Probes.Len()+capture.Probes.Rejected)
	detection := FaceDetection{
		TotalFacesDetected: faces,
		ProbesDecoded:      capture.Probes.Len(),
		ProbesRejected:     capture.Probes.Rejected,
	}

	if faces == 0 {
		return s.currentStatus(ctx, key, s.reasons.NoFaces, &detection)
	}
	if capture.Probes.Len() == 0 {
		log.Printf("No usable probes for %s: %d faces, %d rejected encodings", key, faces, capture.Probes.Rejected)
		return s.currentStatus(ctx, key, s.reasons.NoEncodings, &detection)
	}

	var report *Report
	err := s.write(ctx, key, func(tx database.DayTx) error {
		roster, invalid, records, err := s.loadDay(ctx, tx)
		if err != nil {
			return err
		}

		det := detection
		known, owners := knownEmbeddings(roster)
		if len(known) == 0 {
			report = fallbackReport(key, roster, records, s.reasons.NoEnrolledEncodings)
			report.FaceDetection = &det
			report.InvalidEncodings = invalid
			return nil
		}

		results := s.matcher.MatchAll(known, capture.Probes.Probes)
		matched := make(map[int64]bool, len(results))
		matches := make([]Match, 0, len(results))
		for _, r := range results {
			e := owners[r.KnownIndex]
			matched[e.StudentID] = true
			matches = append(matches, Match{
				StudentID:   e.StudentID,
				StudentName: e.Name,
				StudentRoll: e.Roll,
				FaceIndex:   r.ProbeIndex,
				Distance:    r.Distance,
				Confidence:  r.Confidence,
			})
		}
		det.FacesMatched = len(results)

		out := Reconcile(roster, priorStatuses(records), matched)
		if err := tx.SaveStatuses(ctx, snapshot(key, roster, out)); err != nil {
			return fmt.Errorf("save attendance: %w", err)
		}

		event := s.newEvent(key, database.EventReconcile, out)
		event.FacesDetected = det.TotalFacesDetected
		event.FacesMatched = det.FacesMatched
		if err := tx.RecordEvent(ctx, event); err != nil {
			return fmt.Errorf("record event: %w", err)
		}

		report = &Report{
			CaptureID:        event.CaptureID.String(),
			Date:             key.DateString(),
			Message:          markedMessage(out),
			Results:          out,
			FaceDetection:    &det,
			Matches:          matches,
			InvalidEncodings: invalid,
		}
		return nil
	})
	if err != nil {
		log.Printf("Reconciliation failed for %s: %v", key, err)
		return nil, err
	}

	if !report.Fallback {
		log.Printf("Attendance marked for %s - Total Present: %d, Newly Marked: %d, Previously Present: %d, Absent: %d",
			key, len(report.Results.Present), len(report.Results.NewlyMarkedPresent),
			len(report.Results.PreviouslyPresent), len(report.Results.Absent))
	}
	return report, nil
}

// CurrentStatus reports the recorded state of the date without writing anything.
func (s *Service) CurrentStatus(ctx context.Context, key database.DayKey, reason string) (*Report, error) {
	if _, err := s.requireClassroom(ctx, key); err != nil {
		return nil, err
	}
	return s.currentStatus(ctx, key, reason, nil)
}

func (s *Service) currentStatus(ctx context.Context, key database.DayKey, reason string, detection *FaceDetection) (*Report, error) {
	var report *Report
	err := s.read(ctx, key, func(tx database.DayTx) error {
		roster, _, records, err := s.loadDay(ctx, tx)
		if err != nil {
			return err
		}
		report = fallbackReport(key, roster, records, reason)
		report.FaceDetection = detection
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ForceAbsent marks every active student of the classroom absent for the date,
// including students already present. It is the only operation that can
// revert a present status.
func (s *Service) ForceAbsent(ctx context.Context, key database.DayKey, reason string) (*Report, error) {
	if _, err := s.requireClassroom(ctx, key); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = s.reasons.ForceAbsent
	}

	var report *Report
	err := s.write(ctx, key, func(tx database.DayTx) error {
		students, err := tx.Students(ctx)
		if err != nil {
			return fmt.Errorf("load roster: %w", err)
		}
		roster, _ := BuildRoster(students)

		out := AbsentOutcome(roster)
		if err := tx.SaveStatuses(ctx, snapshot(key, roster, out)); err != nil {
			return fmt.Errorf("save attendance: %w", err)
		}

		event := s.newEvent(key, database.EventForceAbsent, out)
		event.Reason = reason
		if err := tx.RecordEvent(ctx, event); err != nil {
			return fmt.Errorf("record event: %w", err)
		}

		report = &Report{
			CaptureID: event.CaptureID.String(),
			Date:      key.DateString(),
			Message:   "Attendance marked. All students marked as absent. Reason: " + reason,
			Results:   out,
			Reason:    reason,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("All %d students marked absent for %s: %s", len(report.Results.Absent), key, reason)
	return report, nil
}

// MarkPresent records manual presence for the given students. The students are
// reconciled as if they had been matched, so nobody already present is affected.
func (s *Service) MarkPresent(ctx context.Context, key database.DayKey, studentIDs []int64) (*Report, error) {
	if len(studentIDs) == 0 {
		return nil, invalidInput("at least one student id is required")
	}
	if _, err := s.requireClassroom(ctx, key); err != nil {
		return nil, err
	}

	var report *Report
	err := s.write(ctx, key, func(tx database.DayTx) error {
		roster, _, records, err := s.loadDay(ctx, tx)
		if err != nil {
			return err
		}

		onRoster := make(map[int64]bool, len(roster))
		for _, e := range roster {
			onRoster[e.StudentID] = true
		}
		matched := make(map[int64]bool, len(studentIDs))
		for _, id := range studentIDs {
			if !onRoster[id] {
				return notFound("student %d is not an active member of classroom %d", id, key.ClassroomID)
			}
			matched[id] = true
		}

		out := Reconcile(roster, priorStatuses(records), matched)
		if err := tx.SaveStatuses(ctx, snapshot(key, roster, out)); err != nil {
			return fmt.Errorf("save attendance: %w", err)
		}

		event := s.newEvent(key, database.EventManual, out)
		if err := tx.RecordEvent(ctx, event); err != nil {
			return fmt.Errorf("record event: %w", err)
		}

		report = &Report{
			CaptureID: event.CaptureID.String(),
			Date:      key.DateString(),
			Message:   markedMessage(out),
			Results:   out,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Day lists every active student of the classroom with their status on the
// date. Students without a record are absent.
func (s *Service) Day(ctx context.Context, key database.DayKey) (*DayAttendance, error) {
	classroom, err := s.requireClassroom(ctx, key)
	if err != nil {
		return nil, err
	}

	day := &DayAttendance{Classroom: classroom.Name, Date: key.DateString(), Attendance: []DayEntry{}}
	err = s.read(ctx, key, func(tx database.DayTx) error {
		students, err := tx.Students(ctx)
		if err != nil {
			return fmt.Errorf("load roster: %w", err)
		}
		records, err := tx.Statuses(ctx)
		if err != nil {
			return fmt.Errorf("load attendance: %w", err)
		}

		day.Attendance = day.Attendance[:0]
		for _, st := range students {
			entry := DayEntry{
				StudentID:    st.ID,
				StudentName:  st.Name,
				StudentEmail: st.Email,
				StudentRoll:  st.RollNumber,
				Status:       database.StatusAbsent,
			}
			if rec, ok := records[st.ID]; ok {
				entry.Status = rec.Status
				markedAt := rec.CreatedAt
				entry.MarkedAt = &markedAt
			}
			day.Attendance = append(day.Attendance, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return day, nil
}
