// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
)

// MockRoster is a mock implementation of database.RosterWriter
type MockRoster struct {
	mu         sync.RWMutex
	classrooms map[int64]*database.StoredClassroom
	students   map[int64]*database.StoredStudent
	nextID     int64

	// Error injection
	GetClassroomError   error
	ListStudentsError   error
	GetStudentError     error
	FindNearestError    error
	CreateError         error
	UpdateEncodingError error
	// UpdateEncodingErrors fails UpdateFaceEncoding for single students
	UpdateEncodingErrors map[int64]error
}

// NewMockRoster creates a new mock roster
func NewMockRoster() *MockRoster {
	return &MockRoster{
		classrooms:           make(map[int64]*database.StoredClassroom),
		students:             make(map[int64]*database.StoredStudent),
		UpdateEncodingErrors: make(map[int64]error),
	}
}

func (m *MockRoster) id(current int64) int64 {
	if current != 0 {
		m.nextID = max(m.nextID, current)
		return current
	}
	m.nextID++
	return m.nextID
}

// AddClassroom adds a classroom to the mock store and returns its ID
func (m *MockRoster) AddClassroom(c database.StoredClassroom) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = m.id(c.ID)
	m.classrooms[c.ID] = &c
	return c.ID
}

// AddStudent adds a student to the mock store and returns its ID
func (m *MockRoster) AddStudent(s database.StoredStudent) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id(s.ID)
	m.students[s.ID] = &s
	return s.ID
}

// Encoding returns the stored encoding of a student
func (m *MockRoster) Encoding(studentID int64) *string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.students[studentID]; ok {
		return s.FaceEncoding
	}
	return nil
}

// GetClassroom returns the classroom if it belongs to the owner
func (m *MockRoster) GetClassroom(ctx context.Context, classroomID, ownerID int64) (*database.StoredClassroom, error) {
	if m.GetClassroomError != nil {
		return nil, m.GetClassroomError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.classrooms[classroomID]
	if !ok || c.OwnerID != ownerID {
		return nil, nil
	}
	result := *c
	return &result, nil
}

// ListStudents returns the active students of a classroom ordered by id
func (m *MockRoster) ListStudents(ctx context.Context, classroomID, ownerID int64) ([]database.StoredStudent, error) {
	if m.ListStudentsError != nil {
		return nil, m.ListStudentsError
	}
	return m.filter(func(s *database.StoredStudent) bool {
		return s.ClassroomID == classroomID && s.OwnerID == ownerID && s.Active
	}), nil
}

// GetStudent returns a student owned by the owner
func (m *MockRoster) GetStudent(ctx context.Context, studentID, ownerID int64) (*database.StoredStudent, error) {
	if m.GetStudentError != nil {
		return nil, m.GetStudentError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[studentID]
	if !ok || s.OwnerID != ownerID {
		return nil, nil
	}
	result := *s
	return &result, nil
}

// ListOwnerStudents returns every student of the owner
func (m *MockRoster) ListOwnerStudents(ctx context.Context, ownerID int64) ([]database.StoredStudent, error) {
	if m.ListStudentsError != nil {
		return nil, m.ListStudentsError
	}
	return m.filter(func(s *database.StoredStudent) bool {
		return s.OwnerID == ownerID
	}), nil
}

func (m *MockRoster) filter(keep func(s *database.StoredStudent) bool) []database.StoredStudent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.StoredStudent
	for _, s := range m.students {
		if keep(s) {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// FindNearestStudents performs brute-force nearest neighbor search
func (m *MockRoster) FindNearestStudents(ctx context.Context, classroomID, ownerID int64, probe []float32, k int) ([]database.NearestStudent, error) {
	if m.FindNearestError != nil {
		return nil, m.FindNearestError
	}
	query := facematch.Normalize(probe)
	if !query.Valid() {
		return nil, fmt.Errorf("probe: %w", query.Err())
	}

	students, _ := m.ListStudents(ctx, classroomID, ownerID)
	var result []database.NearestStudent
	for _, s := range students {
		if s.FaceEncoding == nil {
			continue
		}
		n := facematch.Normalize(*s.FaceEncoding)
		if !n.Valid() {
			continue
		}
		result = append(result, database.NearestStudent{
			Student:  s,
			Distance: facematch.EuclideanDistance(query.Embedding, n.Embedding),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Distance != result[j].Distance {
			return result[i].Distance < result[j].Distance
		}
		return result[i].Student.ID < result[j].Student.ID
	})
	if k > 0 && len(result) > k {
		result = result[:k]
	}
	return result, nil
}

// CreateClassroom inserts a classroom and sets its ID
func (m *MockRoster) CreateClassroom(ctx context.Context, classroom *database.StoredClassroom) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	classroom.ID = m.AddClassroom(*classroom)
	return nil
}

// CreateStudent inserts a student and sets its ID
func (m *MockRoster) CreateStudent(ctx context.Context, student *database.StoredStudent) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	student.ID = m.AddStudent(*student)
	return nil
}

// UpdateFaceEncoding replaces the stored encoding text of a student
func (m *MockRoster) UpdateFaceEncoding(ctx context.Context, studentID int64, encoding string, embedding []float32) error {
	if m.UpdateEncodingError != nil {
		return m.UpdateEncodingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.UpdateEncodingErrors[studentID]; err != nil {
		return err
	}
	s, ok := m.students[studentID]
	if !ok {
		return database.ErrNotFound
	}
	s.FaceEncoding = &encoding
	s.UpdatedAt = time.Now()
	return nil
}

type recordKey struct {
	studentID int64
	date      string
}

// MockAttendanceStore is a mock implementation of database.AttendanceStore.
// WithinDay calls are serialized; staged writes are applied only when fn succeeds.
type MockAttendanceStore struct {
	roster *MockRoster

	txMu    sync.Mutex
	mu      sync.RWMutex
	records map[recordKey]database.StoredAttendance
	events  []database.AttendanceEvent
	nextID  int64
	calls   int
	commits int

	// Error injection
	// WithinDayErrors is consumed one entry per WithinDay call before fn runs
	WithinDayErrors []error
	StudentsError   error
	StatusesError   error
	SaveError       error
	EventError      error
	HistoryError    error
	RangeError      error
	ListEventsError error
}

// NewMockAttendanceStore creates a store whose transactions read students from roster
func NewMockAttendanceStore(roster *MockRoster) *MockAttendanceStore {
	return &MockAttendanceStore{
		roster:  roster,
		records: make(map[recordKey]database.StoredAttendance),
	}
}

// AddRecord seeds an attendance record
func (m *MockAttendanceStore) AddRecord(rec database.StoredAttendance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	m.records[recordKey{rec.StudentID, rec.Date.Format(database.DateLayout)}] = rec
}

// Record returns the stored record of a student for a date
func (m *MockAttendanceStore) Record(studentID int64, date time.Time) (database.StoredAttendance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[recordKey{studentID, date.Format(database.DateLayout)}]
	return rec, ok
}

// RecordCount returns the number of stored attendance records
func (m *MockAttendanceStore) RecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// StoredEvents returns all committed events
func (m *MockAttendanceStore) StoredEvents() []database.AttendanceEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.events)
}

// Calls returns the number of WithinDay invocations
func (m *MockAttendanceStore) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Commits returns the number of committed transactions that wrote something
func (m *MockAttendanceStore) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

// WithinDay runs fn against staged state and commits it when fn returns nil
func (m *MockAttendanceStore) WithinDay(ctx context.Context, key database.DayKey, fn func(tx database.DayTx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	m.calls++
	var injected error
	if len(m.WithinDayErrors) > 0 {
		injected = m.WithinDayErrors[0]
		m.WithinDayErrors = m.WithinDayErrors[1:]
	}
	m.mu.Unlock()
	if injected != nil {
		return injected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &mockDayTx{store: m, key: key, staged: make(map[recordKey]database.StoredAttendance)}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range tx.staged {
		if rec.ID == 0 {
			m.nextID++
			rec.ID = m.nextID
		}
		m.records[k] = rec
	}
	m.events = append(m.events, tx.events...)
	if len(tx.staged) > 0 || len(tx.events) > 0 {
		m.commits++
	}
	return nil
}

// StudentHistory returns a student's records in the range, newest first
func (m *MockAttendanceStore) StudentHistory(ctx context.Context, studentID int64, r database.DateRange) ([]database.StoredAttendance, error) {
	if m.HistoryError != nil {
		return nil, m.HistoryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.StoredAttendance
	for _, rec := range m.records {
		if rec.StudentID == studentID && r.Contains(rec.Date) {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.After(result[j].Date) })
	return result, nil
}

// ClassroomRange returns the classroom's records in the range, newest date first, then by name
func (m *MockAttendanceStore) ClassroomRange(ctx context.Context, classroomID, ownerID int64, r database.DateRange) ([]database.StudentDayRecord, error) {
	if m.RangeError != nil {
		return nil, m.RangeError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.StudentDayRecord
	for _, rec := range m.records {
		if rec.ClassroomID != classroomID || rec.OwnerID != ownerID || !r.Contains(rec.Date) {
			continue
		}
		row := database.StudentDayRecord{
			StudentID: rec.StudentID,
			Date:      rec.Date,
			Status:    rec.Status,
			UpdatedAt: rec.UpdatedAt,
		}
		if s, _ := m.roster.GetStudent(ctx, rec.StudentID, ownerID); s != nil {
			row.StudentName = s.Name
			row.StudentEmail = s.Email
			row.StudentRoll = s.RollNumber
		}
		result = append(result, row)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].StudentName < result[j].StudentName
	})
	return result, nil
}

// ListEvents returns the committed events of a classroom day, oldest first
func (m *MockAttendanceStore) ListEvents(ctx context.Context, key database.DayKey) ([]database.AttendanceEvent, error) {
	if m.ListEventsError != nil {
		return nil, m.ListEventsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.AttendanceEvent
	for _, e := range m.events {
		if e.ClassroomID == key.ClassroomID && e.Date.Equal(key.Date) {
			result = append(result, e)
		}
	}
	return result, nil
}

type mockDayTx struct {
	store  *MockAttendanceStore
	key    database.DayKey
	staged map[recordKey]database.StoredAttendance
	events []database.AttendanceEvent
}

func (t *mockDayTx) Students(ctx context.Context) ([]database.StoredStudent, error) {
	if t.store.StudentsError != nil {
		return nil, t.store.StudentsError
	}
	return t.store.roster.ListStudents(ctx, t.key.ClassroomID, t.key.OwnerID)
}

func (t *mockDayTx) Statuses(ctx context.Context) (map[int64]database.StoredAttendance, error) {
	if t.store.StatusesError != nil {
		return nil, t.store.StatusesError
	}
	date := t.key.DateString()

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	result := make(map[int64]database.StoredAttendance)
	for k, rec := range t.store.records {
		if k.date == date && rec.ClassroomID == t.key.ClassroomID {
			result[k.studentID] = rec
		}
	}
	for k, rec := range t.staged {
		result[k.studentID] = rec
	}
	return result, nil
}

func (t *mockDayTx) SaveStatuses(ctx context.Context, records []database.StoredAttendance) error {
	if t.store.SaveError != nil {
		return t.store.SaveError
	}
	now := time.Now()
	current, _ := t.Statuses(ctx)
	for _, rec := range records {
		k := recordKey{rec.StudentID, rec.Date.Format(database.DateLayout)}
		if existing, ok := current[rec.StudentID]; ok {
			if existing.Status == rec.Status {
				continue
			}
			existing.Status = rec.Status
			existing.UpdatedAt = now
			t.staged[k] = existing
			continue
		}
		rec.CreatedAt = now
		rec.UpdatedAt = now
		t.staged[k] = rec
	}
	return nil
}

func (t *mockDayTx) RecordEvent(ctx context.Context, event *database.AttendanceEvent) error {
	if t.store.EventError != nil {
		return t.store.EventError
	}
	t.events = append(t.events, *event)
	return nil
}
