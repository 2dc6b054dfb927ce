//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	// Run migrations
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testEmbedding(n int) facematch.Embedding {
	var e facematch.Embedding
	e[n] = 1
	return e
}

func encoding(e facematch.Embedding) *string {
	s := e.Canonical()
	return &s
}

func seedRoster(t *testing.T, ctx context.Context, roster *RosterRepository) (int64, []int64) {
	t.Helper()
	classroom := &database.StoredClassroom{OwnerID: 1, Name: "Chemistry"}
	require.NoError(t, roster.CreateClassroom(ctx, classroom))

	var ids []int64
	for i, enc := range []*string{encoding(testEmbedding(0)), encoding(testEmbedding(1)), nil} {
		s := &database.StoredStudent{
			ClassroomID:  classroom.ID,
			OwnerID:      1,
			Name:         fmt.Sprintf("student-%d", i),
			FaceEncoding: enc,
			Active:       true,
		}
		require.NoError(t, roster.CreateStudent(ctx, s))
		ids = append(ids, s.ID)
	}
	return classroom.ID, ids
}

func TestRosterRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	roster := NewRosterRepository(pool)
	classroomID, ids := seedRoster(t, ctx, roster)

	t.Run("GetClassroom", func(t *testing.T) {
		c, err := roster.GetClassroom(ctx, classroomID, 1)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, "Chemistry", c.Name)

		c, err = roster.GetClassroom(ctx, classroomID, 2)
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("ListStudents", func(t *testing.T) {
		students, err := roster.ListStudents(ctx, classroomID, 1)
		require.NoError(t, err)
		require.Len(t, students, 3)
		assert.Equal(t, ids[0], students[0].ID)
		require.NotNil(t, students[0].FaceEncoding)
		assert.Nil(t, students[2].FaceEncoding)
	})

	t.Run("FindNearestStudents", func(t *testing.T) {
		probe := testEmbedding(1)
		probe[5] = 0.1

		nearest, err := roster.FindNearestStudents(ctx, classroomID, 1, probe.Float32(), 5)
		require.NoError(t, err)
		require.Len(t, nearest, 2)
		assert.Equal(t, ids[1], nearest[0].Student.ID)
		assert.InDelta(t, 0.1, nearest[0].Distance, 1e-6)
	})

	t.Run("UpdateFaceEncoding", func(t *testing.T) {
		enc := testEmbedding(2)
		require.NoError(t, roster.UpdateFaceEncoding(ctx, ids[2], enc.Canonical(), enc.Float32()))

		s, err := roster.GetStudent(ctx, ids[2], 1)
		require.NoError(t, err)
		require.NotNil(t, s.FaceEncoding)
		assert.Equal(t, enc.Canonical(), *s.FaceEncoding)

		err = roster.UpdateFaceEncoding(ctx, 999999, "[]", nil)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}

func TestAttendanceRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	roster := NewRosterRepository(pool)
	store := NewAttendanceRepository(pool)
	classroomID, ids := seedRoster(t, ctx, roster)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	key := database.NewDayKey(classroomID, 1, date)

	save := func(status map[int64]database.Status) error {
		return store.WithinDay(ctx, key, func(tx database.DayTx) error {
			var records []database.StoredAttendance
			for _, id := range ids {
				records = append(records, database.StoredAttendance{
					StudentID: id, ClassroomID: classroomID, OwnerID: 1, Date: date, Status: status[id],
				})
			}
			return tx.SaveStatuses(ctx, records)
		})
	}

	t.Run("SaveStatuses", func(t *testing.T) {
		require.NoError(t, save(map[int64]database.Status{
			ids[0]: database.StatusPresent, ids[1]: database.StatusAbsent, ids[2]: database.StatusAbsent,
		}))

		var first map[int64]database.StoredAttendance
		require.NoError(t, store.WithinDay(ctx, key, func(tx database.DayTx) error {
			var err error
			first, err = tx.Statuses(ctx)
			return err
		}))
		require.Len(t, first, 3)
		assert.Equal(t, database.StatusPresent, first[ids[0]].Status)

		require.NoError(t, save(map[int64]database.Status{
			ids[0]: database.StatusPresent, ids[1]: database.StatusPresent, ids[2]: database.StatusAbsent,
		}))

		var second map[int64]database.StoredAttendance
		require.NoError(t, store.WithinDay(ctx, key, func(tx database.DayTx) error {
			var err error
			second, err = tx.Statuses(ctx)
			return err
		}))
		assert.Equal(t, first[ids[0]].UpdatedAt, second[ids[0]].UpdatedAt)
		assert.Equal(t, database.StatusPresent, second[ids[1]].Status)
	})

	t.Run("Rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithinDay(ctx, key, func(tx database.DayTx) error {
			if err := tx.SaveStatuses(ctx, []database.StoredAttendance{{
				StudentID: ids[2], ClassroomID: classroomID, OwnerID: 1, Date: date, Status: database.StatusPresent,
			}}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		history, err := store.StudentHistory(ctx, ids[2], database.DateRange{})
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, database.StatusAbsent, history[0].Status)
	})

	t.Run("Events", func(t *testing.T) {
		event := &database.AttendanceEvent{
			CaptureID: uuid.New(), ClassroomID: classroomID, OwnerID: 1, Date: date,
			Kind: database.EventReconcile, FacesDetected: 2, FacesMatched: 1, CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.WithinDay(ctx, key, func(tx database.DayTx) error {
			return tx.RecordEvent(ctx, event)
		}))

		events, err := store.ListEvents(ctx, key)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, event.CaptureID, events[0].CaptureID)
		assert.Equal(t, 2, events[0].FacesDetected)
	})

	t.Run("ClassroomRange", func(t *testing.T) {
		records, err := store.ClassroomRange(ctx, classroomID, 1, database.DateRange{From: date, To: date})
		require.NoError(t, err)
		assert.Len(t, records, 3)
		assert.Equal(t, "student-0", records[0].StudentName)
	})

	t.Run("SerializesSameDay", func(t *testing.T) {
		var (
			mu     sync.Mutex
			inside int
			peak   int
			wg     sync.WaitGroup
		)
		for range 4 {
			wg.Go(func() {
				err := store.WithinDay(ctx, key, func(tx database.DayTx) error {
					mu.Lock()
					inside++
					peak = max(peak, inside)
					mu.Unlock()

					time.Sleep(20 * time.Millisecond)

					mu.Lock()
					inside--
					mu.Unlock()
					return nil
				})
				assert.NoError(t, err)
			})
		}
		wg.Wait()
		assert.Equal(t, 1, peak)
	})
}

func TestMapError(t *testing.T) {
	for _, code := range []pq.ErrorCode{codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable} {
		err := mapError(fmt.Errorf("commit: %w", &pq.Error{Code: code}))
		assert.ErrorIs(t, err, database.ErrConcurrentModification, string(code))
	}

	other := &pq.Error{Code: "23505"}
	assert.NotErrorIs(t, mapError(other), database.ErrConcurrentModification)

	plain := errors.New("plain")
	assert.Same(t, plain, mapError(plain))
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	// Check migrations were applied
	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_create_classrooms.sql",
		"002_create_students.sql",
		"003_create_attendance.sql",
		"004_create_indexes.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}

	// Running again is a no-op
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Failed to re-run migrations: %v", err)
	}
}
