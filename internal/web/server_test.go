package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mock"
	"github.com/kozaktomas/attendance/internal/facematch"
)

type noopDetector struct{}

func (noopDetector) Detect(context.Context, []byte) (attendance.Capture, error) {
	return attendance.Capture{}, nil
}

func setupServer(t *testing.T) (*Server, int64) {
	t.Helper()
	roster := mock.NewMockRoster()
	store := mock.NewMockAttendanceStore(roster)
	classroom := roster.AddClassroom(database.StoredClassroom{OwnerID: 5, Name: "History"})
	var e facematch.Embedding
	e[0] = 1
	encoding := e.Canonical()
	roster.AddStudent(database.StoredStudent{ClassroomID: classroom, OwnerID: 5, Name: "ana", FaceEncoding: &encoding, Active: true})

	cfg := config.Defaults()
	service := attendance.NewService(roster, store, &cfg.Matching)
	return NewServer(cfg, 0, "localhost", service, noopDetector{}), classroom
}

func TestRouter_Health(t *testing.T) {
	server, _ := setupServer(t)

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recorder.Code)
	}
	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestRouter_RequiresOwner(t *testing.T) {
	server, classroom := setupServer(t)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/classrooms/%d/attendance", classroom), nil)
	server.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", recorder.Code)
	}
}

func TestRouter_OwnerScoping(t *testing.T) {
	server, classroom := setupServer(t)

	tests := []struct {
		owner      string
		wantStatus int
	}{
		{"5", http.StatusOK},
		{"6", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run("owner "+tt.owner, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/classrooms/%d/attendance?date=2026-05-04", classroom), nil)
			req.Header.Set("X-User-ID", tt.owner)
			server.Router().ServeHTTP(recorder, req)

			if recorder.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d: %s", tt.wantStatus, recorder.Code, recorder.Body.String())
			}
		})
	}
}

func TestRouter_ProbesRoute(t *testing.T) {
	server, classroom := setupServer(t)

	var e facematch.Embedding
	e[0] = 1
	body := fmt.Sprintf(`{"date": "2026-05-04", "faces_detected": 1, "encodings": [%s]}`, e.Canonical())

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/classrooms/%d/attendance/probes", classroom), strings.NewReader(body))
	req.Header.Set("X-User-ID", "5")
	req.Header.Set("Content-Type", "application/json")
	server.Router().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), `"newly_marked_present":[{`) {
		t.Errorf("expected a newly present student, got %s", recorder.Body.String())
	}
}
