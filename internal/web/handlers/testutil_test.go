package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/config"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/database/mock"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/web/middleware"
)

const testOwner int64 = 3

var testDate = time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

// testConfig creates a minimal config for testing
func testConfig() *config.Config {
	return config.Defaults()
}

// testFace returns an embedding at distance >= 1 from every other testFace.
func testFace(n int) facematch.Embedding {
	var e facematch.Embedding
	e[n] = 1
	e[n+1] = 0.5
	return e
}

func encodingPtr(e facematch.Embedding) *string {
	s := e.Canonical()
	return &s
}

// stubDetector returns a fixed capture or error
type stubDetector struct {
	capture attendance.Capture
	err     error
	images  int
}

func (d *stubDetector) Detect(_ context.Context, _ []byte) (attendance.Capture, error) {
	d.images++
	return d.capture, d.err
}

// handlerEnv wires handlers to a service over in-memory mocks
type handlerEnv struct {
	roster     *mock.MockRoster
	store      *mock.MockAttendanceStore
	service    *attendance.Service
	detector   *stubDetector
	classroom  int64
	attendance *AttendanceHandler
	classrooms *ClassroomsHandler
	students   *StudentsHandler
}

func setupHandlerTest(t *testing.T) *handlerEnv {
	t.Helper()

	roster := mock.NewMockRoster()
	store := mock.NewMockAttendanceStore(roster)
	cfg := testConfig()
	service := attendance.NewService(roster, store, &cfg.Matching)
	detector := &stubDetector{}
	intake := capture.NewIntake(&cfg.Capture)

	return &handlerEnv{
		roster:     roster,
		store:      store,
		service:    service,
		detector:   detector,
		classroom:  roster.AddClassroom(database.StoredClassroom{OwnerID: testOwner, Name: "Biology"}),
		attendance: NewAttendanceHandler(service, detector, intake),
		classrooms: NewClassroomsHandler(service),
		students:   NewStudentsHandler(service, detector, intake),
	}
}

func (e *handlerEnv) addStudent(name string, encoding *string) int64 {
	return e.roster.AddStudent(database.StoredStudent{
		ClassroomID:  e.classroom,
		OwnerID:      testOwner,
		Name:         name,
		RollNumber:   "R-" + name,
		FaceEncoding: encoding,
		Active:       true,
	})
}

// ownerRequest creates a request with the test owner in context
func ownerRequest(t *testing.T, method, path string, body io.Reader) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	return req.WithContext(middleware.SetOwnerInContext(req.Context(), testOwner))
}

// jsonRequest creates an owner request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := ownerRequest(t, method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
