package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/constants"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/web/middleware"
)

// AttendanceHandler handles attendance endpoints of a classroom
type AttendanceHandler struct {
	service  *attendance.Service
	detector attendance.Detector
	intake   *capture.Intake
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(service *attendance.Service, detector attendance.Detector, intake *capture.Intake) *AttendanceHandler {
	return &AttendanceHandler{service: service, detector: detector, intake: intake}
}

// dayKey builds the classroom day of a request from the classroomID URL
// parameter, the owner and a date value. It responds on failure.
func dayKey(w http.ResponseWriter, r *http.Request, date string) (database.DayKey, bool) {
	classroomID, ok := parseIDParam(w, r, "classroomID")
	if !ok {
		return database.DayKey{}, false
	}
	d, ok := parseDate(date, today())
	if !ok {
		respondError(w, http.StatusBadRequest, errInvalidDate)
		return database.DayKey{}, false
	}
	return database.NewDayKey(classroomID, middleware.GetOwnerFromContext(r.Context()), d), true
}

// Capture marks attendance from a classroom photo (multipart "image", form "date").
func (h *AttendanceHandler) Capture(w http.ResponseWriter, r *http.Request) {
	if !parseUploadForm(w, r, h.intake.MaxBytes()) {
		return
	}

	key, ok := dayKey(w, r, r.FormValue("date"))
	if !ok {
		return
	}

	data, ok := readFormImage(w, r, h.intake.MaxBytes())
	if !ok {
		return
	}

	img, err := h.intake.Prepare(data)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if img.Resized {
		log.Printf("Capture for %s downscaled to %dx%d", key, img.Width, img.Height)
	}

	report, err := h.service.Mark(r.Context(), key, img.Data, h.detector)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type probesRequest struct {
	Date          string          `json:"date"`
	FacesDetected int             `json:"faces_detected"`
	Encodings     json.RawMessage `json:"encodings"`
}

// Probes reconciles attendance from encodings computed by the client.
func (h *AttendanceHandler) Probes(w http.ResponseWriter, r *http.Request) {
	var req probesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	key, ok := dayKey(w, r, req.Date)
	if !ok {
		return
	}

	report, err := h.service.Reconcile(r.Context(), key, attendance.Capture{
		FacesDetected: req.FacesDetected,
		Probes:        facematch.NormalizeProbes(req.Encodings),
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type manualRequest struct {
	Date       string  `json:"date"`
	StudentIDs []int64 `json:"student_ids"`
}

// Manual marks the given students present.
func (h *AttendanceHandler) Manual(w http.ResponseWriter, r *http.Request) {
	var req manualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	key, ok := dayKey(w, r, req.Date)
	if !ok {
		return
	}

	report, err := h.service.MarkPresent(r.Context(), key, req.StudentIDs)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

type absentRequest struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// Absent marks every student of the classroom absent for the date.
func (h *AttendanceHandler) Absent(w http.ResponseWriter, r *http.Request) {
	var req absentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}
	key, ok := dayKey(w, r, req.Date)
	if !ok {
		return
	}

	log.Printf("Force absent for %s: %s", key, sanitizeForLog(req.Reason))
	report, err := h.service.ForceAbsent(r.Context(), key, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Status returns every student's status for the date (?date=, default today).
func (h *AttendanceHandler) Status(w http.ResponseWriter, r *http.Request) {
	key, ok := dayKey(w, r, r.URL.Query().Get("date"))
	if !ok {
		return
	}

	day, err := h.service.Day(r.Context(), key)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, day)
}

// Events returns the audit trail of the date.
func (h *AttendanceHandler) Events(w http.ResponseWriter, r *http.Request) {
	key, ok := dayKey(w, r, r.URL.Query().Get("date"))
	if !ok {
		return
	}

	events, err := h.service.Events(r.Context(), key)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":   key.DateString(),
		"events": events,
	})
}

// Range returns per-date attendance of the classroom. The end date defaults
// to today and the start date to the preceding DefaultRangeDays days.
func (h *AttendanceHandler) Range(w http.ResponseWriter, r *http.Request) {
	classroomID, ok := parseIDParam(w, r, "classroomID")
	if !ok {
		return
	}
	rng, ok := parseRange(w, r, true)
	if !ok {
		return
	}

	report, err := h.service.RangeReport(r.Context(), classroomID, middleware.GetOwnerFromContext(r.Context()), rng)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// parseRange reads start_date and end_date. With defaults, missing bounds are
// filled in; otherwise they stay open.
func parseRange(w http.ResponseWriter, r *http.Request, defaults bool) (database.DateRange, bool) {
	q := r.URL.Query()

	var endFallback time.Time
	if defaults {
		endFallback = today()
	}
	end, ok := parseDate(q.Get("end_date"), endFallback)
	if !ok {
		respondError(w, http.StatusBadRequest, errInvalidDate)
		return database.DateRange{}, false
	}

	var startFallback time.Time
	if defaults {
		startFallback = end.AddDate(0, 0, -(constants.DefaultRangeDays - 1))
	}
	start, ok := parseDate(q.Get("start_date"), startFallback)
	if !ok {
		respondError(w, http.StatusBadRequest, errInvalidDate)
		return database.DateRange{}, false
	}

	return database.DateRange{From: midnight(start), To: midnight(end)}, true
}

func midnight(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
