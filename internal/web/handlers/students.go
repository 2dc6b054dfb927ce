package handlers

import (
	"log"
	"net/http"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/web/middleware"
)

// StudentsHandler handles per-student endpoints
type StudentsHandler struct {
	service  *attendance.Service
	detector attendance.Detector
	intake   *capture.Intake
}

// NewStudentsHandler creates a new students handler
func NewStudentsHandler(service *attendance.Service, detector attendance.Detector, intake *capture.Intake) *StudentsHandler {
	return &StudentsHandler{service: service, detector: detector, intake: intake}
}

// EnrollFace stores the face encoding of a student from a single-face portrait.
func (h *StudentsHandler) EnrollFace(w http.ResponseWriter, r *http.Request) {
	studentID, ok := parseIDParam(w, r, "studentID")
	if !ok {
		return
	}
	if !parseUploadForm(w, r, h.intake.MaxBytes()) {
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
		log.Printf("Portrait of student %d downscaled to %dx%d", studentID, img.Width, img.Height)
	}

	result, err := h.service.EnrollFace(r.Context(), middleware.GetOwnerFromContext(r.Context()), studentID, img.Data, h.detector)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// History returns a student's attendance records, newest first.
func (h *StudentsHandler) History(w http.ResponseWriter, r *http.Request) {
	studentID, ok := parseIDParam(w, r, "studentID")
	if !ok {
		return
	}
	rng, ok := parseRange(w, r, false)
	if !ok {
		return
	}

	history, err := h.service.StudentHistory(r.Context(), middleware.GetOwnerFromContext(r.Context()), studentID, rng)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

// MigrateEncodings rewrites every stored encoding of the owner into canonical form.
func (h *StudentsHandler) MigrateEncodings(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.MigrateEncodings(r.Context(), middleware.GetOwnerFromContext(r.Context()), nil)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
