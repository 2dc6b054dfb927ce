package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/facematch"
	"github.com/kozaktomas/attendance/internal/web/middleware"
)

// ClassroomsHandler handles roster and diagnostic endpoints of a classroom
type ClassroomsHandler struct {
	service *attendance.Service
}

// NewClassroomsHandler creates a new classrooms handler
func NewClassroomsHandler(service *attendance.Service) *ClassroomsHandler {
	return &ClassroomsHandler{service: service}
}

// Students lists the active roster, optionally filtered by ?search=.
func (h *ClassroomsHandler) Students(w http.ResponseWriter, r *http.Request) {
	classroomID, ok := parseIDParam(w, r, "classroomID")
	if !ok {
		return
	}

	students, err := h.service.Roster(r.Context(), classroomID, middleware.GetOwnerFromContext(r.Context()), r.URL.Query().Get("search"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, students)
}

type identifyRequest struct {
	// Encoding is a 128-number array or JSON text holding one.
	Encoding any `json:"encoding"`
	K        int `json:"k"`
}

// Identify returns the roster entries nearest to one encoding.
func (h *ClassroomsHandler) Identify(w http.ResponseWriter, r *http.Request) {
	classroomID, ok := parseIDParam(w, r, "classroomID")
	if !ok {
		return
	}

	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	n := facematch.Normalize(req.Encoding)
	if !n.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid encoding: "+n.Reason)
		return
	}

	report, err := h.service.Identify(r.Context(), classroomID, middleware.GetOwnerFromContext(r.Context()), n.Embedding, req.K)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// Encodings reports the stored encoding of every active student.
func (h *ClassroomsHandler) Encodings(w http.ResponseWriter, r *http.Request) {
	classroomID, ok := parseIDParam(w, r, "classroomID")
	if !ok {
		return
	}

	report, err := h.service.EncodingReport(r.Context(), classroomID, middleware.GetOwnerFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
