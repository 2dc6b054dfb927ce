package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/capture"
	"github.com/kozaktomas/attendance/internal/database"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// errInvalidDate is returned for any date that is not YYYY-MM-DD.
const errInvalidDate = "Date format should be YYYY-MM-DD"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps attendance and capture errors onto HTTP statuses.
// Unexpected errors are logged and reported without detail.
func respondServiceError(w http.ResponseWriter, err error) {
	var ae *attendance.Error
	switch {
	case errors.As(err, &ae):
		switch ae.Code {
		case attendance.CodeNotFound:
			respondError(w, http.StatusNotFound, ae.Message)
		case attendance.CodeInvalidInput, attendance.CodeInvalidEmbeddingShape:
			respondError(w, http.StatusBadRequest, ae.Message)
		case attendance.CodeConcurrentModification:
			respondError(w, http.StatusConflict, "Attendance is being updated by another request, please retry")
		case attendance.CodeUpstreamFailure:
			log.Printf("Upstream failure: %v", err)
			respondError(w, http.StatusBadGateway, ae.Message)
		default:
			log.Printf("Attendance error: %v", err)
			respondError(w, http.StatusInternalServerError, ae.Message)
		}
	case errors.Is(err, capture.ErrTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, "Image is too large")
	case errors.Is(err, capture.ErrUnsupportedFormat):
		respondError(w, http.StatusUnsupportedMediaType, "Image must be JPEG, PNG or WebP")
	case errors.Is(err, capture.ErrEmpty):
		respondError(w, http.StatusBadRequest, "Image is empty")
	case errors.Is(err, database.ErrNotInitialized):
		respondError(w, http.StatusServiceUnavailable, "storage not available")
	default:
		log.Printf("Unexpected error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUploadForm parses a multipart body whose image may be up to limit
// bytes. It responds with 413 or 400 and returns false on failure.
func parseUploadForm(w http.ResponseWriter, r *http.Request, limit int64) bool {
	// Headroom for multipart framing and form fields.
	bodyLimit := limit + 64<<10
	if r.ContentLength > bodyLimit {
		respondError(w, http.StatusRequestEntityTooLarge, "Image is too large")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Image is too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return false
	}
	return true
}

// readFormImage returns the "image" file of a parsed upload form.
func readFormImage(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	file, _, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No image provided")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return nil, false
	}
	return data, true
}

// parseIDParam reads a positive integer URL parameter. It responds with 400
// and returns false when the parameter is malformed.
func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// parseDate parses a YYYY-MM-DD value; an empty value yields fallback.
func parseDate(value string, fallback time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, true
	}
	t, err := database.ParseDate(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func today() time.Time {
	return time.Now().UTC()
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	backend := database.BackendName()
	if backend == "" {
		backend = "none"
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"storage": backend,
	})
}
