package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

var errMissingFile = errors.New("missing file")

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
func respondError(w http.ResponseWriter, status int, kind attendance.Kind, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
		"kind":  string(kind),
	})
}

// statusForKind maps service error kinds to HTTP status codes.
func statusForKind(kind attendance.Kind) int {
	switch kind {
	case attendance.KindInvalidInput:
		return http.StatusBadRequest
	case attendance.KindNotFound:
		return http.StatusNotFound
	case attendance.KindNoFace:
		return http.StatusUnprocessableEntity
	case attendance.KindExtractionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError logs the full error and sends only its stable kind and message.
func respondServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	kind := attendance.KindOf(err)
	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", r.URL.Path, "kind", kind, "error", sanitizeForLog(err.Error()))
	} else {
		log.Info("request rejected", "path", r.URL.Path, "kind", kind, "error", sanitizeForLog(err.Error()))
	}
	respondError(w, status, kind, attendance.PublicMessage(err))
}

// parseMultipart limits the body and parses the form. The caller must call
// r.MultipartForm.RemoveAll when it returns true.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(w, http.StatusRequestEntityTooLarge, attendance.KindInvalidInput, "upload too large")
			return false
		}
		respondError(w, http.StatusBadRequest, attendance.KindInvalidInput, "failed to parse multipart form")
		return false
	}
	return true
}

// readFileHeader reads an uploaded file fully.
func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return data, nil
}

// readFormFile reads the first file of the given field.
func readFormFile(r *http.Request, field string) ([]byte, error) {
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, errMissingFile
	}
	return readFileHeader(files[0])
}

// parseID reads the {id} URL parameter.
func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Index handles the root endpoint.
func Index(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Face Recognition API is running",
	})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
