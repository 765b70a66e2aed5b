package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

// AttendanceService exposes the attendance log.
type AttendanceService interface {
	ListAttendance(ctx context.Context) ([]database.AttendanceRecord, error)
	Stats(ctx context.Context) (*attendance.Stats, error)
}

// AttendanceHandler handles attendance log endpoints.
type AttendanceHandler struct {
	service AttendanceService
	log     *logger.Logger
}

// NewAttendanceHandler creates a new attendance handler.
func NewAttendanceHandler(service AttendanceService, log *logger.Logger) *AttendanceHandler {
	return &AttendanceHandler{service: service, log: log}
}

// AttendanceEntry is one logged event in API responses
type AttendanceEntry struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// List returns the attendance log, most recent first.
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListAttendance(r.Context())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	entries := make([]AttendanceEntry, len(records))
	for i, rec := range records {
		entries[i] = AttendanceEntry{Name: rec.StudentName, Timestamp: rec.Timestamp}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"attendance": entries,
	})
}

// Stats returns roster and log sizes.
func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
