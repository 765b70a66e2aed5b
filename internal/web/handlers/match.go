package handlers

import (
	"context"
	"net/http"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

// Identifier matches a face photo and records attendance.
type Identifier interface {
	Identify(ctx context.Context, data []byte) (*attendance.MatchResult, error)
}

// MatchHandler handles the attendance match endpoint.
type MatchHandler struct {
	service Identifier
	log     *logger.Logger
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(service Identifier, log *logger.Logger) *MatchHandler {
	return &MatchHandler{service: service, log: log}
}

// Match identifies the uploaded face and returns the student name or "Unknown".
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	data, err := readFormFile(r, constants.MatchImageField)
	if err != nil {
		respondError(w, http.StatusBadRequest, attendance.KindInvalidInput, "no image uploaded")
		return
	}

	result, err := h.service.Identify(r.Context(), data)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"match": result.Name,
	})
}
