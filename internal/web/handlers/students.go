package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

// StudentService manages the roster.
type StudentService interface {
	Register(ctx context.Context, name string, uploads []attendance.Upload) (*attendance.Registration, error)
	ListStudents(ctx context.Context) ([]database.Student, error)
	GetStudent(ctx context.Context, id int64) (*database.Student, error)
	DeleteStudent(ctx context.Context, id int64) error
	StudentImage(ctx context.Context, id int64) (io.ReadCloser, error)
}

// StudentsHandler handles roster endpoints.
type StudentsHandler struct {
	service StudentService
	log     *logger.Logger
}

// NewStudentsHandler creates a new students handler.
func NewStudentsHandler(service StudentService, log *logger.Logger) *StudentsHandler {
	return &StudentsHandler{service: service, log: log}
}

// StudentResponse represents a student in API responses
type StudentResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	HasImage  bool      `json:"has_image"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func studentResponse(st *database.Student) StudentResponse {
	resp := StudentResponse{
		ID:        st.ID,
		Name:      st.Name,
		HasImage:  st.ImageRef != "",
		CreatedAt: st.CreatedAt,
	}
	if resp.HasImage {
		resp.ImageURL = fmt.Sprintf("/api/v1/students/%d/image", st.ID)
	}
	return resp
}

// Register adds a student from one or more photos.
func (h *StudentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !parseMultipart(w, r) {
		return
	}
	defer r.MultipartForm.RemoveAll()

	name := r.FormValue(constants.RegisterNameField)
	files := r.MultipartForm.File[constants.RegisterImagesField]
	if name == "" || len(files) == 0 {
		respondError(w, http.StatusBadRequest, attendance.KindInvalidInput, "missing name or images")
		return
	}

	uploads := make([]attendance.Upload, 0, len(files))
	for _, fh := range files {
		data, err := readFileHeader(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, attendance.KindInvalidInput, "failed to read uploaded file")
			return
		}
		uploads = append(uploads, attendance.Upload{Filename: fh.Filename, Data: data})
	}

	reg, err := h.service.Register(r.Context(), name, uploads)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	status := http.StatusOK
	if reg.Created {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]any{
		"status":         fmt.Sprintf("Student '%s' added successfully with %d images", reg.Student.Name, reg.ImagesUsed),
		"student":        studentResponse(reg.Student),
		"images_used":    reg.ImagesUsed,
		"images_skipped": reg.ImagesSkipped,
	})
}

// List returns all students, newest first.
func (h *StudentsHandler) List(w http.ResponseWriter, r *http.Request) {
	students, err := h.service.ListStudents(r.Context())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	resp := make([]StudentResponse, len(students))
	for i := range students {
		resp[i] = studentResponse(&students[i])
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get returns a single student.
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, attendance.KindInvalidInput, "invalid student id")
		return
	}

	st, err := h.service.GetStudent(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, studentResponse(st))
}

// Image streams the representative photo of a student.
func (h *StudentsHandler) Image(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, attendance.KindInvalidInput, "invalid student id")
		return
	}

	rc, err := h.service.StudentImage(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("failed to stream student image", "id", id, "error", err)
	}
}

// Delete removes a student and its attendance records.
func (h *StudentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, attendance.KindInvalidInput, "invalid student id")
		return
	}

	if err := h.service.DeleteStudent(r.Context(), id); err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted": true,
		"id":      id,
	})
}
