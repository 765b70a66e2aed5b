package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

// fakeService implements every handler service interface with canned results.
type fakeService struct {
	identifyResult *attendance.MatchResult
	identifyErr    error
	identifyData   []byte

	registration *attendance.Registration
	registerErr  error
	registerName string
	registerN    int

	students   []database.Student
	records    []database.AttendanceRecord
	stats      *attendance.Stats
	image      string
	deleted    []int64
	serviceErr error
}

func (f *fakeService) Identify(ctx context.Context, data []byte) (*attendance.MatchResult, error) {
	f.identifyData = data
	return f.identifyResult, f.identifyErr
}

func (f *fakeService) Register(ctx context.Context, name string, uploads []attendance.Upload) (*attendance.Registration, error) {
	f.registerName = name
	f.registerN = len(uploads)
	return f.registration, f.registerErr
}

func (f *fakeService) ListStudents(ctx context.Context) ([]database.Student, error) {
	return f.students, f.serviceErr
}

func (f *fakeService) GetStudent(ctx context.Context, id int64) (*database.Student, error) {
	if f.serviceErr != nil {
		return nil, f.serviceErr
	}
	for i := range f.students {
		if f.students[i].ID == id {
			return &f.students[i], nil
		}
	}
	return nil, &attendance.Error{Kind: attendance.KindNotFound, Message: "student not found"}
}

func (f *fakeService) DeleteStudent(ctx context.Context, id int64) error {
	if _, err := f.GetStudent(ctx, id); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeService) StudentImage(ctx context.Context, id int64) (io.ReadCloser, error) {
	if _, err := f.GetStudent(ctx, id); err != nil {
		return nil, err
	}
	if f.image == "" {
		return nil, &attendance.Error{Kind: attendance.KindNotFound, Message: "image not found"}
	}
	return io.NopCloser(strings.NewReader(f.image)), nil
}

func (f *fakeService) ListAttendance(ctx context.Context) ([]database.AttendanceRecord, error) {
	return f.records, f.serviceErr
}

func (f *fakeService) Stats(ctx context.Context) (*attendance.Stats, error) {
	return f.stats, f.serviceErr
}

func testLogger() *logger.Logger {
	return logger.Nop()
}

var testTime = time.Date(2024, 9, 2, 8, 30, 0, 0, time.UTC)

// multipartRequest builds a multipart POST with the given fields and files.
func multipartRequest(t *testing.T, path string, fields map[string]string, files map[string][]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for field, contents := range files {
		for i, content := range contents {
			part, err := writer.CreateFormFile(field, "photo"+string(rune('a'+i))+".jpg")
			if err != nil {
				t.Fatalf("failed to create form file: %v", err)
			}
			part.Write([]byte(content))
		}
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
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

// decodeError asserts an error response and returns its kind.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder, status int) string {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp["error"] == "" {
		t.Error("expected error message")
	}
	return resp["kind"]
}
