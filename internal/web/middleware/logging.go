package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-attendance/internal/logger"
)

// RequestLogger logs one line per request through log.
// Panics are logged here and left to Recoverer to answer.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return chiMiddleware.RequestLogger(&logFormatter{log: log})
}

type logFormatter struct {
	log *logger.Logger
}

func (f *logFormatter) NewLogEntry(r *http.Request) chiMiddleware.LogEntry {
	return &logEntry{
		log: f.log.With(
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"request_id", chiMiddleware.GetReqID(r.Context()),
		),
	}
}

type logEntry struct {
	log *slog.Logger
}

func (e *logEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	args := []any{"status", status, "bytes", bytes, "duration", elapsed}
	if status >= http.StatusInternalServerError {
		e.log.Warn("request", args...)
		return
	}
	e.log.Info("request", args...)
}

func (e *logEntry) Panic(v interface{}, stack []byte) {
	e.log.Error("request panicked", "panic", v, "stack", string(stack))
}
