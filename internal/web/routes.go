package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	matchHandler := handlers.NewMatchHandler(s.service, s.log)
	studentsHandler := handlers.NewStudentsHandler(s.service, s.log)
	attendanceHandler := handlers.NewAttendanceHandler(s.service, s.log)

	// No auth required
	s.router.Get("/", handlers.Index)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	api := func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		r.Post("/match", matchHandler.Match)

		r.Post("/students", studentsHandler.Register)
		r.Get("/students", studentsHandler.List)
		r.Get("/students/{id}", studentsHandler.Get)
		r.Get("/students/{id}/image", studentsHandler.Image)
		r.Delete("/students/{id}", studentsHandler.Delete)

		r.Get("/attendance", attendanceHandler.List)
		r.Get("/stats", attendanceHandler.Stats)
	}

	s.router.Route("/api/v1", api)

	// Unversioned paths kept for existing camera clients.
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))
		r.Post("/match", matchHandler.Match)
		r.Post("/students", studentsHandler.Register)
		r.Get("/attendance", attendanceHandler.List)
	})
}
