package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/attendance/internal/web/handlers"
	"github.com/kozaktomas/attendance/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	attendanceHandler := handlers.NewAttendanceHandler(s.service, s.detector, s.intake)
	classroomsHandler := handlers.NewClassroomsHandler(s.service)
	studentsHandler := handlers.NewStudentsHandler(s.service, s.detector, s.intake)

	// Health check (no owner required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOwner())

			// Attendance
			r.Post("/classrooms/{classroomID}/attendance/capture", attendanceHandler.Capture)
			r.Post("/classrooms/{classroomID}/attendance/probes", attendanceHandler.Probes)
			r.Post("/classrooms/{classroomID}/attendance/manual", attendanceHandler.Manual)
			r.Post("/classrooms/{classroomID}/attendance/absent", attendanceHandler.Absent)
			r.Get("/classrooms/{classroomID}/attendance", attendanceHandler.Status)
			r.Get("/classrooms/{classroomID}/attendance/events", attendanceHandler.Events)
			r.Get("/classrooms/{classroomID}/attendance/range", attendanceHandler.Range)

			// Roster and diagnostics
			r.Get("/classrooms/{classroomID}/students", classroomsHandler.Students)
			r.Post("/classrooms/{classroomID}/identify", classroomsHandler.Identify)
			r.Get("/classrooms/{classroomID}/encodings", classroomsHandler.Encodings)

			// Students
			r.Post("/students/encodings/migrate", studentsHandler.MigrateEncodings)
			r.Get("/students/{studentID}/attendance", studentsHandler.History)
			r.Put("/students/{studentID}/face", studentsHandler.EnrollFace)
		})
	})
}
