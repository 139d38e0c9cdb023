package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter mounts the status API. Report and command routes, and the
// stream, sit behind authMiddleware; reads are open.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/services", func(r chi.Router) {
			r.Get("/", s.handleListServices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetService)

				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)
					r.Post("/report", s.handleReportService)
					r.Post("/commands/{name}", s.handleInvokeCommand)
				})
			})
		})

		r.With(s.authMiddleware).Get("/stream", s.handleStream)
	})

	return r
}
