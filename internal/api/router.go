package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(s.accessLog)
	r.Use(s.recoveryMiddleware)
	r.Use(corsMiddleware)
	r.Use(middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		// Read-only endpoints (no auth required)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/sauna", s.handleGetSauna)
		r.Get("/sensors", s.handleListSensors)
		r.Get("/actions", s.handleListActions)
		r.Get("/scenes", s.handleListScenes)
		r.Get("/scenes/{id}", s.handleGetScene)
		r.Get("/history", s.handleHistory)

		// WebSocket (auth via ticket when a secret is configured)
		r.Get("/ws", s.handleWebSocket)

		// Mutating endpoints
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Post("/poll", s.handleRequestPoll)
			r.Post("/actions/{id}", s.handleExecuteAction)
			r.Post("/scenes/{id}/call", s.handleCallScene)
			r.Post("/scenes/{id}/save", s.handleSaveScene)
		})
	})

	return r
}

// handleHealth returns the bridge health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.sauna.HealthSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"bridge":         snap.Status,
		"reason":         snap.Reason,
		"session_active": snap.SessionActive,
	})
}
