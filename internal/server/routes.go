package server

import "github.com/go-chi/chi/v5"

func (s *Server) routes(r chi.Router) {
	r.Get("/health", s.handleHealth)

	r.Route("/session", func(r chi.Router) {
		r.Post("/start", s.handleSessionStart)
		r.Get("/status", s.handleSessionStatus)
		r.Post("/prompt", s.handlePrompt)
		r.Post("/fulfill", s.handleFulfill)
		r.Delete("/", s.handleSessionClear)
		r.Get("/yolo", s.handleYoloGet)
		r.Put("/yolo", s.handleYoloSet)
		r.Post("/model", s.handleModelSet)
	})

	r.Route("/trust", func(r chi.Router) {
		r.Get("/", s.handleTrustList)
		r.Post("/", s.handleTrustAdd)
		r.Delete("/", s.handleTrustRevoke)
	})

	r.Get("/event", s.handleEvents)
}
