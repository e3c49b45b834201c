package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every route. metricsHandler may be nil.
func NewRouter(apiHandler *APIHandler, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiHandler.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.With(apiHandler.OptionalSession).Get("/", apiHandler.PageHandler)
	r.With(apiHandler.RequireSession).Get("/events", apiHandler.EventsHandler)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", apiHandler.LoginHandler)
		r.Get("/google/callback", apiHandler.CallbackHandler)
		r.With(apiHandler.OptionalSession).Post("/signout", apiHandler.SignOutHandler)
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.RequireSession)

			r.Get("/me", apiHandler.MeHandler)
			r.Get("/view", apiHandler.ViewHandler)
			r.Get("/messages", apiHandler.ListMessagesHandler)
			r.Post("/feedback", apiHandler.FeedbackHandler)

			// Generation endpoints
			r.Group(func(r chi.Router) {
				if apiHandler.limiter != nil {
					r.Use(apiHandler.limiter.Middleware)
				}
				r.Post("/messages", apiHandler.PostMessageHandler)
				r.Post("/predictions", apiHandler.CreatePredictionHandler)
			})
		})
	})

	return r
}
