package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"bidsia.com/bids-assistant/internal/logging"
)

func NewRouter(apiHandler *APIHandler, allowedOrigins []string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Get("/health", apiHandler.HealthHandler)
		r.Post("/login", apiHandler.LoginHandler)

		// Session-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.SessionAuthMiddleware)

			r.Post("/logout", apiHandler.LogoutHandler)
			r.Get("/me", apiHandler.MeHandler)

			r.Post("/documents", apiHandler.UploadDocumentsHandler)
			r.Get("/documents", apiHandler.ListDocumentsHandler)

			r.Get("/chat/messages", apiHandler.ListMessagesHandler)
			r.Post("/chat/messages", apiHandler.PostMessageHandler)
			r.Delete("/chat/messages", apiHandler.ClearMessagesHandler)

			// Admin panel
			r.Group(func(r chi.Router) {
				r.Use(apiHandler.RequireAdmin)
				r.Get("/instructions", apiHandler.GetInstructionsHandler)
				r.Put("/instructions", apiHandler.SaveInstructionsHandler)
			})
		})
	})

	return r
}
