package api

import (
	"net/http"

	"github.com/Tyrowin/relaychat/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the application router. Every route registered here
// requires a credential; callers add public routes to the returned router.
func NewRouter(h *Handler, validator auth.TokenValidator, corsOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(validator, h.log))

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.listConversations)
			r.Post("/", h.createConversation)
			r.Post("/messages", h.sendMessage)
			r.Get("/{id}", h.getConversation)
			r.Delete("/{id}", h.deleteConversation)
			r.Post("/{id}/accept", h.acceptConversation)
			r.Get("/{id}/messages", h.listMessages)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.listNotifications)
			r.Patch("/read-all", h.markAllNotificationsRead)
			r.Patch("/{id}/read", h.markNotificationRead)
			r.Delete("/{id}", h.deleteNotification)
		})

		r.Post("/users/batch", h.batchUsers)
	})

	return r
}
