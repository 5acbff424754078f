package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagetutor/pagetutor/internal/api"
	"github.com/pagetutor/pagetutor/internal/api/handlers"
	"github.com/pagetutor/pagetutor/internal/api/middleware"
)

type RouterConfig struct {
	APIKey           string
	MaxBodyBytes     int64
	DocumentHandler  *handlers.DocumentHandler
	RetrievalHandler *handlers.RetrievalHandler
	ChatHandler      *handlers.ChatHandler
	StudyHandler     *handlers.StudyHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = 64 * 1024 * 1024
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Upload)
			r.Get("/", cfg.DocumentHandler.List)
			r.Get("/{id}", cfg.DocumentHandler.Get)
			r.Delete("/{id}", cfg.DocumentHandler.Delete)
			r.Get("/{id}/download", cfg.DocumentHandler.Download)

			r.Post("/{id}/search", cfg.RetrievalHandler.Search)

			r.Post("/{id}/ask", cfg.ChatHandler.Ask)
			r.Get("/{id}/history", cfg.ChatHandler.History)

			r.Post("/{id}/notes", cfg.StudyHandler.Notes)
			r.Post("/{id}/quiz", cfg.StudyHandler.Quiz)
			r.Get("/{id}/artifacts", cfg.StudyHandler.Artifacts)
		})
	})

	return r
}
