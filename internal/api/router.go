package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tasknotes/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/tasks", h.ListNotes)
	r.Get("/tasks/search", h.Search)

	r.Route("/tasks/{taskID}/notes", func(r chi.Router) {
		r.Post("/", h.CreateNote)
		r.Get("/", h.GetNote)
		r.Put("/", h.PutNote)
		r.Delete("/", h.DeleteNote)

		r.Get("/raw", h.GetRaw)
		r.Put("/raw", h.PutRaw)
		r.Post("/convert", h.Convert)

		r.Post("/items", h.AddItem)
		r.Patch("/items/{itemID}", h.PatchItem)
		r.Delete("/items/{itemID}", h.DeleteItem)
		r.Post("/items/{itemID}/move", h.MoveItem)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
