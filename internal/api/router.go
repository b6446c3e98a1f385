package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/basket/internal/session"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(mgr *session.Manager, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(mgr)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/lists", func(r chi.Router) {
		r.Get("/", h.ListLists)
		r.Post("/", h.CreateList)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetList)
			r.Patch("/", h.UpdateList)
			r.Delete("/", h.DeleteList)

			r.Post("/items", h.AddItem)
			r.Patch("/items/{canonicalID}", h.UpdateItem)
			r.Delete("/items/{canonicalID}", h.RemoveItem)

			r.Post("/optimize", h.Optimize)
			r.Get("/kpis", h.KPIs)
		})
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
