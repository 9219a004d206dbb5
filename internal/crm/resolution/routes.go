package resolution

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/resolution/sessions", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Get("/{id}", h.Show)
		r.Post("/{id}/select", h.Select)
		r.Post("/{id}/create-customer", h.CreateCustomer)
		r.Post("/{id}/update-decision", h.UpdateDecision)
		r.Post("/{id}/commit", h.Commit)
		r.Post("/{id}/cancel", h.Cancel)
	})
}
