package inquiries

import (
	"github.com/go-chi/chi/v5"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/inquiries/{id}", h.Show)
	r.Get("/customers/{id}/inquiries", h.ListByCustomer)
}
