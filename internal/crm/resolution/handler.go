package resolution

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/crm/customers"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

type Handler struct {
	logger    *slog.Logger
	workflow  *Workflow
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, workflow *Workflow) *Handler {
	return &Handler{
		logger:    logger,
		workflow:  workflow,
		validator: validator.New(),
	}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sess, err := h.workflow.Start(r.Context(), req)
	if err != nil {
		h.logger.Error("start resolution session failed", "error", err)
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, sess)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	sess, err := h.workflow.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sess, err := h.workflow.Select(r.Context(), chi.URLParam(r, "id"), req.CustomerID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req customers.CreateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}

	sess, err := h.workflow.CreateCustomer(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.logger.Error("create customer decision failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) UpdateDecision(w http.ResponseWriter, r *http.Request) {
	var req UpdateDecisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	sess, err := h.workflow.DecideUpdate(r.Context(), chi.URLParam(r, "id"), req.Decision)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	committed, err := h.workflow.Commit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("commit inquiry failed", "error", err)
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"inquiries": committed})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.workflow.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
