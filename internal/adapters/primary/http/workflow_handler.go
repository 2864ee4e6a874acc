package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/service-desk-workflow/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// WorkflowHandler exposes the workflow definition store read-only.
type WorkflowHandler struct {
	workflows    ports.WorkflowService
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(workflows ports.WorkflowService, errorHandler *ErrorHandler, logger *slog.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		workflows:    workflows,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "workflow"),
	}
}

// RegisterRoutes mounts the routes under /workflows.
func (h *WorkflowHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Get("/{workflowID}", h.HandleGet)
}

// HandleList handles GET /workflows?ticketType=&active=
func (h *WorkflowHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	params := ports.ListWorkflowsParams{
		ActiveOnly: validation.ParseBoolQueryParam(r, "active", false),
	}
	if raw := validation.ParseStringQueryParam(r, "ticketType"); raw != nil {
		tt := domain.TicketType(*raw)
		if !tt.IsValid() {
			v := validation.NewValidator()
			v.Custom("ticketType", false, "Unknown ticket type")
			h.errorHandler.Handle(w, r, v.Errors())
			return
		}
		params.TicketType = &tt
	}

	workflows, err := h.workflows.List(r.Context(), params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteList(w, workflows)
}

// HandleGet handles GET /workflows/{workflowID}
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	workflowID, err := parseIDParam(r, "workflowID")
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	workflow, err := h.workflows.Get(r.Context(), workflowID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, workflow)
}
