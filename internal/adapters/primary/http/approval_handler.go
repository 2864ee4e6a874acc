package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/service-desk-workflow/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// ApprovalHandler exposes the approval coordinator.
type ApprovalHandler struct {
	approvals    ports.ApprovalService
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewApprovalHandler creates a new approval handler
func NewApprovalHandler(approvals ports.ApprovalService, errorHandler *ErrorHandler, logger *slog.Logger) *ApprovalHandler {
	return &ApprovalHandler{
		approvals:    approvals,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "approval"),
	}
}

// RegisterRoutes mounts the routes under /approvals.
func (h *ApprovalHandler) RegisterRoutes(r chi.Router) {
	r.Get("/pending", h.HandleListPending)
	r.Route("/{approvalID}", func(r chi.Router) {
		r.Get("/", h.HandleGetApproval)
		r.Post("/respond", h.HandleRespond)
	})
}

// RespondRequest defines the expected JSON body for answering an approval
type RespondRequest struct {
	Response string `json:"response"`
	Notes    string `json:"notes"`
}

// Validate validates the respond request
func (r *RespondRequest) Validate() error {
	v := validation.NewValidator()
	v.Required("response", r.Response).
		OneOf("response", r.Response, []string{string(domain.DecisionApproved), string(domain.DecisionRejected)}).
		MaxLength("notes", r.Notes, maxCommentLength)
	return v.Err()
}

// HandleListPending handles GET /approvals/pending
func (h *ApprovalHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return
	}

	pending, err := h.approvals.ListPending(r.Context(), actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteList(w, toApprovalDTOs(pending))
}

// HandleGetApproval handles GET /approvals/{approvalID}
func (h *ApprovalHandler) HandleGetApproval(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return
	}
	approvalID, err := parseIDParam(r, "approvalID")
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	details, err := h.approvals.GetApproval(r.Context(), approvalID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toApprovalDetailsDTO(details))
}

// HandleRespond handles POST /approvals/{approvalID}/respond
func (h *ApprovalHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return
	}
	approvalID, err := parseIDParam(r, "approvalID")
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	req, err := validation.DecodeAndValidate[RespondRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	outcome, err := h.approvals.RespondToApproval(r.Context(), ports.RespondToApprovalParams{
		ApprovalID: approvalID,
		Actor:      actor,
		Decision:   domain.Decision(req.Response),
		Notes:      req.Notes,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "approval response recorded",
		"approval_id", approvalID,
		"decision", req.Response,
		"result", outcome.Result,
	)
	WriteJSON(w, http.StatusOK, toApprovalOutcomeDTO(outcome))
}
