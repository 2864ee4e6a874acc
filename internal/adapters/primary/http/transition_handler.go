package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/service-desk-workflow/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

const maxCommentLength = 10000

// TransitionHandler exposes the transition engine for a ticket.
type TransitionHandler struct {
	transitions  ports.TransitionService
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewTransitionHandler creates a new transition handler
func NewTransitionHandler(transitions ports.TransitionService, errorHandler *ErrorHandler, logger *slog.Logger) *TransitionHandler {
	return &TransitionHandler{
		transitions:  transitions,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "transition"),
	}
}

// RegisterRoutes mounts the routes under /tickets/{ticketID}.
func (h *TransitionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/transitions", h.HandleListValid)
	r.Post("/transitions", h.HandleRequestTransition)
	r.Get("/transitions/history", h.HandleListHistory)
}

// RequestTransitionRequest defines the expected JSON body for firing a transition
type RequestTransitionRequest struct {
	TransitionID int64          `json:"transitionId"`
	Comment      string         `json:"comment"`
	Metadata     map[string]any `json:"metadata"`
}

// Validate validates the transition request
func (r *RequestTransitionRequest) Validate() error {
	v := validation.NewValidator()
	v.Positive("transitionId", r.TransitionID).
		MaxLength("comment", r.Comment, maxCommentLength)
	return v.Err()
}

// HandleListValid handles GET /tickets/{ticketID}/transitions
func (h *TransitionHandler) HandleListValid(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return
	}
	ticketID, err := parseIDParam(r, "ticketID")
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	valid, err := h.transitions.GetValidTransitions(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteList(w, valid)
}

// HandleRequestTransition handles POST /tickets/{ticketID}/transitions
func (h *TransitionHandler) HandleRequestTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return
	}
	ticketID, err := parseIDParam(r, "ticketID")
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	req, err := validation.DecodeAndValidate[RequestTransitionRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	outcome, err := h.transitions.RequestTransition(r.Context(), ports.RequestTransitionParams{
		TicketID:     ticketID,
		TransitionID: req.TransitionID,
		Actor:        actor,
		Comment:      req.Comment,
		Metadata:     req.Metadata,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "transition requested",
		"ticket_id", ticketID,
		"transition_id", req.TransitionID,
		"result", outcome.Result,
	)

	status := http.StatusOK
	if outcome.ApprovalID != 0 {
		status = http.StatusAccepted
	}
	WriteJSON(w, status, toTransitionOutcomeDTO(ticketID, outcome))
}

// HandleListHistory handles GET /tickets/{ticketID}/transitions/history
func (h *TransitionHandler) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return
	}
	ticketID, err := parseIDParam(r, "ticketID")
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	history, err := h.transitions.ListHistory(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteList(w, toTransitionHistoryDTOs(history))
}
