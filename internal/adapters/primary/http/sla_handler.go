package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/service-desk-workflow/internal/adapters/primary/validation"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

const maxBreachesPerPage = 100

// SLAHandler exposes the SLA timer. Ticket routes act on the ticket's active timer.
type SLAHandler struct {
	slas         ports.SLAService
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewSLAHandler creates a new SLA handler
func NewSLAHandler(slas ports.SLAService, errorHandler *ErrorHandler, logger *slog.Logger) *SLAHandler {
	return &SLAHandler{
		slas:         slas,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "sla"),
	}
}

// RegisterTicketRoutes mounts the routes under /tickets/{ticketID}.
func (h *SLAHandler) RegisterTicketRoutes(r chi.Router) {
	r.Route("/sla", func(r chi.Router) {
		r.Get("/", h.HandleGetTicketSLAs)
		r.Post("/start", h.HandleStart)
		r.Post("/pause", h.HandlePause)
		r.Post("/resume", h.HandleResume)
		r.Post("/check", h.HandleCheck)
		r.Post("/complete", h.HandleComplete)
		r.Post("/restart", h.HandleRestart)
	})
}

// RegisterRoutes mounts the tenant-wide listings under /sla.
func (h *SLAHandler) RegisterRoutes(r chi.Router) {
	r.Get("/at-risk", h.HandleAtRisk)
	r.Get("/breaches", h.HandleBreaches)
	r.Get("/definitions", h.HandleDefinitions)
}

// PauseSLARequest defines the expected JSON body for pausing a timer
type PauseSLARequest struct {
	Reason string `json:"reason"`
}

// Validate validates the pause request
func (r *PauseSLARequest) Validate() error {
	v := validation.NewValidator()
	v.Required("reason", r.Reason).MaxLength("reason", r.Reason, maxCommentLength)
	return v.Err()
}

// HandleGetTicketSLAs handles GET /tickets/{ticketID}/sla
func (h *SLAHandler) HandleGetTicketSLAs(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.ticketRequest(w, r)
	if !ok {
		return
	}

	reports, err := h.slas.GetTicketSLAs(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	out := make([]TicketSLAReportDTO, 0, len(reports))
	for _, report := range reports {
		out = append(out, toTicketSLAReportDTO(report))
	}
	WriteList(w, out)
}

// HandleStart handles POST /tickets/{ticketID}/sla/start
func (h *SLAHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.ticketRequest(w, r)
	if !ok {
		return
	}

	sla, err := h.slas.Start(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteCreated(w, toTicketSLADTO(sla))
}

// HandlePause handles POST /tickets/{ticketID}/sla/pause
func (h *SLAHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.ticketRequest(w, r)
	if !ok {
		return
	}

	req, err := validation.DecodeAndValidate[PauseSLARequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	active, err := h.slas.ActiveForTicket(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	sla, err := h.slas.Pause(r.Context(), ports.PauseSLAParams{
		SLAID:  active.ID,
		Actor:  actor,
		Reason: req.Reason,
	})
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toTicketSLADTO(sla))
}

// HandleResume handles POST /tickets/{ticketID}/sla/resume
func (h *SLAHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.withActiveTimer(w, r, func(actor domain.Actor, slaID int64) (any, error) {
		sla, err := h.slas.Resume(r.Context(), slaID, actor)
		if err != nil {
			return nil, err
		}
		return toTicketSLADTO(sla), nil
	})
}

// HandleCheck handles POST /tickets/{ticketID}/sla/check
func (h *SLAHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	h.withActiveTimer(w, r, func(actor domain.Actor, slaID int64) (any, error) {
		status, err := h.slas.CheckBreach(r.Context(), slaID, actor)
		if err != nil {
			return nil, err
		}
		return toBreachStatusDTO(status), nil
	})
}

// HandleComplete handles POST /tickets/{ticketID}/sla/complete
func (h *SLAHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.withActiveTimer(w, r, func(actor domain.Actor, slaID int64) (any, error) {
		sla, err := h.slas.Complete(r.Context(), slaID, actor)
		if err != nil {
			return nil, err
		}
		return toTicketSLADTO(sla), nil
	})
}

// HandleRestart handles POST /tickets/{ticketID}/sla/restart
func (h *SLAHandler) HandleRestart(w http.ResponseWriter, r *http.Request) {
	actor, ticketID, ok := h.ticketRequest(w, r)
	if !ok {
		return
	}

	sla, err := h.slas.Restart(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteCreated(w, toTicketSLADTO(sla))
}

// HandleAtRisk handles GET /sla/at-risk
func (h *SLAHandler) HandleAtRisk(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return
	}

	v := validation.NewValidator()
	threshold := validation.ParseFloatQueryParam(r, v, "threshold")
	if threshold != 0 {
		v.Range("threshold", threshold, 0, 100)
	}
	if err := v.Err(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	views, err := h.slas.AtRisk(r.Context(), actor, threshold)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteList(w, toTicketSLAViewDTOs(views))
}

// HandleBreaches handles GET /sla/breaches
func (h *SLAHandler) HandleBreaches(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return
	}

	pagination := validation.ParsePagination(r, maxBreachesPerPage)
	query := ports.ListBreachesQuery{
		Actor:  actor,
		Days:   validation.ParseIntQueryParam(r, "days", 0),
		Limit:  pagination.Limit + 1,
		Offset: pagination.Offset,
	}

	v := validation.NewValidator()
	if raw := validation.ParseStringQueryParam(r, "ticketType"); raw != nil {
		tt := domain.TicketType(*raw)
		v.Custom("ticketType", tt.IsValid(), "Unknown ticket type")
		query.TicketType = &tt
	}
	if raw := validation.ParseStringQueryParam(r, "priority"); raw != nil {
		p := domain.TicketPriority(*raw)
		v.Custom("priority", p.IsValid(), "Unknown priority")
		query.Priority = &p
	}
	if err := v.Err(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	views, err := h.slas.Breaches(r.Context(), query)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WritePaginatedSimple(w, toTicketSLAViewDTOs(views), pagination.Limit, pagination.Offset)
}

// HandleDefinitions handles GET /sla/definitions
func (h *SLAHandler) HandleDefinitions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return
	}

	var params ports.ListSLADefinitionsParams
	v := validation.NewValidator()
	if raw := validation.ParseStringQueryParam(r, "ticketType"); raw != nil {
		tt := domain.TicketType(*raw)
		v.Custom("ticketType", tt.IsValid(), "Unknown ticket type")
		params.TicketType = &tt
	}
	if raw := validation.ParseStringQueryParam(r, "active"); raw != nil {
		active, err := strconv.ParseBool(*raw)
		v.Custom("active", err == nil, "Must be true or false")
		params.Active = &active
	}
	if err := v.Err(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	defs, err := h.slas.Definitions(r.Context(), actor, params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteList(w, toSLADefinitionDTOs(defs))
}

func (h *SLAHandler) ticketRequest(w http.ResponseWriter, r *http.Request) (domain.Actor, int64, bool) {
	actor, ok := requireActor(w, r, h.errorHandler)
	if !ok {
		return domain.Actor{}, 0, false
	}
	ticketID, err := parseIDParam(r, "ticketID")
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return domain.Actor{}, 0, false
	}
	return actor, ticketID, true
}

// withActiveTimer resolves the ticket's active timer and writes fn's result.
func (h *SLAHandler) withActiveTimer(w http.ResponseWriter, r *http.Request, fn func(actor domain.Actor, slaID int64) (any, error)) {
	actor, ticketID, ok := h.ticketRequest(w, r)
	if !ok {
		return
	}

	active, err := h.slas.ActiveForTicket(r.Context(), ticketID, actor)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	out, err := fn(actor, active.ID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}
