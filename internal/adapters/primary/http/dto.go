package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	value := formatTime(*t)
	return &value
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// TicketSLADTO defines the JSON response for an SLA timer.
type TicketSLADTO struct {
	ID                    int64    `json:"id"`
	TicketID              int64    `json:"ticketId"`
	SLADefinitionID       *int64   `json:"slaDefinitionId"`
	Status                string   `json:"status"`
	StartTime             string   `json:"startTime"`
	DueTime               string   `json:"dueTime"`
	TotalPauseSeconds     int64    `json:"totalPauseSeconds"`
	PauseStartTime        *string  `json:"pauseStartTime"`
	PauseReason           string   `json:"pauseReason,omitempty"`
	IsBreached            bool     `json:"isBreached"`
	BreachTime            *string  `json:"breachTime"`
	BreachDurationSeconds int64    `json:"breachDurationSeconds"`
	ActualDurationSeconds *int64   `json:"actualDurationSeconds"`
	CompletedAt           *string  `json:"completedAt"`
	PercentElapsed        *float64 `json:"percentElapsed,omitempty"`
}

func toTicketSLADTO(sla *domain.TicketSLA) TicketSLADTO {
	dto := TicketSLADTO{
		ID:                    sla.ID,
		TicketID:              sla.TicketID,
		SLADefinitionID:       sla.SLADefinitionID,
		Status:                string(sla.Status),
		StartTime:             formatTime(sla.StartTime),
		DueTime:               formatTime(sla.DueTime),
		TotalPauseSeconds:     int64(sla.TotalPauseDuration / time.Second),
		PauseStartTime:        formatTimePtr(sla.PauseStartTime),
		PauseReason:           sla.PauseReason,
		IsBreached:            sla.IsBreached,
		BreachTime:            formatTimePtr(sla.BreachTime),
		BreachDurationSeconds: int64(sla.BreachDuration / time.Second),
		CompletedAt:           formatTimePtr(sla.CompletedAt),
	}
	if sla.ActualDuration != nil {
		seconds := int64(*sla.ActualDuration / time.Second)
		dto.ActualDurationSeconds = &seconds
	}
	return dto
}

// SLAPauseEventDTO defines the JSON response for one pause interval.
type SLAPauseEventDTO struct {
	ID              int64   `json:"id"`
	PausedAt        string  `json:"pausedAt"`
	PauseReason     string  `json:"pauseReason"`
	PausedBy        string  `json:"pausedBy"`
	ResumedAt       *string `json:"resumedAt"`
	DurationSeconds int64   `json:"durationSeconds"`
}

// TicketSLAReportDTO is one timer of a ticket together with its pauses.
type TicketSLAReportDTO struct {
	TicketSLADTO
	Breach      BreachStatusDTO    `json:"breach"`
	PauseEvents []SLAPauseEventDTO `json:"pauseEvents"`
}

func toTicketSLAReportDTO(report *ports.TicketSLAReport) TicketSLAReportDTO {
	dto := TicketSLAReportDTO{
		TicketSLADTO: toTicketSLADTO(report.SLA),
		Breach:       toBreachStatusDTO(&report.Breach),
		PauseEvents:  make([]SLAPauseEventDTO, 0, len(report.PauseEvents)),
	}
	percent := report.Breach.PercentElapsed
	dto.PercentElapsed = &percent
	for _, ev := range report.PauseEvents {
		dto.PauseEvents = append(dto.PauseEvents, SLAPauseEventDTO{
			ID:              ev.ID,
			PausedAt:        formatTime(ev.PausedAt),
			PauseReason:     ev.PauseReason,
			PausedBy:        ev.PausedBy.String(),
			ResumedAt:       formatTimePtr(ev.ResumedAt),
			DurationSeconds: int64(ev.Duration / time.Second),
		})
	}
	return dto
}

// BreachStatusDTO defines the JSON response of a breach check.
type BreachStatusDTO struct {
	SLAID                 int64   `json:"slaId"`
	TicketID              int64   `json:"ticketId"`
	Status                string  `json:"status"`
	IsBreached            bool    `json:"isBreached"`
	NewlyBreached         bool    `json:"newlyBreached"`
	PercentElapsed        float64 `json:"percentElapsed"`
	DueTime               string  `json:"dueTime"`
	RemainingSeconds      int64   `json:"remainingSeconds"`
	BreachTime            *string `json:"breachTime"`
	BreachDurationSeconds int64   `json:"breachDurationSeconds"`
}

func toBreachStatusDTO(b *domain.BreachStatus) BreachStatusDTO {
	return BreachStatusDTO{
		SLAID:                 b.SLAID,
		TicketID:              b.TicketID,
		Status:                string(b.Status),
		IsBreached:            b.IsBreached,
		NewlyBreached:         b.NewlyBreached,
		PercentElapsed:        b.PercentElapsed,
		DueTime:               formatTime(b.DueTime),
		RemainingSeconds:      int64(b.Remaining / time.Second),
		BreachTime:            formatTimePtr(b.BreachTime),
		BreachDurationSeconds: int64(b.BreachDuration / time.Second),
	}
}

// TicketSLAViewDTO is a timer row of the at-risk and breach listings.
type TicketSLAViewDTO struct {
	TicketSLADTO
	TicketKey      string `json:"ticketKey"`
	TicketTitle    string `json:"ticketTitle"`
	TicketType     string `json:"ticketType"`
	TicketPriority string `json:"ticketPriority"`
}

func toTicketSLAViewDTOs(views []*domain.TicketSLAView) []TicketSLAViewDTO {
	out := make([]TicketSLAViewDTO, 0, len(views))
	for _, v := range views {
		dto := TicketSLAViewDTO{
			TicketSLADTO:   toTicketSLADTO(v.SLA),
			TicketKey:      v.TicketKey,
			TicketTitle:    v.TicketTitle,
			TicketType:     string(v.TicketType),
			TicketPriority: string(v.TicketPriority),
		}
		percent := v.PercentElapsed
		dto.PercentElapsed = &percent
		out = append(out, dto)
	}
	return out
}

// SLADefinitionDTO defines the JSON response for a tenant SLA definition.
type SLADefinitionDTO struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	TicketType        *string `json:"ticketType"`
	Priority          string  `json:"priority"`
	ResolutionMinutes int     `json:"resolutionMinutes"`
	IsActive          bool    `json:"isActive"`
}

func toSLADefinitionDTOs(defs []*domain.SLADefinition) []SLADefinitionDTO {
	out := make([]SLADefinitionDTO, 0, len(defs))
	for _, d := range defs {
		dto := SLADefinitionDTO{
			ID:                d.ID,
			Name:              d.Name,
			Priority:          string(d.Priority),
			ResolutionMinutes: d.ResolutionMinutes,
			IsActive:          d.IsActive,
		}
		if d.TicketType != nil {
			tt := string(*d.TicketType)
			dto.TicketType = &tt
		}
		out = append(out, dto)
	}
	return out
}

// ApprovalDTO defines the JSON response for an approval.
type ApprovalDTO struct {
	ID                int64    `json:"id"`
	TicketID          int64    `json:"ticketId"`
	TransitionID      int64    `json:"transitionId"`
	RequestedBy       string   `json:"requestedBy"`
	RequiredApprovers []string `json:"requiredApprovers"`
	Status            string   `json:"status"`
	ApprovedBy        []string `json:"approvedBy"`
	RejectedBy        *string  `json:"rejectedBy"`
	RejectionReason   string   `json:"rejectionReason,omitempty"`
	FromStatus        string   `json:"fromStatus"`
	ToStatus          string   `json:"toStatus"`
	RequestedAt       string   `json:"requestedAt"`
	CompletedAt       *string  `json:"completedAt"`
}

func toApprovalDTO(a *domain.TicketApproval) ApprovalDTO {
	dto := ApprovalDTO{
		ID:                a.ID,
		TicketID:          a.TicketID,
		TransitionID:      a.TransitionID,
		RequestedBy:       a.RequestedBy.String(),
		RequiredApprovers: uuidStrings(a.RequiredApprovers),
		Status:            string(a.Status),
		ApprovedBy:        uuidStrings(a.ApprovedBy),
		RejectionReason:   a.RejectionReason,
		FromStatus:        a.FromStatus,
		ToStatus:          a.ToStatus,
		RequestedAt:       formatTime(a.RequestedAt),
		CompletedAt:       formatTimePtr(a.CompletedAt),
	}
	if a.RejectedBy != nil {
		value := a.RejectedBy.String()
		dto.RejectedBy = &value
	}
	return dto
}

func toApprovalDTOs(approvals []*domain.TicketApproval) []ApprovalDTO {
	out := make([]ApprovalDTO, 0, len(approvals))
	for _, a := range approvals {
		out = append(out, toApprovalDTO(a))
	}
	return out
}

// ApprovalResponseDTO is one recorded approver answer.
type ApprovalResponseDTO struct {
	UserID      string `json:"userId"`
	Response    string `json:"response"`
	Notes       string `json:"notes,omitempty"`
	RespondedAt string `json:"respondedAt"`
}

// ApprovalDetailsDTO is an approval with its responses.
type ApprovalDetailsDTO struct {
	ApprovalDTO
	Responses []ApprovalResponseDTO `json:"responses"`
}

func toApprovalDetailsDTO(d *ports.ApprovalDetails) ApprovalDetailsDTO {
	dto := ApprovalDetailsDTO{
		ApprovalDTO: toApprovalDTO(d.Approval),
		Responses:   make([]ApprovalResponseDTO, 0, len(d.Responses)),
	}
	for _, resp := range d.Responses {
		dto.Responses = append(dto.Responses, ApprovalResponseDTO{
			UserID:      resp.UserID.String(),
			Response:    string(resp.Decision),
			Notes:       resp.Notes,
			RespondedAt: formatTime(resp.RespondedAt),
		})
	}
	return dto
}

// ApprovalOutcomeDTO is returned to the responder.
type ApprovalOutcomeDTO struct {
	Result        string      `json:"result"`
	TicketStatus  string      `json:"ticketStatus"`
	ApprovedCount int         `json:"approvedCount"`
	RequiredCount int         `json:"requiredCount"`
	Approval      ApprovalDTO `json:"approval"`
}

func toApprovalOutcomeDTO(o *domain.ApprovalOutcome) ApprovalOutcomeDTO {
	return ApprovalOutcomeDTO{
		Result:        string(o.Result),
		TicketStatus:  o.TicketStatus,
		ApprovedCount: o.ApprovedCount,
		RequiredCount: o.RequiredCount,
		Approval:      toApprovalDTO(o.Approval),
	}
}

// TransitionOutcomeDTO is returned after a transition request.
type TransitionOutcomeDTO struct {
	Result     string `json:"result"`
	TicketID   int64  `json:"ticketId"`
	NewStatus  string `json:"newStatus"`
	ApprovalID *int64 `json:"approvalId,omitempty"`
}

func toTransitionOutcomeDTO(ticketID int64, o *domain.TransitionOutcome) TransitionOutcomeDTO {
	dto := TransitionOutcomeDTO{
		Result:    string(o.Result),
		TicketID:  ticketID,
		NewStatus: o.NewStatus,
	}
	if o.ApprovalID != 0 {
		id := o.ApprovalID
		dto.ApprovalID = &id
	}
	return dto
}

// TransitionHistoryDTO is one entry of the transition log.
type TransitionHistoryDTO struct {
	ID           int64          `json:"id"`
	TransitionID *int64         `json:"transitionId"`
	FromStatus   string         `json:"fromStatus"`
	ToStatus     string         `json:"toStatus"`
	PerformedBy  string         `json:"performedBy"`
	Comment      string         `json:"comment,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"createdAt"`
}

func toTransitionHistoryDTOs(history []*domain.TransitionHistory) []TransitionHistoryDTO {
	out := make([]TransitionHistoryDTO, 0, len(history))
	for _, h := range history {
		out = append(out, TransitionHistoryDTO{
			ID:           h.ID,
			TransitionID: h.TransitionID,
			FromStatus:   h.FromStatus,
			ToStatus:     h.ToStatus,
			PerformedBy:  h.PerformedBy.String(),
			Comment:      h.Comment,
			Metadata:     h.Metadata,
			CreatedAt:    formatTime(h.CreatedAt),
		})
	}
	return out
}
