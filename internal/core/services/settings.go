package services

import (
	"log/slog"

	"github.com/lorrc/service-desk-workflow/internal/core/domain"
)

// Settings are the engine knobs loaded from configuration.
type Settings struct {
	// SuperuserRole bypasses every transition role guard.
	SuperuserRole string
	// DefaultApprovalRole is used when a guarded transition names no approval role.
	DefaultApprovalRole string
	// ApprovalPoolSize caps how many approvers are frozen into one approval.
	ApprovalPoolSize int
	// AtRiskThreshold is the percent elapsed used when a caller gives none.
	AtRiskThreshold float64
	// ResolvedStatuses complete the running SLA when a ticket enters them.
	ResolvedStatuses []string
}

// DefaultSettings returns the settings used when configuration is silent.
func DefaultSettings() Settings {
	return Settings{
		SuperuserRole:       "super_admin",
		DefaultApprovalRole: "admin",
		ApprovalPoolSize:    3,
		AtRiskThreshold:     domain.DefaultAtRiskThreshold,
		ResolvedStatuses:    []string{"resolved", "closed", "done", "cancelled"},
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.DefaultApprovalRole == "" {
		s.DefaultApprovalRole = def.DefaultApprovalRole
	}
	if s.ApprovalPoolSize <= 0 {
		s.ApprovalPoolSize = def.ApprovalPoolSize
	}
	if s.AtRiskThreshold <= 0 || s.AtRiskThreshold > 100 {
		s.AtRiskThreshold = def.AtRiskThreshold
	}
	if len(s.ResolvedStatuses) == 0 {
		s.ResolvedStatuses = def.ResolvedStatuses
	}
	return s
}

func componentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", component)
}
