// Package workflowdef loads workflow definitions, and optionally tenant seed data,
// from YAML files.
package workflowdef

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// File is the on-disk shape of a definition file.
type File struct {
	OrganizationID string         `yaml:"organization_id,omitempty"`
	Workflows      []WorkflowSpec `yaml:"workflows"`
	SLADefinitions []SLASpec      `yaml:"sla_definitions,omitempty"`
	Users          []UserSpec     `yaml:"users,omitempty"`
	Tickets        []TicketSpec   `yaml:"tickets,omitempty"`
	Extra          map[string]any `yaml:",inline"`
}

type WorkflowSpec struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description,omitempty"`
	TicketType  string           `yaml:"ticket_type"`
	Statuses    []string         `yaml:"statuses"`
	Transitions []TransitionSpec `yaml:"transitions"`
}

type TransitionSpec struct {
	Name             string              `yaml:"name"`
	From             string              `yaml:"from"`
	To               string              `yaml:"to"`
	RequiredRole     string              `yaml:"required_role,omitempty"`
	RequiredFields   []string            `yaml:"required_fields,omitempty"`
	RequiresApproval bool                `yaml:"requires_approval,omitempty"`
	ApprovalRole     string              `yaml:"approval_role,omitempty"`
	Actions          []domain.ActionSpec `yaml:"actions,omitempty"`
}

type SLASpec struct {
	Name              string `yaml:"name"`
	TicketType        string `yaml:"ticket_type,omitempty"`
	Priority          string `yaml:"priority"`
	ResolutionMinutes int    `yaml:"resolution_minutes"`
	Active            *bool  `yaml:"active,omitempty"`
}

type UserSpec struct {
	ID       string `yaml:"id"`
	FullName string `yaml:"full_name"`
	Email    string `yaml:"email"`
	Role     string `yaml:"role"`
	Active   *bool  `yaml:"active,omitempty"`
}

type TicketSpec struct {
	Key         string `yaml:"key"`
	Type        string `yaml:"type"`
	Title       string `yaml:"title"`
	Description string `yaml:"description,omitempty"`
	Status      string `yaml:"status,omitempty"`
	Priority    string `yaml:"priority"`
	ReporterID  string `yaml:"reporter_id"`
	AssigneeID  string `yaml:"assignee_id,omitempty"`
	Resolution  string `yaml:"resolution,omitempty"`
}

// Bundle is a parsed and validated definition file.
type Bundle struct {
	OrganizationID uuid.UUID
	Workflows      []*domain.Workflow
	SLADefinitions []*domain.SLADefinition
	Users          []*domain.DirectoryUser
	Tickets        []*domain.Ticket
}

// Parse decodes and validates a definition file. Unknown keys are rejected except
// top-level ones, which may hold YAML anchors.
func Parse(r io.Reader) (*Bundle, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decode definitions: empty document")
		}
		return nil, fmt.Errorf("decode definitions: %w", err)
	}
	return f.Bundle()
}

// LoadFile parses the definition file at path.
func LoadFile(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions file: %w", err)
	}
	b, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// Defaults returns the built-in workflows for every ticket type.
func Defaults() (*Bundle, error) {
	return Parse(bytes.NewReader(defaultsYAML))
}

// Bundle converts the file into domain values, validating every workflow graph.
func (f *File) Bundle() (*Bundle, error) {
	b := &Bundle{}

	for i, ws := range f.Workflows {
		wf, err := ws.workflow()
		if err != nil {
			return nil, fmt.Errorf("workflows[%d]: %w", i, err)
		}
		b.Workflows = append(b.Workflows, wf)
	}

	needsOrg := len(f.SLADefinitions) > 0 || len(f.Users) > 0 || len(f.Tickets) > 0
	if f.OrganizationID != "" {
		org, err := uuid.Parse(f.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("organization_id: %w", err)
		}
		b.OrganizationID = org
	} else if needsOrg {
		return nil, errors.New("organization_id is required when seeding tenant data")
	}

	for i, s := range f.SLADefinitions {
		def, err := s.definition(b.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("sla_definitions[%d]: %w", i, err)
		}
		b.SLADefinitions = append(b.SLADefinitions, def)
	}
	for i, s := range f.Users {
		u, err := s.user(b.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("users[%d]: %w", i, err)
		}
		b.Users = append(b.Users, u)
	}
	for i, s := range f.Tickets {
		t, err := s.ticket(b.OrganizationID, b.Workflows)
		if err != nil {
			return nil, fmt.Errorf("tickets[%d]: %w", i, err)
		}
		b.Tickets = append(b.Tickets, t)
	}
	return b, nil
}

func (s WorkflowSpec) workflow() (*domain.Workflow, error) {
	wf := &domain.Workflow{
		Name:        s.Name,
		Description: s.Description,
		TicketType:  domain.TicketType(s.TicketType),
		Statuses:    append([]string(nil), s.Statuses...),
	}
	for j, ts := range s.Transitions {
		actions, err := domain.ActionListFromSpecs(ts.Actions)
		if err != nil {
			return nil, fmt.Errorf("transition %d (%s): %w", j, ts.Name, err)
		}
		wf.Transitions = append(wf.Transitions, domain.Transition{
			Name:             ts.Name,
			FromStatus:       ts.From,
			ToStatus:         ts.To,
			RequiredRole:     ts.RequiredRole,
			RequiredFields:   append([]string(nil), ts.RequiredFields...),
			RequiresApproval: ts.RequiresApproval,
			ApprovalRole:     ts.ApprovalRole,
			Actions:          actions,
		})
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

func (s SLASpec) definition(org uuid.UUID) (*domain.SLADefinition, error) {
	priority := domain.TicketPriority(s.Priority)
	if !priority.IsValid() {
		return nil, fmt.Errorf("unknown priority %q", s.Priority)
	}
	if s.ResolutionMinutes <= 0 {
		return nil, errors.New("resolution_minutes must be positive")
	}
	def := &domain.SLADefinition{
		OrganizationID:    org,
		Name:              s.Name,
		Priority:          priority,
		ResolutionMinutes: s.ResolutionMinutes,
		IsActive:          s.Active == nil || *s.Active,
	}
	if s.TicketType != "" {
		tt := domain.TicketType(s.TicketType)
		if !tt.IsValid() {
			return nil, fmt.Errorf("unknown ticket type %q", s.TicketType)
		}
		def.TicketType = &tt
	}
	return def, nil
}

func (s UserSpec) user(org uuid.UUID) (*domain.DirectoryUser, error) {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return nil, fmt.Errorf("id: %w", err)
	}
	if s.Role == "" {
		return nil, errors.New("role is required")
	}
	return &domain.DirectoryUser{
		ID:             id,
		OrganizationID: org,
		FullName:       s.FullName,
		Email:          s.Email,
		Role:           s.Role,
		IsActive:       s.Active == nil || *s.Active,
	}, nil
}

// ticket defaults the status to the first status of the file's workflow for the type.
func (s TicketSpec) ticket(org uuid.UUID, workflows []*domain.Workflow) (*domain.Ticket, error) {
	tt := domain.TicketType(s.Type)
	if !tt.IsValid() {
		return nil, fmt.Errorf("unknown ticket type %q", s.Type)
	}
	priority := domain.TicketPriority(s.Priority)
	if !priority.IsValid() {
		return nil, fmt.Errorf("unknown priority %q", s.Priority)
	}
	reporter, err := uuid.Parse(s.ReporterID)
	if err != nil {
		return nil, fmt.Errorf("reporter_id: %w", err)
	}

	t := &domain.Ticket{
		Key:            s.Key,
		OrganizationID: org,
		Type:           tt,
		Title:          s.Title,
		Description:    s.Description,
		Status:         s.Status,
		Priority:       priority,
		ReporterID:     reporter,
		Resolution:     s.Resolution,
	}
	if s.AssigneeID != "" {
		assignee, err := uuid.Parse(s.AssigneeID)
		if err != nil {
			return nil, fmt.Errorf("assignee_id: %w", err)
		}
		t.AssigneeID = &assignee
	}
	if t.Status == "" {
		for _, wf := range workflows {
			if wf.TicketType == tt {
				t.Status = wf.Statuses[0]
				break
			}
		}
	}
	if t.Status == "" {
		return nil, fmt.Errorf("status is required: no workflow for %s in this file", tt)
	}
	return t, nil
}

// ImportWorkflows stores every workflow of the bundle as a new version.
func (b *Bundle) ImportWorkflows(ctx context.Context, svc ports.WorkflowService, activate bool) ([]*domain.Workflow, error) {
	saved := make([]*domain.Workflow, 0, len(b.Workflows))
	for _, wf := range b.Workflows {
		out, err := svc.Import(ctx, wf, activate)
		if err != nil {
			return saved, fmt.Errorf("import %s workflow %q: %w", wf.TicketType, wf.Name, err)
		}
		saved = append(saved, out)
	}
	return saved, nil
}

// TicketWriter, DefinitionWriter and UserWriter are the seeding hooks of a storage adapter.
type TicketWriter interface {
	Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error)
}

type DefinitionWriter interface {
	Create(ctx context.Context, def *domain.SLADefinition) (*domain.SLADefinition, error)
}

type UserWriter interface {
	Create(ctx context.Context, user *domain.DirectoryUser) error
}

// Seeder writes the tenant data of a bundle.
type Seeder struct {
	Tickets     TicketWriter
	Definitions DefinitionWriter
	Users       UserWriter
}

// SeedResult counts what a seed run wrote.
type SeedResult struct {
	Users          int
	SLADefinitions int
	Tickets        int
}

// Seed writes users, then SLA definitions, then tickets.
func (s Seeder) Seed(ctx context.Context, b *Bundle) (SeedResult, error) {
	var res SeedResult
	for _, u := range b.Users {
		if err := s.Users.Create(ctx, u); err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		res.Users++
	}
	for _, d := range b.SLADefinitions {
		if _, err := s.Definitions.Create(ctx, d); err != nil {
			return res, fmt.Errorf("seed SLA definition %q: %w", d.Name, err)
		}
		res.SLADefinitions++
	}
	for _, t := range b.Tickets {
		if _, err := s.Tickets.Create(ctx, t); err != nil {
			return res, fmt.Errorf("seed ticket %s: %w", t.Key, err)
		}
		res.Tickets++
	}
	return res, nil
}
