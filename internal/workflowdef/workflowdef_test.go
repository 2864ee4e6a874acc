package workflowdef_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/adapters/secondary/memory"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/lorrc/service-desk-workflow/internal/core/services"
	"github.com/lorrc/service-desk-workflow/internal/workflowdef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedFile = `
organization_id: 6f1c1a3e-2b7d-4c55-9a51-0d2c8f0e7a10

workflows:
  - name: Incident
    ticket_type: incident
    statuses: [new, in_progress, resolved]
    transitions:
      - name: Start
        from: new
        to: in_progress
        required_role: agent
      - name: Resolve
        from: in_progress
        to: resolved
        required_fields: [resolution]
        requires_approval: true
        approval_role: cab
        actions:
          - type: set_field
            field: resolved_at
            value: now
          - type: assign
            user_id: 0b6f3c44-95a4-4d7e-8a0b-3f2d3b1e9c01
          - type: notify
            target: reporter

sla_definitions:
  - name: Critical incidents
    ticket_type: incident
    priority: critical
    resolution_minutes: 60
  - name: Low, any type
    priority: low
    resolution_minutes: 4320
    active: false

users:
  - id: 0b6f3c44-95a4-4d7e-8a0b-3f2d3b1e9c01
    full_name: Ada Agent
    email: ada@example.com
    role: agent

tickets:
  - key: INC-1
    type: incident
    title: VPN down
    priority: critical
    reporter_id: 0b6f3c44-95a4-4d7e-8a0b-3f2d3b1e9c01
`

func TestParse_SeedFile(t *testing.T) {
	b, err := workflowdef.Parse(strings.NewReader(seedFile))
	require.NoError(t, err)

	org := uuid.MustParse("6f1c1a3e-2b7d-4c55-9a51-0d2c8f0e7a10")
	assert.Equal(t, org, b.OrganizationID)

	require.Len(t, b.Workflows, 1)
	wf := b.Workflows[0]
	assert.Equal(t, domain.TypeIncident, wf.TicketType)
	require.Len(t, wf.Transitions, 2)

	resolve := wf.Transitions[1]
	assert.True(t, resolve.RequiresApproval)
	assert.Equal(t, "cab", resolve.ApprovalRole)
	assert.Equal(t, []string{domain.FieldResolution}, resolve.RequiredFields)
	require.Len(t, resolve.Actions, 3)
	assert.Equal(t, domain.SetFieldAction{Field: domain.FieldResolvedAt, Now: true}, resolve.Actions[0])
	assert.Equal(t, domain.AssignAction{UserID: uuid.MustParse("0b6f3c44-95a4-4d7e-8a0b-3f2d3b1e9c01")}, resolve.Actions[1])
	assert.Equal(t, domain.NotifyAction{Target: "reporter"}, resolve.Actions[2])

	require.Len(t, b.SLADefinitions, 2)
	require.NotNil(t, b.SLADefinitions[0].TicketType)
	assert.Equal(t, domain.TypeIncident, *b.SLADefinitions[0].TicketType)
	assert.True(t, b.SLADefinitions[0].IsActive)
	assert.Nil(t, b.SLADefinitions[1].TicketType)
	assert.False(t, b.SLADefinitions[1].IsActive)

	require.Len(t, b.Users, 1)
	assert.Equal(t, org, b.Users[0].OrganizationID)
	assert.True(t, b.Users[0].IsActive)

	require.Len(t, b.Tickets, 1)
	assert.Equal(t, "new", b.Tickets[0].Status, "status defaults to the workflow's first status")
	assert.Equal(t, domain.PriorityCritical, b.Tickets[0].Priority)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "empty document",
			doc:     "",
			wantErr: "empty document",
		},
		{
			name: "unknown transition key",
			doc: `
workflows:
  - name: X
    ticket_type: task
    statuses: [a, b]
    transitions:
      - {name: go, from: a, to: b, guard: always}
`,
			wantErr: "guard",
		},
		{
			name: "undeclared status",
			doc: `
workflows:
  - name: X
    ticket_type: task
    statuses: [a]
    transitions:
      - {name: go, from: a, to: b}
`,
			wantErr: "undeclared",
		},
		{
			name: "unknown action",
			doc: `
workflows:
  - name: X
    ticket_type: task
    statuses: [a, b]
    transitions:
      - name: go
        from: a
        to: b
        actions: [{type: launch_rocket}]
`,
			wantErr: "launch_rocket",
		},
		{
			name: "tenant data without organization",
			doc: `
workflows: []
users:
  - {id: 0b6f3c44-95a4-4d7e-8a0b-3f2d3b1e9c01, role: agent}
`,
			wantErr: "organization_id is required",
		},
		{
			name: "ticket without a workflow or status",
			doc: `
organization_id: 6f1c1a3e-2b7d-4c55-9a51-0d2c8f0e7a10
workflows: []
tickets:
  - {key: T-1, type: task, title: x, priority: low, reporter_id: 0b6f3c44-95a4-4d7e-8a0b-3f2d3b1e9c01}
`,
			wantErr: "status is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflowdef.Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_DuplicateEdgeIsAmbiguous(t *testing.T) {
	doc := `
workflows:
  - name: X
    ticket_type: task
    statuses: [a, b]
    transitions:
      - {name: one, from: a, to: b}
      - {name: two, from: a, to: b}
`
	_, err := workflowdef.Parse(strings.NewReader(doc))
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousTransition)
}

func TestDefaults_CoverEveryTicketType(t *testing.T) {
	b, err := workflowdef.Defaults()
	require.NoError(t, err)

	byType := make(map[domain.TicketType]*domain.Workflow)
	for _, wf := range b.Workflows {
		byType[wf.TicketType] = wf
	}
	for _, tt := range domain.TicketTypes {
		assert.Contains(t, byType, tt)
	}

	for _, tt := range []domain.TicketType{domain.TypeEpic, domain.TypeStory, domain.TypeTask, domain.TypeBug} {
		assert.Equal(t, "backlog", byType[tt].Statuses[0], tt)
	}
	for _, tt := range []domain.TicketType{domain.TypeIncident, domain.TypeServiceRequest, domain.TypeProblem, domain.TypeChange} {
		assert.Equal(t, "new", byType[tt].Statuses[0], tt)
	}

	authorize, ok := byType[domain.TypeChange].FindTransition("assess", "scheduled")
	require.True(t, ok)
	assert.True(t, authorize.RequiresApproval)
	assert.Equal(t, "cab", authorize.ApprovalRole)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedFile), 0o600))

	b, err := workflowdef.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, b.Workflows, 1)

	_, err = workflowdef.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read definitions file")
}

func TestBundle_ImportAndSeed(t *testing.T) {
	ctx := context.Background()
	b, err := workflowdef.Parse(strings.NewReader(seedFile))
	require.NoError(t, err)

	repos := memory.NewRepositories(memory.NewStore(nil))
	svc := services.NewWorkflowService(repos.Workflows, nil)

	saved, err := b.ImportWorkflows(ctx, svc, true)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, 1, saved[0].Version)

	// re-importing creates the next version and keeps one active workflow
	_, err = b.ImportWorkflows(ctx, svc, true)
	require.NoError(t, err)
	active, err := repos.Workflows.GetActiveByType(ctx, domain.TypeIncident)
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)
	all, err := svc.List(ctx, ports.ListWorkflowsParams{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	res, err := workflowdef.Seeder{
		Tickets:     repos.Tickets,
		Definitions: repos.Definitions,
		Users:       repos.Directory,
	}.Seed(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, workflowdef.SeedResult{Users: 1, SLADefinitions: 2, Tickets: 1}, res)

	agents, err := repos.Directory.FindByRole(ctx, b.OrganizationID, "agent", 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.Users[0].ID}, agents)

	def, err := repos.Definitions.FindApplicable(ctx, b.OrganizationID, domain.TypeIncident, domain.PriorityCritical)
	require.NoError(t, err)
	assert.Equal(t, 60, def.ResolutionMinutes)

	ticket, err := repos.Tickets.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "INC-1", ticket.Key)

	_, err = workflowdef.Seeder{Tickets: repos.Tickets, Definitions: repos.Definitions, Users: repos.Directory}.Seed(ctx, b)
	assert.ErrorContains(t, err, "seed user")
}
