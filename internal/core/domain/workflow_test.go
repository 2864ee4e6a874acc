package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incidentWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID:         1,
		Name:       "Incident",
		TicketType: domain.TypeIncident,
		Version:    1,
		IsActive:   true,
		Statuses:   []string{"new", "in_progress", "resolved", "closed"},
		Transitions: []domain.Transition{
			{ID: 10, WorkflowID: 1, Name: "Start", FromStatus: "new", ToStatus: "in_progress"},
			{ID: 11, WorkflowID: 1, Name: "Resolve", FromStatus: "in_progress", ToStatus: "resolved", RequiredFields: []string{"resolution"}},
			{ID: 12, WorkflowID: 1, Name: "Close", FromStatus: "resolved", ToStatus: "closed", RequiredRole: "admin"},
			{ID: 13, WorkflowID: 1, Name: "Reopen", FromStatus: "resolved", ToStatus: "in_progress"},
		},
	}
}

func TestWorkflow_Lookup(t *testing.T) {
	wf := incidentWorkflow()

	tr, ok := wf.Transition(11)
	require.True(t, ok)
	assert.Equal(t, "Resolve", tr.Name)

	_, ok = wf.Transition(99)
	assert.False(t, ok)

	tr, ok = wf.FindTransition("resolved", "closed")
	require.True(t, ok)
	assert.Equal(t, int64(12), tr.ID)

	from := wf.TransitionsFrom("resolved")
	require.Len(t, from, 2)
	assert.Equal(t, "Close", from[0].Name)
	assert.Equal(t, "Reopen", from[1].Name)

	assert.True(t, wf.HasStatus("closed"))
	assert.True(t, wf.HasStatus(domain.StatusAwaitingApproval))
	assert.False(t, wf.HasStatus("archived"))
}

func TestWorkflow_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(wf *domain.Workflow)
		wantErr error
	}{
		{name: "valid", mutate: func(*domain.Workflow) {}},
		{
			name:    "missing name",
			mutate:  func(wf *domain.Workflow) { wf.Name = "" },
			wantErr: apperrors.ErrInvalidWorkflow,
		},
		{
			name:    "unknown ticket type",
			mutate:  func(wf *domain.Workflow) { wf.TicketType = "feature" },
			wantErr: apperrors.ErrInvalidWorkflow,
		},
		{
			name:    "reserved status",
			mutate:  func(wf *domain.Workflow) { wf.Statuses = append(wf.Statuses, domain.StatusAwaitingApproval) },
			wantErr: apperrors.ErrInvalidWorkflow,
		},
		{
			name: "undeclared status",
			mutate: func(wf *domain.Workflow) {
				wf.Transitions = append(wf.Transitions, domain.Transition{Name: "Archive", FromStatus: "closed", ToStatus: "archived"})
			},
			wantErr: apperrors.ErrInvalidWorkflow,
		},
		{
			name: "ambiguous edge",
			mutate: func(wf *domain.Workflow) {
				wf.Transitions = append(wf.Transitions, domain.Transition{Name: "Start again", FromStatus: "new", ToStatus: "in_progress"})
			},
			wantErr: apperrors.ErrAmbiguousTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := incidentWorkflow()
			tt.mutate(wf)
			err := wf.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTransition_AllowsRole(t *testing.T) {
	open := domain.Transition{}
	guarded := domain.Transition{RequiredRole: "admin"}

	assert.True(t, open.AllowsRole("user", "super_admin"))
	assert.True(t, guarded.AllowsRole("admin", "super_admin"))
	assert.True(t, guarded.AllowsRole("super_admin", "super_admin"))
	assert.False(t, guarded.AllowsRole("user", "super_admin"))
	assert.False(t, guarded.AllowsRole("", ""))
}

func TestTransition_FirstMissingField(t *testing.T) {
	tr := domain.Transition{RequiredFields: []string{"assignee_id", "resolution"}}
	assignee := uuid.New()

	field, missing := tr.FirstMissingField(&domain.Ticket{})
	assert.True(t, missing)
	assert.Equal(t, "assignee_id", field)

	field, missing = tr.FirstMissingField(&domain.Ticket{AssigneeID: &assignee})
	assert.True(t, missing)
	assert.Equal(t, "resolution", field)

	_, missing = tr.FirstMissingField(&domain.Ticket{AssigneeID: &assignee, Resolution: "done"})
	assert.False(t, missing)
}

func TestActionSpec_RoundTrip(t *testing.T) {
	user := uuid.New()
	specs := []domain.ActionSpec{
		{Type: "set_field", Field: "resolved_at", Value: "now"},
		{Type: "set_field", Field: "resolution", Value: "fixed"},
		{Type: "add_comment", Text: "Closed by workflow"},
		{Type: "assign", UserID: user.String()},
		{Type: "notify", Target: "reporter"},
	}

	list, err := domain.ActionListFromSpecs(specs)
	require.NoError(t, err)
	require.Len(t, list, 5)

	assert.Equal(t, domain.SetFieldAction{Field: "resolved_at", Now: true}, list[0])
	assert.Equal(t, domain.SetFieldAction{Field: "resolution", Value: "fixed"}, list[1])
	assert.Equal(t, domain.AddCommentAction{Text: "Closed by workflow"}, list[2])
	assert.Equal(t, domain.AssignAction{UserID: user}, list[3])
	assert.Equal(t, domain.NotifyAction{Target: "reporter"}, list[4])
	assert.Equal(t, specs, list.Specs())

	raw, err := json.Marshal(list)
	require.NoError(t, err)

	var decoded domain.ActionList
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, list, decoded)
}

func TestActionSpec_Invalid(t *testing.T) {
	tests := []domain.ActionSpec{
		{Type: "set_field"},
		{Type: "add_comment", Text: " "},
		{Type: "assign", UserID: "nobody"},
		{Type: "webhook"},
	}

	for _, spec := range tests {
		t.Run(spec.Type, func(t *testing.T) {
			_, err := spec.Action()
			assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
		})
	}
}
