package domain

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
)

// ActionKind names a side-effect action variant.
type ActionKind string

const (
	ActionSetField   ActionKind = "set_field"
	ActionAddComment ActionKind = "add_comment"
	ActionAssign     ActionKind = "assign"
	ActionNotify     ActionKind = "notify"
)

// fieldValueNow is the literal that makes a set_field action stamp the current time.
const fieldValueNow = "now"

// Action is one side effect run, in order, when a transition is applied.
// The concrete variants are SetFieldAction, AddCommentAction, AssignAction and NotifyAction.
type Action interface {
	Kind() ActionKind
	isAction()
}

// SetFieldAction writes a literal value, or the current time when Now is set.
type SetFieldAction struct {
	Field string
	Value string
	Now   bool
}

// AddCommentAction appends an internal comment authored by the actor.
type AddCommentAction struct {
	Text string
}

// AssignAction reassigns the ticket.
type AssignAction struct {
	UserID uuid.UUID
}

// NotifyAction asks for a best-effort notification. Target is "assignee", "reporter",
// "approvers" or a user id.
type NotifyAction struct {
	Target string
}

func (SetFieldAction) Kind() ActionKind   { return ActionSetField }
func (AddCommentAction) Kind() ActionKind { return ActionAddComment }
func (AssignAction) Kind() ActionKind     { return ActionAssign }
func (NotifyAction) Kind() ActionKind     { return ActionNotify }

func (SetFieldAction) isAction()   {}
func (AddCommentAction) isAction() {}
func (AssignAction) isAction()     {}
func (NotifyAction) isAction()     {}

// ActionSpec is the flat, serializable form of an Action used in JSON columns,
// YAML definition files and API responses.
type ActionSpec struct {
	Type   string `json:"type" yaml:"type"`
	Field  string `json:"field,omitempty" yaml:"field,omitempty"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty"`
	Text   string `json:"text,omitempty" yaml:"text,omitempty"`
	UserID string `json:"userId,omitempty" yaml:"user_id,omitempty"`
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
}

// Action converts the flat form into its typed variant.
func (s ActionSpec) Action() (Action, error) {
	switch ActionKind(s.Type) {
	case ActionSetField:
		if strings.TrimSpace(s.Field) == "" {
			return nil, apperrors.Wrap(apperrors.ErrInvalidAction, "set_field requires a field")
		}
		if s.Value == fieldValueNow {
			return SetFieldAction{Field: s.Field, Now: true}, nil
		}
		return SetFieldAction{Field: s.Field, Value: s.Value}, nil
	case ActionAddComment:
		if strings.TrimSpace(s.Text) == "" {
			return nil, apperrors.Wrap(apperrors.ErrInvalidAction, "add_comment requires text")
		}
		return AddCommentAction{Text: s.Text}, nil
	case ActionAssign:
		id, err := uuid.Parse(s.UserID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidAction, "assign requires a valid userId")
		}
		return AssignAction{UserID: id}, nil
	case ActionNotify:
		return NotifyAction{Target: s.Target}, nil
	default:
		return nil, apperrors.Wrap(apperrors.ErrInvalidAction, "unknown action type %q", s.Type)
	}
}

// SpecOf flattens a typed action.
func SpecOf(a Action) ActionSpec {
	switch v := a.(type) {
	case SetFieldAction:
		value := v.Value
		if v.Now {
			value = fieldValueNow
		}
		return ActionSpec{Type: string(ActionSetField), Field: v.Field, Value: value}
	case AddCommentAction:
		return ActionSpec{Type: string(ActionAddComment), Text: v.Text}
	case AssignAction:
		return ActionSpec{Type: string(ActionAssign), UserID: v.UserID.String()}
	case NotifyAction:
		return ActionSpec{Type: string(ActionNotify), Target: v.Target}
	default:
		return ActionSpec{}
	}
}

// ActionList is an ordered list of actions that serializes as a list of ActionSpec.
type ActionList []Action

// Specs returns the serializable form of the list.
func (l ActionList) Specs() []ActionSpec {
	specs := make([]ActionSpec, 0, len(l))
	for _, a := range l {
		specs = append(specs, SpecOf(a))
	}
	return specs
}

// ActionListFromSpecs builds a typed list, failing on the first invalid spec.
func ActionListFromSpecs(specs []ActionSpec) (ActionList, error) {
	list := make(ActionList, 0, len(specs))
	for i, spec := range specs {
		a, err := spec.Action()
		if err != nil {
			return nil, apperrors.Wrap(err, "action %d", i)
		}
		list = append(list, a)
	}
	return list, nil
}

func (l ActionList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Specs())
}

func (l *ActionList) UnmarshalJSON(data []byte) error {
	var specs []ActionSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return err
	}
	list, err := ActionListFromSpecs(specs)
	if err != nil {
		return err
	}
	*l = list
	return nil
}
