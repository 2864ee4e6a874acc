package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockWorkflowRepository is a mock implementation of ports.WorkflowRepository
type MockWorkflowRepository struct {
	mock.Mock
}

func NewMockWorkflowRepository() *MockWorkflowRepository {
	return &MockWorkflowRepository{}
}

func (m *MockWorkflowRepository) GetActiveByType(ctx context.Context, ticketType domain.TicketType) (*domain.Workflow, error) {
	args := m.Called(ctx, ticketType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) GetTransition(ctx context.Context, transitionID int64) (*domain.Transition, error) {
	args := m.Called(ctx, transitionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transition), args.Error(1)
}

func (m *MockWorkflowRepository) List(ctx context.Context, params ports.ListWorkflowsParams) ([]*domain.Workflow, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Workflow), args.Error(1)
}

func (m *MockWorkflowRepository) Save(ctx context.Context, workflow *domain.Workflow, activate bool) (*domain.Workflow, error) {
	args := m.Called(ctx, workflow, activate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workflow), args.Error(1)
}

// MockSLADefinitionRepository is a mock implementation of ports.SLADefinitionRepository
type MockSLADefinitionRepository struct {
	mock.Mock
}

func NewMockSLADefinitionRepository() *MockSLADefinitionRepository {
	return &MockSLADefinitionRepository{}
}

func (m *MockSLADefinitionRepository) FindApplicable(ctx context.Context, orgID uuid.UUID, ticketType domain.TicketType, priority domain.TicketPriority) (*domain.SLADefinition, error) {
	args := m.Called(ctx, orgID, ticketType, priority)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SLADefinition), args.Error(1)
}

func (m *MockSLADefinitionRepository) List(ctx context.Context, orgID uuid.UUID, params ports.ListSLADefinitionsParams) ([]*domain.SLADefinition, error) {
	args := m.Called(ctx, orgID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SLADefinition), args.Error(1)
}

// MockActivityRepository is a mock implementation of ports.ActivityRepository
type MockActivityRepository struct {
	mock.Mock
}

func NewMockActivityRepository() *MockActivityRepository {
	return &MockActivityRepository{}
}

func (m *MockActivityRepository) Create(ctx context.Context, activity *domain.Activity) error {
	args := m.Called(ctx, activity)
	return args.Error(0)
}

// MockUserDirectory is a mock implementation of ports.UserDirectory
type MockUserDirectory struct {
	mock.Mock
}

func NewMockUserDirectory() *MockUserDirectory {
	return &MockUserDirectory{}
}

func (m *MockUserDirectory) FindByRole(ctx context.Context, orgID uuid.UUID, role string, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, orgID, role, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockUserDirectory) GetByID(ctx context.Context, id uuid.UUID) (*domain.DirectoryUser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DirectoryUser), args.Error(1)
}

// MockSLAService is a mock implementation of ports.SLAService
type MockSLAService struct {
	mock.Mock
}

func NewMockSLAService() *MockSLAService {
	return &MockSLAService{}
}

func (m *MockSLAService) Start(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	args := m.Called(ctx, ticketID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketSLA), args.Error(1)
}

func (m *MockSLAService) Pause(ctx context.Context, params ports.PauseSLAParams) (*domain.TicketSLA, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketSLA), args.Error(1)
}

func (m *MockSLAService) Resume(ctx context.Context, slaID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	args := m.Called(ctx, slaID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketSLA), args.Error(1)
}

func (m *MockSLAService) CheckBreach(ctx context.Context, slaID int64, actor domain.Actor) (*domain.BreachStatus, error) {
	args := m.Called(ctx, slaID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BreachStatus), args.Error(1)
}

func (m *MockSLAService) Complete(ctx context.Context, slaID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	args := m.Called(ctx, slaID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketSLA), args.Error(1)
}

func (m *MockSLAService) Restart(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	args := m.Called(ctx, ticketID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketSLA), args.Error(1)
}

func (m *MockSLAService) ActiveForTicket(ctx context.Context, ticketID int64, actor domain.Actor) (*domain.TicketSLA, error) {
	args := m.Called(ctx, ticketID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TicketSLA), args.Error(1)
}

func (m *MockSLAService) GetTicketSLAs(ctx context.Context, ticketID int64, actor domain.Actor) ([]*ports.TicketSLAReport, error) {
	args := m.Called(ctx, ticketID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ports.TicketSLAReport), args.Error(1)
}

func (m *MockSLAService) AtRisk(ctx context.Context, actor domain.Actor, threshold float64) ([]*domain.TicketSLAView, error) {
	args := m.Called(ctx, actor, threshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TicketSLAView), args.Error(1)
}

func (m *MockSLAService) Breaches(ctx context.Context, query ports.ListBreachesQuery) ([]*domain.TicketSLAView, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.TicketSLAView), args.Error(1)
}

func (m *MockSLAService) Definitions(ctx context.Context, actor domain.Actor, params ports.ListSLADefinitionsParams) ([]*domain.SLADefinition, error) {
	args := m.Called(ctx, actor, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SLADefinition), args.Error(1)
}

func (m *MockSLAService) SweepBreaches(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockSLAService) Shutdown() {
	m.Called()
}

// MockNotifier is a mock implementation of ports.Notifier
type MockNotifier struct {
	mock.Mock
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, params ports.NotificationParams) {
	m.Called(ctx, params)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}
