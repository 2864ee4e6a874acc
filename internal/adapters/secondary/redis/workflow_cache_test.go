package redis

import (
	"context"
	"testing"
	"time"

	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	apperrors "github.com/lorrc/service-desk-workflow/internal/core/errors"
	"github.com/lorrc/service-desk-workflow/internal/core/mocks"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func incidentWorkflow(id int64) *domain.Workflow {
	return &domain.Workflow{
		ID:         id,
		Name:       "Incident",
		TicketType: domain.TypeIncident,
		Version:    int(id),
		IsActive:   true,
		Statuses:   []string{"open", "resolved"},
		Transitions: []domain.Transition{{
			ID:         id * 10,
			WorkflowID: id,
			Name:       "Resolve",
			FromStatus: "open",
			ToStatus:   "resolved",
			Actions:    domain.ActionList{domain.SetFieldAction{Field: domain.FieldResolvedAt, Now: true}},
		}},
	}
}

func startRedis(t *testing.T) goredis.UniversalClient {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestWorkflowCache_FallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	repo := mocks.NewMockWorkflowRepository()
	repo.On("GetActiveByType", mock.Anything, domain.TypeIncident).Return(incidentWorkflow(1), nil)

	cache := NewWorkflowCache(repo, client, time.Minute, nil)
	for i := 0; i < 2; i++ {
		wf, err := cache.GetActiveByType(ctx, domain.TypeIncident)
		require.NoError(t, err)
		assert.Equal(t, int64(1), wf.ID)
	}
	repo.AssertNumberOfCalls(t, "GetActiveByType", 2)
}

func TestWorkflowCache_ReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)

	repo := mocks.NewMockWorkflowRepository()
	first := incidentWorkflow(1)
	second := incidentWorkflow(2)
	repo.On("GetActiveByType", mock.Anything, domain.TypeIncident).Return(first, nil).Twice()
	repo.On("Save", mock.Anything, mock.Anything, true).Return(second, nil).Once()
	repo.On("GetActiveByType", mock.Anything, domain.TypeIncident).Return(second, nil).Once()

	cache := NewWorkflowCache(repo, client, time.Minute, nil)

	wf, err := cache.GetActiveByType(ctx, domain.TypeIncident)
	require.NoError(t, err)
	assert.Equal(t, int64(1), wf.ID)

	wf, err = cache.GetActiveByType(ctx, domain.TypeIncident)
	require.NoError(t, err)
	assert.Equal(t, int64(1), wf.ID)
	require.Len(t, wf.Transitions, 1)
	assert.Equal(t, domain.SetFieldAction{Field: domain.FieldResolvedAt, Now: true}, wf.Transitions[0].Actions[0])
	repo.AssertNumberOfCalls(t, "GetActiveByType", 1)

	// Save looks up the previous active version, then invalidates
	_, err = cache.Save(ctx, incidentWorkflow(0), true)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "GetActiveByType", 2)

	wf, err = cache.GetActiveByType(ctx, domain.TypeIncident)
	require.NoError(t, err)
	assert.Equal(t, int64(2), wf.ID)
	repo.AssertExpectations(t)
}

func TestWorkflowCache_DoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)

	repo := mocks.NewMockWorkflowRepository()
	repo.On("GetTransition", mock.Anything, int64(99)).Return(nil, apperrors.ErrTransitionNotFound).Once()
	repo.On("GetTransition", mock.Anything, int64(99)).Return(&incidentWorkflow(9).Transitions[0], nil).Once()

	cache := NewWorkflowCache(repo, client, time.Minute, nil)

	_, err := cache.GetTransition(ctx, 99)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	tr, err := cache.GetTransition(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "Resolve", tr.Name)

	tr, err = cache.GetTransition(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "resolved", tr.ToStatus)
	repo.AssertExpectations(t)
}
