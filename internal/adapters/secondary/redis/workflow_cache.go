package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorrc/service-desk-workflow/internal/core/domain"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "workflow:"

// WorkflowCache is a read-through cache in front of a WorkflowRepository.
// Redis failures fall back to the underlying repository.
type WorkflowCache struct {
	next   ports.WorkflowRepository
	client goredis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

var _ ports.WorkflowRepository = (*WorkflowCache)(nil)

func NewWorkflowCache(next ports.WorkflowRepository, client goredis.UniversalClient, ttl time.Duration, logger *slog.Logger) *WorkflowCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkflowCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "workflow_cache"),
	}
}

func activeKey(ticketType domain.TicketType) string {
	return keyPrefix + "active:" + string(ticketType)
}

func workflowKey(id int64) string {
	return fmt.Sprintf("%sid:%d", keyPrefix, id)
}

func transitionKey(id int64) string {
	return fmt.Sprintf("%stransition:%d", keyPrefix, id)
}

// cached decodes key from Redis, or runs load and stores its result on a miss.
func cached[T any](ctx context.Context, c *WorkflowCache, key string, load func() (*T, error)) (*T, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			return &v, nil
		}
		c.logger.Warn("discarding undecodable cache entry", "key", key)
	case !errors.Is(err, goredis.Nil):
		c.logger.Warn("workflow cache read failed", "key", key, "error", err)
	}

	v, err := load()
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("workflow cache encode failed", "key", key, "error", err)
		return v, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		c.logger.Warn("workflow cache write failed", "key", key, "error", err)
	}
	return v, nil
}

func (c *WorkflowCache) GetActiveByType(ctx context.Context, ticketType domain.TicketType) (*domain.Workflow, error) {
	return cached(ctx, c, activeKey(ticketType), func() (*domain.Workflow, error) {
		return c.next.GetActiveByType(ctx, ticketType)
	})
}

// GetByID caches by id; stored versions are immutable apart from the active flag.
func (c *WorkflowCache) GetByID(ctx context.Context, id int64) (*domain.Workflow, error) {
	return cached(ctx, c, workflowKey(id), func() (*domain.Workflow, error) {
		return c.next.GetByID(ctx, id)
	})
}

func (c *WorkflowCache) GetTransition(ctx context.Context, transitionID int64) (*domain.Transition, error) {
	return cached(ctx, c, transitionKey(transitionID), func() (*domain.Transition, error) {
		return c.next.GetTransition(ctx, transitionID)
	})
}

func (c *WorkflowCache) List(ctx context.Context, params ports.ListWorkflowsParams) ([]*domain.Workflow, error) {
	return c.next.List(ctx, params)
}

// Save stores the new version and drops the cached entries it invalidates.
func (c *WorkflowCache) Save(ctx context.Context, workflow *domain.Workflow, activate bool) (*domain.Workflow, error) {
	var previous *domain.Workflow
	if activate {
		if wf, err := c.next.GetActiveByType(ctx, workflow.TicketType); err == nil {
			previous = wf
		}
	}

	saved, err := c.next.Save(ctx, workflow, activate)
	if err != nil {
		return nil, err
	}

	if activate {
		keys := []string{activeKey(saved.TicketType)}
		if previous != nil {
			keys = append(keys, workflowKey(previous.ID))
		}
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Warn("workflow cache invalidation failed", "keys", keys, "error", err)
		}
	}
	return saved, nil
}
