// Package coordinator owns the executors one tenant's tasks are dispatched to.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
)

var ErrClosed = errors.New("coordinator closed")

// Factory builds the coordinator for a newly created tenant session.
type Factory func(tenantID string) *Coordinator

type Coordinator struct {
	tenantID  string
	executors map[string]contractx.Executor
	closed    atomic.Bool
}

func New(tenantID string, executors ...contractx.Executor) *Coordinator {
	byRole := make(map[string]contractx.Executor, len(executors))
	for _, executor := range executors {
		if executor != nil {
			byRole[executor.Role()] = executor
		}
	}
	return &Coordinator{tenantID: tenantID, executors: byRole}
}

// NewFactory returns a Factory that shares the given executors between
// tenants. Executors receive the tenant through Ambient on every call.
func NewFactory(executors ...contractx.Executor) Factory {
	return func(tenantID string) *Coordinator {
		return New(tenantID, executors...)
	}
}

func (c *Coordinator) TenantID() string {
	return c.tenantID
}

// Invoke runs decision on the executor that owns its role.
func (c *Coordinator) Invoke(ctx context.Context, decision contractx.RoutingDecision, ambient contractx.Ambient) (string, error) {
	if c.closed.Load() {
		return "", fmt.Errorf("%w: tenant=%s", ErrClosed, c.tenantID)
	}
	if ambient.Tenant != c.tenantID {
		return "", fmt.Errorf("%w: task tenant %q does not match coordinator tenant %q", contractx.ErrValidation, ambient.Tenant, c.tenantID)
	}
	executor, ok := c.executors[decision.ExecutorRole]
	if !ok {
		return "", fmt.Errorf("%w: executor role %q", contractx.ErrNotFound, decision.ExecutorRole)
	}
	return executor.Invoke(ctx, decision.Operation, decision.Arguments, ambient)
}

// Close marks the coordinator unusable. It is idempotent.
func (c *Coordinator) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *Coordinator) Closed() bool {
	return c.closed.Load()
}
