package tenant

import (
	"context"
	"errors"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrTenantInactive    = errors.New("tenant is not active")
	ErrActiveAgents      = errors.New("tenant has active agents")
	ErrInvalidTier       = errors.New("invalid tier")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrQuotaExceeded     = errors.New("quota exceeded")
)

// AgentRegistry is the collaborator surface consumed during suspension and
// deletion cascades. The execution engine owns the real registry; the
// Manager only enumerates and removes.
type AgentRegistry interface {
	GetTenantAgents(ctx context.Context, tenantID string) ([]string, error)
	RemoveAgent(ctx context.Context, agentID string) bool
}

// Mirror persists tenant state best-effort. Mirror failures are logged and
// never surfaced to Manager callers; the in-memory state stays the
// authority.
type Mirror interface {
	SaveTenant(ctx context.Context, t *Tenant) error
	DeleteTenant(ctx context.Context, id string) error
}
