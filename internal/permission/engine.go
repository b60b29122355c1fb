// Copyright 2026 The AgentPlane Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package permission

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentplane/agentplane/internal/observability/metrics"
)

// Engine is the role registry and permission resolver. Tenant-scoped grants
// are stored apart from global agent grants and only become visible when
// the same tenant id is supplied on query.
type Engine struct {
	mu           sync.RWMutex
	roles        map[string]Role
	agentRoles   map[string][]string
	agentGrants  map[string][]Permission
	tenantGrants map[string]map[string][]Permission // tenant id -> agent id -> grants
}

// NewEngine creates an engine with the default roles seeded.
func NewEngine() *Engine {
	e := &Engine{
		roles:        make(map[string]Role),
		agentRoles:   make(map[string][]string),
		agentGrants:  make(map[string][]Permission),
		tenantGrants: make(map[string]map[string][]Permission),
	}
	for _, role := range defaultRoles() {
		e.roles[role.Name] = role
	}
	return e
}

// CreateRole registers a role. The name must be unused.
func (e *Engine) CreateRole(role Role) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.roles[role.Name]; exists {
		return fmt.Errorf("%w: %q", ErrRoleAlreadyExists, role.Name)
	}
	e.roles[role.Name] = role
	return nil
}

// GetRole returns a registered role.
func (e *Engine) GetRole(name string) (Role, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	role, ok := e.roles[name]
	if !ok {
		return Role{}, fmt.Errorf("%w: %q", ErrRoleNotFound, name)
	}
	return role, nil
}

// ListRoles returns every registered role.
func (e *Engine) ListRoles() []Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	roles := make([]Role, 0, len(e.roles))
	for _, role := range e.roles {
		roles = append(roles, role)
	}
	return roles
}

// AssignRole attaches a registered role to an agent.
func (e *Engine) AssignRole(agentID, roleName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.roles[roleName]; !ok {
		return fmt.Errorf("%w: %q", ErrRoleNotFound, roleName)
	}
	for _, assigned := range e.agentRoles[agentID] {
		if assigned == roleName {
			return nil
		}
	}
	e.agentRoles[agentID] = append(e.agentRoles[agentID], roleName)
	return nil
}

// RevokeRole detaches a role from an agent. Revoking a role the agent does
// not hold is a no-op returning false.
func (e *Engine) RevokeRole(agentID, roleName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	assigned := e.agentRoles[agentID]
	for i, name := range assigned {
		if name == roleName {
			e.agentRoles[agentID] = append(assigned[:i:i], assigned[i+1:]...)
			return true
		}
	}
	return false
}

// AgentRoles returns the role names assigned to an agent.
func (e *Engine) AgentRoles(agentID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.agentRoles[agentID]...)
}

// GrantPermission grants a permission to an agent. A non-empty tenantID
// scopes the grant to that tenant.
func (e *Engine) GrantPermission(agentID string, p Permission, tenantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tenantID == "" {
		e.agentGrants[agentID] = append(e.agentGrants[agentID], p)
		return
	}
	grants, ok := e.tenantGrants[tenantID]
	if !ok {
		grants = make(map[string][]Permission)
		e.tenantGrants[tenantID] = grants
	}
	grants[agentID] = append(grants[agentID], p)
}

// RevokePermission removes every grant for the resource pattern in the
// given scope. It returns true when at least one grant was removed.
func (e *Engine) RevokePermission(agentID, resource, tenantID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if tenantID == "" {
		kept, removed := withoutResource(e.agentGrants[agentID], resource)
		e.agentGrants[agentID] = kept
		return removed
	}
	grants, ok := e.tenantGrants[tenantID]
	if !ok {
		return false
	}
	kept, removed := withoutResource(grants[agentID], resource)
	grants[agentID] = kept
	return removed
}

func withoutResource(grants []Permission, resource string) ([]Permission, bool) {
	removed := false
	kept := grants[:0:0]
	for _, g := range grants {
		if g.Resource == resource {
			removed = true
			continue
		}
		kept = append(kept, g)
	}
	return kept, removed
}

// ResolvePermissions returns every live permission an agent holds: direct
// grants, role permissions expanded recursively through inherits_from, and
// tenant-scoped grants for the supplied tenant. Expired entries are
// filtered out. No deduplication is performed; overlapping grants are
// harmless for Check.
func (e *Engine) ResolvePermissions(agentID, tenantID string) []Permission {
	now := time.Now()

	e.mu.RLock()
	var resolved []Permission
	resolved = append(resolved, e.agentGrants[agentID]...)

	// Expand role inheritance with a visited set. A role already visited
	// (including through a cycle) is simply not expanded again.
	visited := make(map[string]bool)
	queue := append([]string(nil), e.agentRoles[agentID]...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if visited[name] {
			continue
		}
		visited[name] = true
		role, ok := e.roles[name]
		if !ok {
			continue
		}
		resolved = append(resolved, role.Permissions...)
		queue = append(queue, role.InheritsFrom...)
	}

	if tenantID != "" {
		if grants, ok := e.tenantGrants[tenantID]; ok {
			resolved = append(resolved, grants[agentID]...)
		}
	}
	e.mu.RUnlock()

	live := resolved[:0:0]
	for _, p := range resolved {
		if !p.Expired(now) {
			live = append(live, p)
		}
	}
	return live
}

// Check reports whether the agent holds a live permission matching the
// resource at or above the required level, with all conditions satisfied
// by checkCtx.
func (e *Engine) Check(ctx context.Context, agentID, resource string, required Level, tenantID string, checkCtx map[string]any) bool {
	metrics.PermissionChecks.Add(ctx, 1)
	for _, p := range e.ResolvePermissions(agentID, tenantID) {
		if !p.Matches(resource) {
			continue
		}
		if p.Level < required {
			continue
		}
		if !p.ConditionsMet(checkCtx) {
			continue
		}
		return true
	}
	return false
}
