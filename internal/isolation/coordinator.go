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

// Package isolation binds one execution to exactly one tenant for the
// duration of a scope.
//
// The scope identity travels explicitly as a context.Context value rather
// than any form of goroutine-local state, so concurrently scheduled units
// of work cannot leak identities into each other.
package isolation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agentplane/agentplane/internal/audit"
	"github.com/agentplane/agentplane/internal/tenant"
)

var (
	ErrNoActiveScope = errors.New("no isolation scope bound")
	ErrScopeActive   = errors.New("tenant already has an active scope")
)

// AccessRules restricts what an execution scope may touch. Deny wins over
// allow; an empty allow list means no restriction.
type AccessRules struct {
	Allow []string
	Deny  []string
}

// Context is the ephemeral identity of one scoped execution. It is never
// persisted; it lives exactly as long as its scope.
type Context struct {
	TenantID  string
	Tier      tenant.Tier
	Namespace string
	Rules     AccessRules
}

type scopeKey struct{}

// FromContext extracts the isolation context, if one is bound.
func FromContext(ctx context.Context) (*Context, bool) {
	ic, ok := ctx.Value(scopeKey{}).(*Context)
	return ic, ok
}

// CloseFunc tears a scope down. It is idempotent.
type CloseFunc func()

// Coordinator establishes and tracks isolation scopes. It reads tenants
// through the Manager and registers at most one active context per tenant.
type Coordinator struct {
	mu       sync.Mutex
	active   map[string]*Context
	tenants  *tenant.Manager
	recorder audit.Recorder
	prefix   string
}

// NewCoordinator creates a coordinator. prefix seeds derived namespaces and
// defaults to "tenant" when empty.
func NewCoordinator(tenants *tenant.Manager, recorder audit.Recorder, prefix string) *Coordinator {
	if prefix == "" {
		prefix = "tenant"
	}
	return &Coordinator{
		active:   make(map[string]*Context),
		tenants:  tenants,
		recorder: recorder,
		prefix:   prefix,
	}
}

// OpenScope resolves the tenant, binds an isolation context into the
// returned context.Context and registers it as the tenant's single active
// context. Opening a second scope for a tenant with one already active is
// refused. The returned CloseFunc must run on every exit path; callers
// defer it immediately, which also covers panics.
func (c *Coordinator) OpenScope(ctx context.Context, tenantID string, rules AccessRules) (context.Context, CloseFunc, error) {
	t, err := c.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	if !t.IsActive() {
		c.recorder.Log(ctx, audit.Event{
			Type:     audit.TypeSecurityViolation,
			TenantID: tenantID,
			Action:   "open_scope",
			Outcome:  "denied",
			Details:  map[string]any{"status": string(t.Status)},
		})
		return nil, nil, fmt.Errorf("%w: status %s", tenant.ErrTenantInactive, t.Status)
	}

	ic := &Context{
		TenantID:  tenantID,
		Tier:      t.Tier,
		Namespace: c.namespaceFor(t),
		Rules: AccessRules{
			Allow: append([]string(nil), rules.Allow...),
			Deny:  append([]string(nil), rules.Deny...),
		},
	}

	c.mu.Lock()
	if _, open := c.active[tenantID]; open {
		c.mu.Unlock()
		return nil, nil, fmt.Errorf("%w: %s", ErrScopeActive, tenantID)
	}
	c.active[tenantID] = ic
	c.mu.Unlock()

	var once sync.Once
	closeScope := func() {
		once.Do(func() {
			c.mu.Lock()
			if c.active[tenantID] == ic {
				delete(c.active, tenantID)
			}
			c.mu.Unlock()
		})
	}
	return context.WithValue(ctx, scopeKey{}, ic), closeScope, nil
}

// namespaceFor derives the tenant namespace: a configured override in the
// tenant settings wins, otherwise a deterministic prefix:id form.
func (c *Coordinator) namespaceFor(t *tenant.Tenant) string {
	if override, ok := t.Settings["namespace"].(string); ok && override != "" {
		return override
	}
	return c.prefix + ":" + t.ID
}

// RequireTenant returns the bound isolation context or fails when none is
// bound to the call chain.
func (c *Coordinator) RequireTenant(ctx context.Context) (*Context, error) {
	ic, ok := FromContext(ctx)
	if !ok {
		return nil, ErrNoActiveScope
	}
	return ic, nil
}

// CheckAccess evaluates a resource against the scope's allow/deny rules.
// It is false when no scope is bound.
func (c *Coordinator) CheckAccess(ctx context.Context, resource string) bool {
	ic, ok := FromContext(ctx)
	if !ok {
		return false
	}
	for _, denied := range ic.Rules.Deny {
		if denied == resource {
			return false
		}
	}
	if len(ic.Rules.Allow) == 0 {
		return true
	}
	for _, allowed := range ic.Rules.Allow {
		if allowed == resource {
			return true
		}
	}
	return false
}

// NamespaceKey prefixes a key with the active namespace.
func (c *Coordinator) NamespaceKey(ctx context.Context, key string) (string, error) {
	ic, ok := FromContext(ctx)
	if !ok {
		return "", ErrNoActiveScope
	}
	return ic.Namespace + ":" + key, nil
}

// ValidateCrossTenantAccess is the default-deny boundary: access is granted
// only when source and target are the same tenant. There is no allow-list
// mechanism. Denials are recorded as security violations.
func (c *Coordinator) ValidateCrossTenantAccess(ctx context.Context, source, target, resource string) bool {
	if source == target {
		return true
	}
	c.recorder.Log(ctx, audit.Event{
		Type:     audit.TypeSecurityViolation,
		TenantID: source,
		Resource: resource,
		Action:   "cross_tenant_access",
		Outcome:  "denied",
		Details:  map[string]any{"target_tenant": target},
	})
	return false
}

// ActiveScopes returns the tenant ids with an open scope.
func (c *Coordinator) ActiveScopes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	return ids
}
