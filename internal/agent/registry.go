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

// Package agent tracks which agents belong to which tenant. The execution
// engine itself lives outside this control plane; the registry only keeps
// the ownership index the governance cascades need.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/agentplane/agentplane/internal/id"
)

// Agent is a registered autonomous agent.
type Agent struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry is an in-memory agent ownership index. It implements the
// tenant.AgentRegistry collaborator surface.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register records a new agent for a tenant and returns it.
func (r *Registry) Register(ctx context.Context, tenantID, name string) Agent {
	a := Agent{
		ID:        id.NewUUIDv7(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.agents[a.ID] = a
	r.mu.Unlock()
	return a
}

// Get returns a registered agent.
func (r *Registry) Get(ctx context.Context, agentID string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[agentID]
	return a, ok
}

// GetTenantAgents returns the ids of every agent owned by the tenant.
func (r *Registry) GetTenantAgents(ctx context.Context, tenantID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, a := range r.agents {
		if a.TenantID == tenantID {
			ids = append(ids, a.ID)
		}
	}
	return ids, nil
}

// RemoveAgent deletes an agent, reporting whether it existed.
func (r *Registry) RemoveAgent(ctx context.Context, agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[agentID]; !ok {
		return false
	}
	delete(r.agents, agentID)
	return true
}
