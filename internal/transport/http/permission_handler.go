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

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agentplane/agentplane/internal/audit"
	"github.com/agentplane/agentplane/internal/permission"
)

// CreateRoleRequest represents role registration data
type CreateRoleRequest struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	Permissions  []PermissionPayload `json:"permissions"`
	InheritsFrom []string            `json:"inherits_from,omitempty"`
}

// PermissionPayload is the wire form of a permission grant.
type PermissionPayload struct {
	Resource   string         `json:"resource"`
	Level      string         `json:"level"`
	Conditions map[string]any `json:"conditions,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

func (p PermissionPayload) toPermission() (permission.Permission, error) {
	level, err := permission.ParseLevel(p.Level)
	if err != nil {
		return permission.Permission{}, err
	}
	return permission.Permission{
		Resource:   p.Resource,
		Level:      level,
		Conditions: p.Conditions,
		ExpiresAt:  p.ExpiresAt,
	}, nil
}

// CreateRole registers a new role
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "role name is required")
		return
	}

	perms := make([]permission.Permission, 0, len(req.Permissions))
	for _, payload := range req.Permissions {
		p, err := payload.toPermission()
		if err != nil {
			respondDomainError(w, err)
			return
		}
		perms = append(perms, p)
	}

	role := permission.Role{
		Name:         req.Name,
		Description:  req.Description,
		Permissions:  perms,
		InheritsFrom: req.InheritsFrom,
	}
	if err := h.engine.CreateRole(role); err != nil {
		respondDomainError(w, err)
		return
	}

	h.trail.Log(r.Context(), audit.Event{
		Type:     audit.TypeRoleCreated,
		Resource: req.Name,
	})
	respondJSON(w, http.StatusCreated, role)
}

// ListRoles returns all registered roles
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.ListRoles())
}

// AssignRoleRequest represents role assignment data
type AssignRoleRequest struct {
	Role string `json:"role"`
}

// AssignRole attaches a role to an agent
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req AssignRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.AssignRole(agentID, req.Role); err != nil {
		respondDomainError(w, err)
		return
	}

	h.trail.Log(r.Context(), audit.Event{
		Type:     audit.TypeRoleAssigned,
		AgentID:  agentID,
		Resource: req.Role,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "assigned"})
}

// RevokeRole detaches a role from an agent
func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	role := chi.URLParam(r, "role")

	revoked := h.engine.RevokeRole(agentID, role)
	if revoked {
		h.trail.Log(r.Context(), audit.Event{
			Type:     audit.TypeRoleRevoked,
			AgentID:  agentID,
			Resource: role,
		})
	}
	respondJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

// GrantPermissionRequest represents a permission grant
type GrantPermissionRequest struct {
	PermissionPayload
	TenantID string `json:"tenant_id,omitempty"`
}

// GrantPermission grants a permission directly to an agent
func (h *Handler) GrantPermission(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var req GrantPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := req.toPermission()
	if err != nil {
		respondDomainError(w, err)
		return
	}

	h.engine.GrantPermission(agentID, p, req.TenantID)
	h.trail.Log(r.Context(), audit.Event{
		Type:     audit.TypePermissionGranted,
		TenantID: req.TenantID,
		AgentID:  agentID,
		Resource: p.Resource,
		Details:  map[string]any{"level": p.Level.String()},
	})
	respondJSON(w, http.StatusCreated, map[string]string{"status": "granted"})
}

// RevokePermission removes grants for a resource pattern
func (h *Handler) RevokePermission(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	resource := r.URL.Query().Get("resource")
	tenantID := r.URL.Query().Get("tenant_id")
	if resource == "" {
		respondError(w, http.StatusBadRequest, "resource is required")
		return
	}

	revoked := h.engine.RevokePermission(agentID, resource, tenantID)
	if revoked {
		h.trail.Log(r.Context(), audit.Event{
			Type:     audit.TypePermissionRevoked,
			TenantID: tenantID,
			AgentID:  agentID,
			Resource: resource,
		})
	}
	respondJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

// ResolvePermissions returns the agent's live permission set
func (h *Handler) ResolvePermissions(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	tenantID := r.URL.Query().Get("tenant_id")
	respondJSON(w, http.StatusOK, h.engine.ResolvePermissions(agentID, tenantID))
}

// CheckPermissionRequest represents a permission check
type CheckPermissionRequest struct {
	AgentID  string         `json:"agent_id"`
	Resource string         `json:"resource"`
	Level    string         `json:"level"`
	TenantID string         `json:"tenant_id,omitempty"`
	Context  map[string]any `json:"context,omitempty"`
}

// CheckPermission evaluates one permission check and reports the decision.
func (h *Handler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req CheckPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	level, err := permission.ParseLevel(req.Level)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	allowed := h.engine.Check(r.Context(), req.AgentID, req.Resource, level, req.TenantID, req.Context)
	if !allowed {
		h.trail.LogSecurityEvent(r.Context(), audit.TypeSecurityViolation,
			req.TenantID, req.AgentID, req.Resource, "permission_check",
			map[string]any{"required_level": level.String()})
	}
	respondJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}
