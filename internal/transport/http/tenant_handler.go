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
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentplane/agentplane/internal/audit"
	"github.com/agentplane/agentplane/internal/tenant"
)

// CreateTenantRequest represents tenant creation data
type CreateTenantRequest struct {
	Name                string           `json:"name"`
	Tier                string           `json:"tier"`
	OwnerID             string           `json:"owner_id,omitempty"`
	AllowedCapabilities []string         `json:"allowed_capabilities,omitempty"`
	CustomLimits        map[string]int64 `json:"custom_limits,omitempty"`
	Settings            map[string]any   `json:"settings,omitempty"`
	ExternalKey         string           `json:"external_key,omitempty"`
	AutoActivate        bool             `json:"auto_activate"`
}

// CreateTenant handles tenant creation
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.tenants.Create(r.Context(), tenant.CreateParams{
		Name:                req.Name,
		Tier:                req.Tier,
		OwnerID:             req.OwnerID,
		AllowedCapabilities: req.AllowedCapabilities,
		CustomLimits:        req.CustomLimits,
		Settings:            req.Settings,
		ExternalKey:         req.ExternalKey,
		AutoActivate:        req.AutoActivate,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, t)
}

// ListTenants lists tenants with optional status/tier filters.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	filter := tenant.ListFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := tenant.ParseStatus(s)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		filter.Status = status
	}
	if s := r.URL.Query().Get("tier"); s != "" {
		tier, err := tenant.ParseTier(s)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		filter.Tier = tier
	}

	respondJSON(w, http.StatusOK, h.tenants.List(r.Context(), filter))
}

// GetTenant retrieves a tenant
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.tenants.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// UpdateTenantRequest represents partial tenant updates
type UpdateTenantRequest struct {
	Name                *string          `json:"name,omitempty"`
	Tier                *string          `json:"tier,omitempty"`
	AllowedCapabilities *[]string        `json:"allowed_capabilities,omitempty"`
	CustomLimits        map[string]int64 `json:"custom_limits,omitempty"`
	Settings            map[string]any   `json:"settings,omitempty"`
}

// UpdateTenant applies a partial update
func (h *Handler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	var req UpdateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.tenants.Update(r.Context(), chi.URLParam(r, "tenantID"), tenant.UpdateParams{
		Name:                req.Name,
		Tier:                req.Tier,
		AllowedCapabilities: req.AllowedCapabilities,
		CustomLimits:        req.CustomLimits,
		Settings:            req.Settings,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// DeleteTenant removes a tenant; ?force=true cascades over active agents.
func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := h.tenants.Delete(r.Context(), chi.URLParam(r, "tenantID"), force); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ActivateTenant transitions a pending tenant to active
func (h *Handler) ActivateTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.tenants.Activate(r.Context(), chi.URLParam(r, "tenantID")); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// SuspendTenantRequest carries the suspension reason
type SuspendTenantRequest struct {
	Reason string `json:"reason"`
}

// SuspendTenant suspends a tenant
func (h *Handler) SuspendTenant(w http.ResponseWriter, r *http.Request) {
	var req SuspendTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.tenants.Suspend(r.Context(), chi.URLParam(r, "tenantID"), req.Reason); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

// DeactivateTenant retires a tenant while keeping its record queryable
func (h *Handler) DeactivateTenant(w http.ResponseWriter, r *http.Request) {
	if err := h.tenants.Deactivate(r.Context(), chi.URLParam(r, "tenantID")); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// CreateAgentRequest represents agent registration data
type CreateAgentRequest struct {
	Name string `json:"name"`
}

// CreateAgent registers an agent for a tenant, consuming one unit of the
// agents quota.
func (h *Handler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req CreateAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.tenants.RecordUsage(r.Context(), tenantID, tenant.MetricAgents, 1) {
		respondDomainError(w, fmt.Errorf("%w: %s", tenant.ErrQuotaExceeded, tenant.MetricAgents))
		return
	}

	a := h.agents.Register(r.Context(), tenantID, req.Name)
	h.trail.LogAgentEvent(r.Context(), audit.TypeAgentCreated, tenantID, a.ID,
		map[string]any{"name": a.Name})
	respondJSON(w, http.StatusCreated, a)
}

// DeleteAgent removes an agent and releases its quota unit.
func (h *Handler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	a, ok := h.agents.Get(r.Context(), agentID)
	if !ok {
		respondError(w, http.StatusNotFound, "agent not found")
		return
	}
	h.agents.RemoveAgent(r.Context(), agentID)
	h.tenants.ReleaseUsage(r.Context(), a.TenantID, tenant.MetricAgents, 1)
	h.trail.LogAgentEvent(r.Context(), audit.TypeAgentDeleted, a.TenantID, agentID, nil)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// RecordUsage increments a usage counter; 429 when the limit is hit.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	metric := chi.URLParam(r, "metric")
	amount := int64(queryInt(r, "amount", 1))

	if !h.tenants.RecordUsage(r.Context(), tenantID, metric, amount) {
		respondDomainError(w, fmt.Errorf("%w: %s", tenant.ErrQuotaExceeded, metric))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// ReleaseUsage decrements a usage counter.
func (h *Handler) ReleaseUsage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	metric := chi.URLParam(r, "metric")
	amount := int64(queryInt(r, "amount", 1))

	h.tenants.ReleaseUsage(r.Context(), tenantID, metric, amount)
	respondJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// CheckLimit reports whether one more unit of the metric fits the limit.
func (h *Handler) CheckLimit(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	metric := chi.URLParam(r, "metric")
	respondJSON(w, http.StatusOK, map[string]bool{"allowed": h.tenants.CheckLimit(tenantID, metric)})
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}
