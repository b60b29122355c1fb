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

	"github.com/go-chi/chi/v5"

	"github.com/agentplane/agentplane/internal/audit"
	"github.com/agentplane/agentplane/internal/id"
	"github.com/agentplane/agentplane/internal/isolation"
	"github.com/agentplane/agentplane/internal/tenant"
)

// OpenScopeRequest represents scope opening data
type OpenScopeRequest struct {
	ExecutionID      string   `json:"execution_id,omitempty"`
	AgentID          string   `json:"agent_id,omitempty"`
	AllowedResources []string `json:"allowed_resources,omitempty"`
	DeniedResources  []string `json:"denied_resources,omitempty"`
}

// OpenScope opens an isolation scope for one execution and consumes one
// unit of the concurrency quota. The scope stays registered until
// CloseScope runs for the returned execution id.
func (h *Handler) OpenScope(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	var req OpenScopeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	executionID := req.ExecutionID
	if executionID == "" {
		executionID = id.NewUUIDv7()
	}

	// The coordinator rules on tenant state first so a suspended tenant is
	// refused as inactive, not as out of quota.
	scopeCtx, closeScope, err := h.coordinator.OpenScope(r.Context(), tenantID, isolation.AccessRules{
		Allow: req.AllowedResources,
		Deny:  req.DeniedResources,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if !h.tenants.RecordUsage(r.Context(), tenantID, tenant.MetricConcurrentExecutions, 1) {
		closeScope()
		respondDomainError(w, fmt.Errorf("%w: %s", tenant.ErrQuotaExceeded, tenant.MetricConcurrentExecutions))
		return
	}

	ic, _ := isolation.FromContext(scopeCtx)
	h.registerScope(executionID, func() {
		closeScope()
		h.tenants.ReleaseUsage(r.Context(), tenantID, tenant.MetricConcurrentExecutions, 1)
	})

	h.trail.LogExecutionEvent(r.Context(), audit.TypeExecutionStarted,
		tenantID, req.AgentID, executionID, "", nil)

	respondJSON(w, http.StatusCreated, map[string]any{
		"execution_id": executionID,
		"tenant_id":    tenantID,
		"namespace":    ic.Namespace,
	})
}

// CloseScope tears down a previously opened scope.
func (h *Handler) CloseScope(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionID")

	closeScope, ok := h.takeScope(executionID)
	if !ok {
		respondError(w, http.StatusNotFound, "scope not found")
		return
	}
	closeScope()

	h.trail.LogExecutionEvent(r.Context(), audit.TypeExecutionCompleted,
		"", "", executionID, "completed", nil)
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
