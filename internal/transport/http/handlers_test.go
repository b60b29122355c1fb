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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentplane/agentplane/internal/agent"
	"github.com/agentplane/agentplane/internal/audit"
	"github.com/agentplane/agentplane/internal/isolation"
	"github.com/agentplane/agentplane/internal/permission"
	"github.com/agentplane/agentplane/internal/tenant"
)

func newTestRouter(t *testing.T) (*chi.Mux, *tenant.Manager, *audit.Trail) {
	t.Helper()
	trail := audit.NewTrail(audit.Config{})
	registry := agent.NewRegistry()
	manager := tenant.NewManager(registry, trail)
	engine := permission.NewEngine()
	coordinator := isolation.NewCoordinator(manager, trail, "tenant")

	h := NewHandler(manager, engine, trail, coordinator, registry)
	router := NewRouter(h, NewRateLimiter(10000, 10000))
	return router, manager, trail
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func createTenantHTTP(t *testing.T, router http.Handler, name, tier string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/v1/tenants", CreateTenantRequest{
		Name:         name,
		Tier:         tier,
		AutoActivate: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created tenant.Tenant
	decodeBody(t, rec, &created)
	return created.ID
}

func TestHTTP_HealthCheck(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_Tenant_CreateAndGet(t *testing.T) {
	router, _, _ := newTestRouter(t)

	tenantID := createTenantHTTP(t, router, "Acme", "professional")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/tenants/"+tenantID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got tenant.Tenant
	decodeBody(t, rec, &got)
	assert.Equal(t, "Acme", got.Name)
	assert.Equal(t, tenant.TierProfessional, got.Tier)
	assert.Equal(t, tenant.StatusActive, got.Status)
}

// TestPurpose: Validates the error-to-status mapping at the boundary:
// validation 400, absence 404, lifecycle refusals 403, conflicts 409,
// exhausted quotas 429.
// Scope: Integration Test (router + handlers + in-memory core)
// Security: Error responses must not leak internals and must be predictable
// Expected: Each scenario returns its mapped status code.
// Test Case ID: HTTP-01
func TestHTTP_StatusCodeMapping(t *testing.T) {
	router, manager, _ := newTestRouter(t)
	ctx := context.Background()

	// 400: bad tier
	rec := doJSON(t, router, http.MethodPost, "/api/v1/tenants",
		CreateTenantRequest{Name: "Acme", Tier: "platinum"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 400: empty name
	rec = doJSON(t, router, http.MethodPost, "/api/v1/tenants",
		CreateTenantRequest{Tier: "free"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// 404: unknown tenant
	rec = doJSON(t, router, http.MethodGet, "/api/v1/tenants/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// 403: scope against a suspended tenant
	tenantID := createTenantHTTP(t, router, "Acme", "free")
	require.NoError(t, manager.Suspend(ctx, tenantID, "abuse"))
	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/scopes", tenantID), OpenScopeRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 409: re-activating a suspended tenant
	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/activate", tenantID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// 409: duplicate role
	rec = doJSON(t, router, http.MethodPost, "/api/v1/roles",
		CreateRoleRequest{Name: "viewer"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// 404: assigning an unknown role
	rec = doJSON(t, router, http.MethodPost, "/api/v1/agents/a-1/roles",
		AssignRoleRequest{Role: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestPurpose: Validates the agent quota end to end over HTTP on the free
// tier: registrations up to the limit succeed, the next is rejected with
// 429, and deleting an agent frees a slot.
// Scope: Integration Test
// Security: Quota enforcement must hold at the outermost surface
// Expected: Two 201s, then a 429, then a 201 again after one delete.
// Test Case ID: HTTP-02
func TestHTTP_Agent_FreeTierQuota(t *testing.T) {
	router, _, _ := newTestRouter(t)
	tenantID := createTenantHTTP(t, router, "Acme", "free")

	var firstAgent agent.Agent
	rec := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/agents", tenantID), CreateAgentRequest{Name: "bot-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	decodeBody(t, rec, &firstAgent)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/agents", tenantID), CreateAgentRequest{Name: "bot-2"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/agents", tenantID), CreateAgentRequest{Name: "bot-3"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var denied map[string]string
	decodeBody(t, rec, &denied)
	assert.Contains(t, denied["error"], "quota exceeded")

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/agents/"+firstAgent.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/agents", tenantID), CreateAgentRequest{Name: "bot-4"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

// TestPurpose: Validates the scope lifecycle over HTTP: open consumes
// concurrency quota, a duplicate open conflicts, close releases the quota.
// Scope: Integration Test
// Security: Execution scopes are the isolation boundary for agent work
// Expected: Open returns 201 with a namespace, the duplicate 409, close 200,
// reopen 201, closing twice 404.
// Test Case ID: HTTP-03
func TestHTTP_Scope_Lifecycle(t *testing.T) {
	router, _, _ := newTestRouter(t)
	tenantID := createTenantHTTP(t, router, "Acme", "free")
	scopesPath := fmt.Sprintf("/api/v1/tenants/%s/scopes", tenantID)

	rec := doJSON(t, router, http.MethodPost, scopesPath, OpenScopeRequest{AgentID: "a-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var opened struct {
		ExecutionID string `json:"execution_id"`
		Namespace   string `json:"namespace"`
	}
	decodeBody(t, rec, &opened)
	assert.NotEmpty(t, opened.ExecutionID)
	assert.Equal(t, "tenant:"+tenantID, opened.Namespace)

	rec = doJSON(t, router, http.MethodPost, scopesPath, OpenScopeRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/scopes/"+opened.ExecutionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/scopes/"+opened.ExecutionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, scopesPath, OpenScopeRequest{})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHTTP_Scope_ConcurrencyQuota(t *testing.T) {
	router, _, _ := newTestRouter(t)
	// Free tier allows exactly one concurrent execution.
	tenantID := createTenantHTTP(t, router, "Acme", "free")
	scopesPath := fmt.Sprintf("/api/v1/tenants/%s/scopes", tenantID)
	usagePath := fmt.Sprintf("/api/v1/tenants/%s/usage/%s", tenantID, tenant.MetricConcurrentExecutions)

	// Consume the concurrency slot out of band, as an execution admitted
	// elsewhere would.
	rec := doJSON(t, router, http.MethodPost, usagePath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The open is refused by the quota and must not leave a scope behind.
	rec = doJSON(t, router, http.MethodPost, scopesPath, OpenScopeRequest{ExecutionID: "ex-1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, usagePath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, scopesPath, OpenScopeRequest{ExecutionID: "ex-2"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHTTP_Permission_GrantCheckRevoke(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/a-1/permissions",
		GrantPermissionRequest{
			PermissionPayload: PermissionPayload{Resource: "tool:search", Level: "execute"},
		})
	require.Equal(t, http.StatusCreated, rec.Code)

	check := func(level string) bool {
		rec := doJSON(t, router, http.MethodPost, "/api/v1/permissions/check",
			CheckPermissionRequest{AgentID: "a-1", Resource: "tool:search", Level: level})
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Allowed bool `json:"allowed"`
		}
		decodeBody(t, rec, &out)
		return out.Allowed
	}

	assert.True(t, check("read"))
	assert.True(t, check("execute"))
	assert.False(t, check("admin"))

	rec = doJSON(t, router, http.MethodDelete,
		"/api/v1/agents/a-1/permissions?resource=tool:search", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, check("read"))
}

func TestHTTP_Permission_RolesFlow(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/roles", CreateRoleRequest{
		Name: "auditor",
		Permissions: []PermissionPayload{
			{Resource: "audit:*", Level: "read"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/agents/a-1/roles",
		AssignRoleRequest{Role: "auditor"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/agents/a-1/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resolved []permission.Permission
	decodeBody(t, rec, &resolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, "audit:*", resolved[0].Resource)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/agents/a-1/roles/auditor", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/roles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var roles []permission.Role
	decodeBody(t, rec, &roles)
	assert.GreaterOrEqual(t, len(roles), 5)
}

func TestHTTP_Audit_QueryAndExport(t *testing.T) {
	router, _, _ := newTestRouter(t)
	tenantID := createTenantHTTP(t, router, "Acme", "free")

	rec := doJSON(t, router, http.MethodGet,
		"/api/v1/audit/events?tenant_id="+tenantID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var events []audit.Event
	decodeBody(t, rec, &events)
	require.NotEmpty(t, events)
	assert.Equal(t, audit.TypeTenantCreated, events[0].Type)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/audit/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats audit.Stats
	decodeBody(t, rec, &stats)
	assert.GreaterOrEqual(t, stats.Total, 1)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/audit/export?format=json", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/audit/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_Tenant_UsageEndpoints(t *testing.T) {
	router, _, _ := newTestRouter(t)
	tenantID := createTenantHTTP(t, router, "Acme", "free")

	usagePath := fmt.Sprintf("/api/v1/tenants/%s/usage/%s", tenantID, tenant.MetricVectorDocuments)

	rec := doJSON(t, router, http.MethodGet, usagePath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var allowed map[string]bool
	decodeBody(t, rec, &allowed)
	assert.True(t, allowed["allowed"])

	rec = doJSON(t, router, http.MethodPost, usagePath+"?amount=1000", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, usagePath, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, usagePath+"?amount=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, usagePath, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_Tenant_DeleteLifecycle(t *testing.T) {
	router, _, _ := newTestRouter(t)
	tenantID := createTenantHTTP(t, router, "Acme", "free")

	rec := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/agents", tenantID), CreateAgentRequest{Name: "bot"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/tenants/"+tenantID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/tenants/"+tenantID+"?force=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/tenants/"+tenantID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_Tenant_DeactivateLifecycle(t *testing.T) {
	router, _, _ := newTestRouter(t)
	tenantID := createTenantHTTP(t, router, "Acme", "free")

	rec := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/deactivate", tenantID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The record stays queryable but the tenant is out of the game.
	rec = doJSON(t, router, http.MethodGet, "/api/v1/tenants/"+tenantID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got tenant.Tenant
	decodeBody(t, rec, &got)
	assert.Equal(t, tenant.StatusDeactivated, got.Status)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/deactivate", tenantID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/activate", tenantID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/tenants/%s/scopes", tenantID), OpenScopeRequest{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
