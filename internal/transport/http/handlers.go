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
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/agentplane/agentplane/internal/agent"
	"github.com/agentplane/agentplane/internal/audit"
	"github.com/agentplane/agentplane/internal/isolation"
	"github.com/agentplane/agentplane/internal/permission"
	"github.com/agentplane/agentplane/internal/tenant"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	tenants     *tenant.Manager
	engine      *permission.Engine
	trail       *audit.Trail
	coordinator *isolation.Coordinator
	agents      *agent.Registry

	mu     sync.Mutex
	scopes map[string]isolation.CloseFunc // execution id -> scope teardown
}

// NewHandler creates a new HTTP handler
func NewHandler(
	tenants *tenant.Manager,
	engine *permission.Engine,
	trail *audit.Trail,
	coordinator *isolation.Coordinator,
	agents *agent.Registry,
) *Handler {
	return &Handler{
		tenants:     tenants,
		engine:      engine,
		trail:       trail,
		coordinator: coordinator,
		agents:      agents,
		scopes:      make(map[string]isolation.CloseFunc),
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tenants", func(r chi.Router) {
			r.Post("/", h.CreateTenant)
			r.Get("/", h.ListTenants)
			r.Get("/{tenantID}", h.GetTenant)
			r.Patch("/{tenantID}", h.UpdateTenant)
			r.Delete("/{tenantID}", h.DeleteTenant)
			r.Post("/{tenantID}/activate", h.ActivateTenant)
			r.Post("/{tenantID}/suspend", h.SuspendTenant)
			r.Post("/{tenantID}/deactivate", h.DeactivateTenant)
			r.Post("/{tenantID}/agents", h.CreateAgent)
			r.Post("/{tenantID}/usage/{metric}", h.RecordUsage)
			r.Delete("/{tenantID}/usage/{metric}", h.ReleaseUsage)
			r.Get("/{tenantID}/usage/{metric}", h.CheckLimit)
			r.Post("/{tenantID}/scopes", h.OpenScope)
		})

		r.Delete("/scopes/{executionID}", h.CloseScope)

		r.Route("/agents", func(r chi.Router) {
			r.Delete("/{agentID}", h.DeleteAgent)
			r.Post("/{agentID}/roles", h.AssignRole)
			r.Delete("/{agentID}/roles/{role}", h.RevokeRole)
			r.Post("/{agentID}/permissions", h.GrantPermission)
			r.Delete("/{agentID}/permissions", h.RevokePermission)
			r.Get("/{agentID}/permissions", h.ResolvePermissions)
		})

		r.Post("/roles", h.CreateRole)
		r.Get("/roles", h.ListRoles)
		r.Post("/permissions/check", h.CheckPermission)

		r.Route("/audit", func(r chi.Router) {
			r.Get("/events", h.QueryAuditEvents)
			r.Get("/executions/{executionID}", h.GetExecutionTrail)
			r.Get("/security", h.GetSecurityEvents)
			r.Get("/human", h.GetHumanInteractions)
			r.Get("/stats", h.GetAuditStats)
			r.Get("/export", h.ExportAudit)
		})
	})

	return r
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps domain errors to the boundary status codes. Persistence
// failures never reach this mapping; the core degrades to in-memory-only
// operation instead of surfacing them.
func statusFor(err error) int {
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound),
		errors.Is(err, permission.ErrRoleNotFound):
		return http.StatusNotFound
	case errors.Is(err, tenant.ErrTenantInactive),
		errors.Is(err, isolation.ErrNoActiveScope):
		return http.StatusForbidden
	case errors.Is(err, tenant.ErrActiveAgents),
		errors.Is(err, tenant.ErrInvalidTransition),
		errors.Is(err, permission.ErrRoleAlreadyExists),
		errors.Is(err, isolation.ErrScopeActive):
		return http.StatusConflict
	case errors.Is(err, tenant.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, tenant.ErrValidation),
		errors.Is(err, tenant.ErrInvalidTier),
		errors.Is(err, tenant.ErrInvalidStatus),
		errors.Is(err, permission.ErrInvalidLevel),
		errors.Is(err, audit.ErrUnknownFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondDomainError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// registerScope remembers a scope teardown keyed by execution id.
func (h *Handler) registerScope(executionID string, close isolation.CloseFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scopes[executionID] = close
}

// takeScope removes and returns a registered teardown.
func (h *Handler) takeScope(executionID string) (isolation.CloseFunc, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	close, ok := h.scopes[executionID]
	if ok {
		delete(h.scopes, executionID)
	}
	return close, ok
}
