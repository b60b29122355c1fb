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
)

// QueryAuditEvents runs a filtered trail query, newest first.
func (h *Handler) QueryAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		TenantID:  q.Get("tenant_id"),
		AgentID:   q.Get("agent_id"),
		UserID:    q.Get("user_id"),
		EventType: audit.EventType(q.Get("event_type")),
		Limit:     queryInt(r, "limit", 100),
		Offset:    queryInt(r, "offset", 0),
	}
	if s := q.Get("start"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		filter.Start = ts
	}
	if s := q.Get("end"); s != "" {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		filter.End = ts
	}

	respondJSON(w, http.StatusOK, h.trail.Query(filter))
}

// GetExecutionTrail returns one execution's events in causal order.
func (h *Handler) GetExecutionTrail(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.trail.ExecutionTrail(chi.URLParam(r, "executionID")))
}

// GetSecurityEvents returns security decisions, newest first.
func (h *Handler) GetSecurityEvents(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK,
		h.trail.SecurityEvents(r.URL.Query().Get("tenant_id"), queryInt(r, "limit", 100)))
}

// GetHumanInteractions returns human-in-the-loop events, newest first.
func (h *Handler) GetHumanInteractions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK,
		h.trail.HumanInteractions(r.URL.Query().Get("tenant_id"), queryInt(r, "limit", 100)))
}

// GetAuditStats returns aggregate trail statistics.
func (h *Handler) GetAuditStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.trail.GetStats())
}

// ExportAudit serializes the trail in the requested format.
func (h *Handler) ExportAudit(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = audit.FormatJSON
	}

	bundle, err := h.trail.Export(format, r.URL.Query().Get("tenant_id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}
