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

package audit

import (
	"context"
	"log/slog"
	"strings"
)

// NewSlogSink returns a sink that mirrors every event to the structured log.
// It never fails; it exists so an operator always has an audit stream even
// when no durable sink is configured.
func NewSlogSink() Sink {
	return func(ctx context.Context, event Event) error {
		attrs := []any{
			slog.String("audit_type", string(event.Type)),
			slog.String("event_id", event.ID),
			slog.Time("timestamp", event.Timestamp),
		}
		if event.TenantID != "" {
			attrs = append(attrs, slog.String("tenant_id", event.TenantID))
		}
		if event.AgentID != "" {
			attrs = append(attrs, slog.String("agent_id", event.AgentID))
		}
		if event.UserID != "" {
			attrs = append(attrs, slog.String("user_id", event.UserID))
		}
		if event.ExecutionID != "" {
			attrs = append(attrs, slog.String("execution_id", event.ExecutionID))
		}
		if event.Resource != "" {
			attrs = append(attrs, slog.String("resource", event.Resource))
		}
		if event.Action != "" {
			attrs = append(attrs, slog.String("action", event.Action))
		}
		if event.Outcome != "" {
			attrs = append(attrs, slog.String("outcome", event.Outcome))
		}

		// Flatten details, redacting secrets
		if len(event.Details) > 0 {
			group := []any{}
			for k, v := range event.Details {
				if isSecret(k) {
					v = "[REDACTED]"
				}
				group = append(group, slog.Any(k, v))
			}
			attrs = append(attrs, slog.Group("details", group...))
		}

		slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
		return nil
	}
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	key = strings.ToLower(key)
	secrets := []string{"password", "secret", "token", "key", "credential", "hash", "authorization"}
	for _, s := range secrets {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
