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

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/agentplane/agentplane/internal/audit"
)

// NewAuditSink returns an audit.Sink writing events to the audit_events
// table. The trail invokes it fire-and-forget; returned errors are logged
// by the trail and never reach the event's producer.
func NewAuditSink(db *DB) audit.Sink {
	return func(ctx context.Context, event audit.Event) error {
		var details []byte
		if len(event.Details) > 0 {
			var err error
			details, err = json.Marshal(event.Details)
			if err != nil {
				return fmt.Errorf("failed to encode event details: %w", err)
			}
		}

		_, err := db.pool.Exec(ctx, `
			INSERT INTO audit_events (id, event_type, occurred_at, tenant_id, agent_id, user_id, execution_id, resource, action, outcome, details)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING
		`,
			event.ID,
			string(event.Type),
			event.Timestamp,
			nullable(event.TenantID),
			nullable(event.AgentID),
			nullable(event.UserID),
			nullable(event.ExecutionID),
			nullable(event.Resource),
			nullable(event.Action),
			nullable(event.Outcome),
			details,
		)
		if err != nil {
			return fmt.Errorf("failed to persist audit event: %w", err)
		}
		return nil
	}
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
