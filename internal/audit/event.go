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

import "time"

// EventType tags an audit event. The set is closed; free-form detail goes
// into Event.Details, never into new types.
type EventType string

// Tenant lifecycle
const (
	TypeTenantCreated     EventType = "tenant_created"
	TypeTenantActivated   EventType = "tenant_activated"
	TypeTenantSuspended   EventType = "tenant_suspended"
	TypeTenantDeactivated EventType = "tenant_deactivated"
	TypeTenantUpdated     EventType = "tenant_updated"
	TypeTenantDeleted     EventType = "tenant_deleted"
)

// Agent lifecycle
const (
	TypeAgentCreated EventType = "agent_created"
	TypeAgentUpdated EventType = "agent_updated"
	TypeAgentDeleted EventType = "agent_deleted"
)

// Execution lifecycle
const (
	TypeExecutionStarted   EventType = "execution_started"
	TypeExecutionCompleted EventType = "execution_completed"
	TypeExecutionFailed    EventType = "execution_failed"
	TypeStepExecuted       EventType = "step_executed"
	TypeToolInvoked        EventType = "tool_invoked"
)

// Human in the loop
const (
	TypeHumanInputRequested EventType = "human_input_requested"
	TypeHumanInputReceived  EventType = "human_input_received"
	TypeHumanApproval       EventType = "human_approval"
)

// Governance changes and security decisions
const (
	TypeRoleCreated       EventType = "role_created"
	TypeRoleAssigned      EventType = "role_assigned"
	TypeRoleRevoked       EventType = "role_revoked"
	TypePermissionGranted EventType = "permission_granted"
	TypePermissionRevoked EventType = "permission_revoked"
	TypeEscalation        EventType = "escalation"
	TypeDataAccess        EventType = "data_access"
	TypeSecurityViolation EventType = "security_violation"
	TypeRateLimitExceeded EventType = "rate_limit_exceeded"
)

// Event represents an auditable action. Events are immutable once appended;
// the trail stores its own copy and never hands out aliases to Details.
type Event struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	TenantID    string         `json:"tenant_id,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Resource    string         `json:"resource,omitempty"`
	Action      string         `json:"action,omitempty"`
	Outcome     string         `json:"outcome,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

func (e Event) clone() Event {
	if e.Details != nil {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	return e
}

var securityTypes = map[EventType]bool{
	TypeEscalation:        true,
	TypeSecurityViolation: true,
	TypeRateLimitExceeded: true,
}

var humanTypes = map[EventType]bool{
	TypeHumanInputRequested: true,
	TypeHumanInputReceived:  true,
	TypeHumanApproval:       true,
}

// IsSecurity reports whether the event is a security decision.
func (e Event) IsSecurity() bool { return securityTypes[e.Type] }

// IsHumanInteraction reports whether the event is a human-in-the-loop step.
func (e Event) IsHumanInteraction() bool { return humanTypes[e.Type] }
