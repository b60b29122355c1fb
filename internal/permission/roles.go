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

package permission

// Role is a named, inheritable bundle of permissions assignable to an
// agent. InheritsFrom names parent roles; resolution tolerates cycles.
type Role struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Permissions  []Permission `json:"permissions"`
	InheritsFrom []string     `json:"inherits_from,omitempty"`
}

// -----------------------------------------------------------------------------
// Default Role Names
// These are the canonical roles seeded into every engine.
// -----------------------------------------------------------------------------

const (
	// RoleViewer can read everything.
	RoleViewer = "viewer"

	// RoleOperator can execute everything and inherits viewer.
	RoleOperator = "operator"

	// RoleAdmin holds admin over everything and inherits operator.
	RoleAdmin = "admin"

	// RoleSupportAgent holds a narrow tool allow-list for customer support
	// workloads. Outbound email is gated on an approval flag in the check
	// context.
	RoleSupportAgent = "support_agent"
)

func defaultRoles() []Role {
	return []Role{
		{
			Name:        RoleViewer,
			Description: "Read-only access to all resources",
			Permissions: []Permission{
				{Resource: "*", Level: LevelRead},
			},
		},
		{
			Name:         RoleOperator,
			Description:  "Execute access to all resources",
			Permissions:  []Permission{{Resource: "*", Level: LevelExecute}},
			InheritsFrom: []string{RoleViewer},
		},
		{
			Name:         RoleAdmin,
			Description:  "Full administrative access",
			Permissions:  []Permission{{Resource: "*", Level: LevelAdmin}},
			InheritsFrom: []string{RoleOperator},
		},
		{
			Name:        RoleSupportAgent,
			Description: "Support tooling allow-list",
			Permissions: []Permission{
				{Resource: "tool:search_kb", Level: LevelExecute},
				{Resource: "tool:create_ticket", Level: LevelExecute},
				{Resource: "tool:update_ticket", Level: LevelExecute},
				{
					Resource:   "tool:send_email",
					Level:      LevelExecute,
					Conditions: map[string]any{"requires_approval": true},
				},
			},
		},
	}
}
