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

package tenant

import (
	"time"
)

// Status is a tenant lifecycle state. Transitions are one-way:
// pending→active, active→suspended, any→deactivated. There is no
// re-entry into pending.
type Status string

const (
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusSuspended   Status = "suspended"
	StatusDeactivated Status = "deactivated"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusActive, StatusSuspended, StatusDeactivated:
		return Status(s), nil
	}
	return "", ErrInvalidStatus
}

// Usage metric names. Unknown metrics are unconditionally allowed by
// CheckLimit, so collaborators may record ad-hoc metrics without limits.
const (
	MetricAgents               = "agents"
	MetricConcurrentExecutions = "concurrent_executions"
	MetricRequestsPerMinute    = "requests_this_minute"
	MetricStorageMB            = "storage"
	MetricVectorDocuments      = "vector_documents"
	MetricHITLQueueSize        = "hitl_queue_size"
)

// Metrics lists every tracked usage counter.
var Metrics = []string{
	MetricAgents,
	MetricConcurrentExecutions,
	MetricRequestsPerMinute,
	MetricStorageMB,
	MetricVectorDocuments,
	MetricHITLQueueSize,
}

// Tenant represents an isolated customer account with its own quotas and
// capabilities. Usage counters are owned exclusively by the Manager; other
// components only ever see copies.
type Tenant struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Tier                Tier             `json:"tier"`
	Status              Status           `json:"status"`
	OwnerID             string           `json:"owner_id,omitempty"`
	AllowedCapabilities []string         `json:"allowed_capabilities,omitempty"`
	CustomLimits        map[string]int64 `json:"custom_limits,omitempty"`
	Settings            map[string]any   `json:"settings,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	Usage               map[string]int64 `json:"usage"`
	ExternalKeyHash     string           `json:"-"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// IsActive reports whether the tenant may run work.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// LimitFor resolves the effective limit for a metric: a custom limit wins
// over the tier default. The second return is false for unlimited metrics.
func (t *Tenant) LimitFor(metric string) (int64, bool) {
	if limit, ok := t.CustomLimits[metric]; ok {
		return limit, true
	}
	return t.Tier.Limit(metric)
}

// Clone returns a deep copy safe to hand outside the Manager's lock.
func (t *Tenant) Clone() *Tenant {
	c := *t
	if t.AllowedCapabilities != nil {
		c.AllowedCapabilities = append([]string(nil), t.AllowedCapabilities...)
	}
	c.CustomLimits = cloneMap(t.CustomLimits)
	c.Usage = cloneMap(t.Usage)
	c.Metadata = cloneMap(t.Metadata)
	if t.Settings != nil {
		c.Settings = make(map[string]any, len(t.Settings))
		for k, v := range t.Settings {
			c.Settings[k] = v
		}
	}
	return &c
}

func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	c := make(map[string]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
