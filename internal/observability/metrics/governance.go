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

package metrics

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Governance counters. They are created against the global meter provider,
// so they are no-ops until a real provider is installed.
var (
	PermissionChecks metric.Int64Counter
	QuotaDenials     metric.Int64Counter
	AuditEvents      metric.Int64Counter
)

func init() {
	meter := otel.Meter("agentplane/governance")
	PermissionChecks, _ = meter.Int64Counter("permission_checks_total",
		metric.WithDescription("Total permission checks evaluated"))
	QuotaDenials, _ = meter.Int64Counter("quota_denials_total",
		metric.WithDescription("Usage increments rejected by quota limits"))
	AuditEvents, _ = meter.Int64Counter("audit_events_total",
		metric.WithDescription("Audit events appended to the trail"))
}
