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

// Tier is a named bundle of default resource limits.
type Tier string

const (
	TierFree         Tier = "free"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// ParseTier validates a tier string.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierStarter, TierProfessional, TierEnterprise:
		return Tier(s), nil
	}
	return "", ErrInvalidTier
}

// tierLimits holds the default limit for every tracked metric per tier.
// Storage is megabytes.
var tierLimits = map[Tier]map[string]int64{
	TierFree: {
		MetricAgents:               2,
		MetricConcurrentExecutions: 1,
		MetricRequestsPerMinute:    60,
		MetricStorageMB:            100,
		MetricVectorDocuments:      1000,
		MetricHITLQueueSize:        10,
	},
	TierStarter: {
		MetricAgents:               10,
		MetricConcurrentExecutions: 5,
		MetricRequestsPerMinute:    300,
		MetricStorageMB:            1024,
		MetricVectorDocuments:      10000,
		MetricHITLQueueSize:        50,
	},
	TierProfessional: {
		MetricAgents:               50,
		MetricConcurrentExecutions: 20,
		MetricRequestsPerMinute:    1200,
		MetricStorageMB:            10240,
		MetricVectorDocuments:      100000,
		MetricHITLQueueSize:        200,
	},
	TierEnterprise: {
		MetricAgents:               500,
		MetricConcurrentExecutions: 100,
		MetricRequestsPerMinute:    6000,
		MetricStorageMB:            102400,
		MetricVectorDocuments:      1000000,
		MetricHITLQueueSize:        1000,
	},
}

// Limit returns the tier default for a metric. The second return is false
// for metrics the tier does not limit.
func (t Tier) Limit(metric string) (int64, bool) {
	limits, ok := tierLimits[t]
	if !ok {
		return 0, false
	}
	limit, ok := limits[metric]
	return limit, ok
}

// Limits returns a copy of all default limits for the tier.
func (t Tier) Limits() map[string]int64 {
	return cloneMap(tierLimits[t])
}
