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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Load_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, "json", cfg.Observability.LogFormat)
	assert.Equal(t, 10000, cfg.Audit.MaxEvents)
	assert.Equal(t, 60*time.Second, cfg.Governance.RateResetInterval)
	assert.Equal(t, "tenant", cfg.Governance.NamespacePrefix)
}

func TestConfig_Load_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("AUDIT_MAX_EVENTS", "500")
	t.Setenv("GOVERNANCE_RATE_RESET_INTERVAL", "30s")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 500, cfg.Audit.MaxEvents)
	assert.Equal(t, 30*time.Second, cfg.Governance.RateResetInterval)
	assert.True(t, cfg.Observability.OTELEnabled)
}

// TestPurpose: Validates that a configured database without credentials is
// rejected rather than silently connecting unauthenticated.
// Scope: Unit Test
// Security: Fail fast on incomplete credentials (CWE-306)
// Expected: Load fails when DB_HOST is set without DB_PASSWORD and passes
// once the password is provided.
// Test Case ID: CFG-01
func TestConfig_Validate_DatabasePassword(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")

	t.Setenv("DB_PASSWORD", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Database.Enabled())
}

func TestConfig_Validate_AuditMaxEvents(t *testing.T) {
	t.Setenv("AUDIT_MAX_EVENTS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIT_MAX_EVENTS")
}
