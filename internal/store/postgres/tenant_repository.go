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
	"encoding/json"
	"fmt"

	"github.com/agentplane/agentplane/internal/tenant"
)

// TenantRepository implements tenant.Mirror: a best-effort durable snapshot
// of tenant state. The Manager remains the authority; this table is only
// read back by operators and offline tooling.
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant mirror repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// SaveTenant upserts the tenant snapshot.
func (r *TenantRepository) SaveTenant(ctx context.Context, t *tenant.Tenant) error {
	capabilities, err := json.Marshal(t.AllowedCapabilities)
	if err != nil {
		return fmt.Errorf("failed to encode capabilities: %w", err)
	}
	customLimits, err := json.Marshal(t.CustomLimits)
	if err != nil {
		return fmt.Errorf("failed to encode custom limits: %w", err)
	}
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	usage, err := json.Marshal(t.Usage)
	if err != nil {
		return fmt.Errorf("failed to encode usage: %w", err)
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, tier, status, owner_id, external_key_hash, capabilities, custom_limits, settings, metadata, usage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			owner_id = EXCLUDED.owner_id,
			external_key_hash = EXCLUDED.external_key_hash,
			capabilities = EXCLUDED.capabilities,
			custom_limits = EXCLUDED.custom_limits,
			settings = EXCLUDED.settings,
			metadata = EXCLUDED.metadata,
			usage = EXCLUDED.usage,
			updated_at = EXCLUDED.updated_at
	`,
		t.ID, t.Name, string(t.Tier), string(t.Status),
		nullable(t.OwnerID), nullable(t.ExternalKeyHash),
		capabilities, customLimits, settings, metadata, usage,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant snapshot: %w", err)
	}
	return nil
}

// DeleteTenant removes the tenant snapshot.
func (r *TenantRepository) DeleteTenant(ctx context.Context, id string) error {
	if _, err := r.db.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete tenant snapshot: %w", err)
	}
	return nil
}
