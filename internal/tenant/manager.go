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
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/agentplane/agentplane/internal/audit"
	"github.com/agentplane/agentplane/internal/id"
	"github.com/agentplane/agentplane/internal/observability/metrics"
)

// Change describes a tenant lifecycle transition delivered to listeners.
type Change struct {
	Type   string
	Tenant *Tenant
}

// Change types
const (
	ChangeCreated     = "created"
	ChangeActivated   = "activated"
	ChangeSuspended   = "suspended"
	ChangeDeactivated = "deactivated"
	ChangeUpdated     = "updated"
	ChangeDeleted     = "deleted"
)

// ChangeListener receives tenant lifecycle notifications. Listeners run on
// the caller's goroutine after the store lock is released.
type ChangeListener func(ctx context.Context, change Change)

// CreateParams holds tenant creation input.
type CreateParams struct {
	Name                string
	Tier                string
	OwnerID             string
	AllowedCapabilities []string
	CustomLimits        map[string]int64
	Settings            map[string]any
	ExternalKey         string
	AutoActivate        bool
}

// UpdateParams holds partial tenant updates. Nil fields are left untouched.
type UpdateParams struct {
	Name                *string
	Tier                *string
	AllowedCapabilities *[]string
	CustomLimits        map[string]int64
	Settings            map[string]any
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Tier   Tier
	Limit  int
	Offset int
}

// Manager owns tenant state: lifecycle, quota accounting and change
// notification. All mutation happens under one mutex; reads hand out clones
// so callers never alias the counters.
type Manager struct {
	mu           sync.Mutex
	tenants      map[string]*Tenant
	externalKeys map[string]string // key hash -> tenant id
	registry     AgentRegistry
	recorder     audit.Recorder
	mirror       Mirror
	listeners    []ChangeListener
}

// NewManager creates a tenant manager. The registry may be nil when no
// execution engine is attached; deletion cascades then have nothing to
// remove.
func NewManager(registry AgentRegistry, recorder audit.Recorder) *Manager {
	return &Manager{
		tenants:      make(map[string]*Tenant),
		externalKeys: make(map[string]string),
		registry:     registry,
		recorder:     recorder,
	}
}

// SetMirror attaches a best-effort durable mirror.
func (m *Manager) SetMirror(mirror Mirror) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirror = mirror
}

// OnChange registers a lifecycle listener.
func (m *Manager) OnChange(l ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Create registers a new tenant. Status is active iff AutoActivate,
// otherwise pending.
func (m *Manager) Create(ctx context.Context, params CreateParams) (*Tenant, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", ErrValidation)
	}
	tier, err := ParseTier(params.Tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTier, params.Tier)
	}

	status := StatusPending
	if params.AutoActivate {
		status = StatusActive
	}

	now := time.Now()
	t := &Tenant{
		ID:                  id.NewUUIDv7(),
		Name:                params.Name,
		Tier:                tier,
		Status:              status,
		OwnerID:             params.OwnerID,
		AllowedCapabilities: append([]string(nil), params.AllowedCapabilities...),
		CustomLimits:        cloneMap(params.CustomLimits),
		Settings:            params.Settings,
		Metadata:            make(map[string]string),
		Usage:               newUsage(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if params.ExternalKey != "" {
		t.ExternalKeyHash = HashExternalKey(params.ExternalKey)
	}

	m.mu.Lock()
	m.tenants[t.ID] = t
	if t.ExternalKeyHash != "" {
		m.externalKeys[t.ExternalKeyHash] = t.ID
	}
	m.mu.Unlock()

	snapshot := t.Clone()
	m.recorder.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		UserID:   params.OwnerID,
		Details:  map[string]any{"name": t.Name, "tier": string(t.Tier), "status": string(t.Status)},
	})
	m.mirrorSave(ctx, snapshot)
	m.notify(ctx, Change{Type: ChangeCreated, Tenant: snapshot})
	return snapshot, nil
}

// Get returns a copy of the tenant.
func (m *Manager) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return t.Clone(), nil
}

// ResolveByExternalKey looks a tenant up by its registered external key.
func (m *Manager) ResolveByExternalKey(ctx context.Context, key string) (*Tenant, error) {
	hash := HashExternalKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	for registered, tenantID := range m.externalKeys {
		if subtle.ConstantTimeCompare([]byte(registered), []byte(hash)) == 1 {
			if t, ok := m.tenants[tenantID]; ok {
				return t.Clone(), nil
			}
		}
	}
	return nil, ErrTenantNotFound
}

// List returns tenants ordered by creation time descending.
func (m *Manager) List(ctx context.Context, filter ListFilter) []*Tenant {
	m.mu.Lock()
	var matched []*Tenant
	for _, t := range m.tenants {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if filter.Tier != "" && t.Tier != filter.Tier {
			continue
		}
		matched = append(matched, t.Clone())
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched
}

// Activate transitions a pending tenant to active. The lifecycle is
// one-way, so activation from any other status is refused.
func (m *Manager) Activate(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	t, ok := m.tenants[tenantID]
	if !ok {
		m.mu.Unlock()
		return ErrTenantNotFound
	}
	if t.Status != StatusPending {
		status := t.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot activate tenant in status %q", ErrInvalidTransition, status)
	}
	t.Status = StatusActive
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	m.mu.Unlock()

	m.recorder.Log(ctx, audit.Event{Type: audit.TypeTenantActivated, TenantID: tenantID})
	m.mirrorSave(ctx, snapshot)
	m.notify(ctx, Change{Type: ChangeActivated, Tenant: snapshot})
	return nil
}

// Suspend transitions an active tenant to suspended, recording the reason
// in its metadata under "suspension_reason".
func (m *Manager) Suspend(ctx context.Context, tenantID, reason string) error {
	m.mu.Lock()
	t, ok := m.tenants[tenantID]
	if !ok {
		m.mu.Unlock()
		return ErrTenantNotFound
	}
	if t.Status != StatusActive {
		status := t.Status
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot suspend tenant in status %q", ErrInvalidTransition, status)
	}
	t.Status = StatusSuspended
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata["suspension_reason"] = reason
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	m.mu.Unlock()

	m.recorder.Log(ctx, audit.Event{
		Type:     audit.TypeTenantSuspended,
		TenantID: tenantID,
		Details:  map[string]any{"reason": reason},
	})
	m.mirrorSave(ctx, snapshot)
	m.notify(ctx, Change{Type: ChangeSuspended, Tenant: snapshot})
	return nil
}

// Deactivate retires a tenant from any status. The record stays queryable
// but the tenant fails all limit checks and cannot leave the state.
func (m *Manager) Deactivate(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	t, ok := m.tenants[tenantID]
	if !ok {
		m.mu.Unlock()
		return ErrTenantNotFound
	}
	if t.Status == StatusDeactivated {
		m.mu.Unlock()
		return fmt.Errorf("%w: tenant already deactivated", ErrInvalidTransition)
	}
	t.Status = StatusDeactivated
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	delete(m.externalKeys, t.ExternalKeyHash)
	m.mu.Unlock()

	m.recorder.Log(ctx, audit.Event{Type: audit.TypeTenantDeactivated, TenantID: tenantID})
	m.mirrorSave(ctx, snapshot)
	m.notify(ctx, Change{Type: ChangeDeactivated, Tenant: snapshot})
	return nil
}

// Update applies a partial update.
func (m *Manager) Update(ctx context.Context, tenantID string, params UpdateParams) (*Tenant, error) {
	var tier Tier
	if params.Tier != nil {
		parsed, err := ParseTier(*params.Tier)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTier, *params.Tier)
		}
		tier = parsed
	}

	m.mu.Lock()
	t, ok := m.tenants[tenantID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrTenantNotFound
	}
	if params.Name != nil {
		t.Name = *params.Name
	}
	if params.Tier != nil {
		t.Tier = tier
	}
	if params.AllowedCapabilities != nil {
		t.AllowedCapabilities = append([]string(nil), (*params.AllowedCapabilities)...)
	}
	for k, v := range params.CustomLimits {
		if t.CustomLimits == nil {
			t.CustomLimits = make(map[string]int64)
		}
		t.CustomLimits[k] = v
	}
	for k, v := range params.Settings {
		if t.Settings == nil {
			t.Settings = make(map[string]any)
		}
		t.Settings[k] = v
	}
	t.UpdatedAt = time.Now()
	snapshot := t.Clone()
	m.mu.Unlock()

	m.recorder.Log(ctx, audit.Event{Type: audit.TypeTenantUpdated, TenantID: tenantID})
	m.mirrorSave(ctx, snapshot)
	m.notify(ctx, Change{Type: ChangeUpdated, Tenant: snapshot})
	return snapshot, nil
}

// Delete removes a tenant. Without force it fails while the tenant still
// owns agents; with force it cascades removal through the registry first.
// The cascade is best-effort-then-commit: a partial cascade is never rolled
// back.
func (m *Manager) Delete(ctx context.Context, tenantID string, force bool) error {
	m.mu.Lock()
	t, ok := m.tenants[tenantID]
	if !ok {
		m.mu.Unlock()
		return ErrTenantNotFound
	}
	snapshot := t.Clone()
	m.mu.Unlock()

	var agents []string
	if m.registry != nil {
		var err error
		agents, err = m.registry.GetTenantAgents(ctx, tenantID)
		if err != nil {
			slog.WarnContext(ctx, "failed to enumerate tenant agents",
				slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		}
	}
	if len(agents) > 0 && !force {
		return fmt.Errorf("%w: %d agents", ErrActiveAgents, len(agents))
	}
	for _, agentID := range agents {
		if !m.registry.RemoveAgent(ctx, agentID) {
			slog.WarnContext(ctx, "agent removal failed during cascade",
				slog.String("tenant_id", tenantID), slog.String("agent_id", agentID))
		}
	}

	m.mu.Lock()
	delete(m.tenants, tenantID)
	if snapshot.ExternalKeyHash != "" {
		delete(m.externalKeys, snapshot.ExternalKeyHash)
	}
	m.mu.Unlock()

	m.recorder.Log(ctx, audit.Event{
		Type:     audit.TypeTenantDeleted,
		TenantID: tenantID,
		Details:  map[string]any{"force": force, "cascaded_agents": len(agents)},
	})
	m.mirrorDelete(ctx, tenantID)
	m.notify(ctx, Change{Type: ChangeDeleted, Tenant: snapshot})
	return nil
}

// CheckLimit reports whether the tenant may grow the given metric by one.
// Absent or non-active tenants always fail; unknown metrics always pass.
func (m *Manager) CheckLimit(tenantID, metric string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLimitLocked(tenantID, metric, 1)
}

func (m *Manager) checkLimitLocked(tenantID, metric string, amount int64) bool {
	t, ok := m.tenants[tenantID]
	if !ok || !t.IsActive() {
		return false
	}
	limit, limited := t.LimitFor(metric)
	if !limited {
		return true
	}
	return t.Usage[metric]+amount <= limit
}

// CanCreateAgent is shorthand for CheckLimit on the agents metric.
func (m *Manager) CanCreateAgent(tenantID string) bool {
	return m.CheckLimit(tenantID, MetricAgents)
}

// RecordUsage checks the limit and increments the counter. It returns false
// without mutating state when the check fails. The check and increment are
// performed under the store mutex; callers composing a separate CheckLimit
// with RecordUsage still race and may observe transient overshoot.
func (m *Manager) RecordUsage(ctx context.Context, tenantID, metric string, amount int64) bool {
	if amount <= 0 {
		amount = 1
	}
	m.mu.Lock()
	if !m.checkLimitLocked(tenantID, metric, amount) {
		m.mu.Unlock()
		metrics.QuotaDenials.Add(ctx, 1)
		if metric == MetricRequestsPerMinute {
			m.recorder.Log(ctx, audit.Event{
				Type:     audit.TypeRateLimitExceeded,
				TenantID: tenantID,
				Resource: metric,
				Outcome:  "denied",
			})
		}
		return false
	}
	m.tenants[tenantID].Usage[metric] += amount
	m.mu.Unlock()
	return true
}

// ReleaseUsage decrements a counter, clamped at zero.
func (m *Manager) ReleaseUsage(ctx context.Context, tenantID, metric string, amount int64) {
	if amount <= 0 {
		amount = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return
	}
	if t.Usage[metric] -= amount; t.Usage[metric] < 0 {
		t.Usage[metric] = 0
	}
}

// StartRateResetLoop runs the periodic request-counter reset until ctx is
// cancelled. Cancellation stops future resets as a unit; it never touches a
// reset already in progress. A panic inside one iteration is isolated.
func (m *Manager) StartRateResetLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.resetRateCounters(ctx)
			}
		}
	}()
}

func (m *Manager) resetRateCounters(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "rate reset iteration panicked", slog.Any("panic", r))
		}
	}()
	m.mu.Lock()
	for _, t := range m.tenants {
		t.Usage[MetricRequestsPerMinute] = 0
	}
	m.mu.Unlock()
}

// HashExternalKey derives the stored lookup hash for an external API key.
func HashExternalKey(key string) string {
	sum := sha3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (m *Manager) notify(ctx context.Context, change Change) {
	m.mu.Lock()
	listeners := append([]ChangeListener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l(ctx, change)
	}
}

func (m *Manager) mirrorSave(ctx context.Context, t *Tenant) {
	m.mu.Lock()
	mirror := m.mirror
	m.mu.Unlock()
	if mirror == nil {
		return
	}
	go func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "tenant mirror panicked", slog.Any("panic", r))
			}
		}()
		if err := mirror.SaveTenant(ctx, t); err != nil {
			slog.ErrorContext(ctx, "tenant mirror save failed",
				slog.String("tenant_id", t.ID), slog.String("error", err.Error()))
		}
	}(context.WithoutCancel(ctx))
}

func (m *Manager) mirrorDelete(ctx context.Context, tenantID string) {
	m.mu.Lock()
	mirror := m.mirror
	m.mu.Unlock()
	if mirror == nil {
		return
	}
	go func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "tenant mirror panicked", slog.Any("panic", r))
			}
		}()
		if err := mirror.DeleteTenant(ctx, tenantID); err != nil {
			slog.ErrorContext(ctx, "tenant mirror delete failed",
				slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		}
	}(context.WithoutCancel(ctx))
}

func newUsage() map[string]int64 {
	usage := make(map[string]int64, len(Metrics))
	for _, metric := range Metrics {
		usage[metric] = 0
	}
	return usage
}
