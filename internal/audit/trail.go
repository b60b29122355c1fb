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

// Package audit keeps the append-only record of governance-relevant events.
//
// The trail is bounded: once MaxEvents is reached the oldest events are
// evicted on append. That is a capacity bound, not a retention policy.
// Under sustained high volume the in-memory trail is lossy and durable
// retention is the job of the registered sinks.
package audit

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agentplane/agentplane/internal/id"
	"github.com/agentplane/agentplane/internal/observability/metrics"
)

// Sink is a storage backend callable. Sinks receive every appended event;
// a sink error or panic is logged and never reaches the caller of Log.
type Sink func(ctx context.Context, event Event) error

// Handler reacts to events of one type.
type Handler func(ctx context.Context, event Event)

// Recorder is the narrow surface collaborators use to append events.
type Recorder interface {
	Log(ctx context.Context, event Event) string
}

// Config holds trail configuration.
type Config struct {
	// MaxEvents bounds the in-memory trail. Zero means DefaultMaxEvents.
	MaxEvents int
	// SigningKey enables signed export manifests when non-empty.
	SigningKey string
}

// DefaultMaxEvents bounds the trail when no capacity is configured.
const DefaultMaxEvents = 10000

// Trail is the in-memory append-only event store.
type Trail struct {
	mu       sync.RWMutex
	events   []Event
	max      int
	sinks    []Sink
	handlers map[EventType][]Handler
	signKey  []byte
}

// NewTrail creates a trail with the given configuration.
func NewTrail(cfg Config) *Trail {
	max := cfg.MaxEvents
	if max <= 0 {
		max = DefaultMaxEvents
	}
	var key []byte
	if cfg.SigningKey != "" {
		key = []byte(cfg.SigningKey)
	}
	return &Trail{
		max:      max,
		handlers: make(map[EventType][]Handler),
		signKey:  key,
	}
}

// AddSink registers a storage backend. Sinks are invoked on every append,
// best-effort, off the caller's goroutine.
func (t *Trail) AddSink(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, s)
}

// RegisterHandler registers a handler for one event type.
func (t *Trail) RegisterHandler(eventType EventType, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[eventType] = append(t.handlers[eventType], h)
}

// Log appends an event and returns its generated id. The append itself is
// synchronous; delivery to sinks and handlers is fire-and-forget and a
// failing sink never affects the caller's control flow.
func (t *Trail) Log(ctx context.Context, event Event) string {
	event = event.clone()
	event.ID = id.NewUUIDv7()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	t.mu.Lock()
	t.events = append(t.events, event)
	if over := len(t.events) - t.max; over > 0 {
		t.events = append(t.events[:0:0], t.events[over:]...)
	}
	sinks := append([]Sink(nil), t.sinks...)
	handlers := append([]Handler(nil), t.handlers[event.Type]...)
	t.mu.Unlock()

	metrics.AuditEvents.Add(ctx, 1)
	if len(sinks) > 0 || len(handlers) > 0 {
		go t.dispatch(context.WithoutCancel(ctx), event, sinks, handlers)
	}
	return event.ID
}

func (t *Trail) dispatch(ctx context.Context, event Event, sinks []Sink, handlers []Handler) {
	for _, sink := range sinks {
		t.deliver(ctx, event, func() error { return sink(ctx, event) })
	}
	for _, h := range handlers {
		t.deliver(ctx, event, func() error { h(ctx, event); return nil })
	}
}

// deliver isolates one sink or handler call; a panic or error in one
// delivery never blocks another.
func (t *Trail) deliver(ctx context.Context, event Event, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "audit sink panicked",
				slog.String("event_id", event.ID),
				slog.String("event_type", string(event.Type)),
				slog.Any("panic", r))
		}
	}()
	if err := fn(); err != nil {
		slog.ErrorContext(ctx, "audit sink failed",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()))
	}
}

// LogAgentEvent records an agent lifecycle event.
func (t *Trail) LogAgentEvent(ctx context.Context, eventType EventType, tenantID, agentID string, details map[string]any) string {
	return t.Log(ctx, Event{
		Type:     eventType,
		TenantID: tenantID,
		AgentID:  agentID,
		Details:  details,
	})
}

// LogExecutionEvent records an execution lifecycle event.
func (t *Trail) LogExecutionEvent(ctx context.Context, eventType EventType, tenantID, agentID, executionID, outcome string, details map[string]any) string {
	return t.Log(ctx, Event{
		Type:        eventType,
		TenantID:    tenantID,
		AgentID:     agentID,
		ExecutionID: executionID,
		Outcome:     outcome,
		Details:     details,
	})
}

// LogHumanEvent records a human-in-the-loop interaction.
func (t *Trail) LogHumanEvent(ctx context.Context, eventType EventType, tenantID, userID, executionID string, details map[string]any) string {
	return t.Log(ctx, Event{
		Type:        eventType,
		TenantID:    tenantID,
		UserID:      userID,
		ExecutionID: executionID,
		Details:     details,
	})
}

// LogSecurityEvent records a security decision or violation.
func (t *Trail) LogSecurityEvent(ctx context.Context, eventType EventType, tenantID, agentID, resource, action string, details map[string]any) string {
	return t.Log(ctx, Event{
		Type:     eventType,
		TenantID: tenantID,
		AgentID:  agentID,
		Resource: resource,
		Action:   action,
		Outcome:  "denied",
		Details:  details,
	})
}

// QueryFilter narrows a trail query. All set fields are ANDed.
type QueryFilter struct {
	TenantID  string
	AgentID   string
	UserID    string
	EventType EventType
	Start     time.Time
	End       time.Time
	Limit     int
	Offset    int
}

func (f QueryFilter) matches(e Event) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.EventType != "" && e.Type != f.EventType {
		return false
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	return true
}

// Query returns matching events sorted newest-first, then paginated.
func (t *Trail) Query(filter QueryFilter) []Event {
	t.mu.RLock()
	var matched []Event
	for _, e := range t.events {
		if filter.matches(e) {
			matched = append(matched, e.clone())
		}
	}
	t.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return paginate(matched, filter.Limit, filter.Offset)
}

// ExecutionTrail returns all events for one execution in causal
// (timestamp-ascending) order.
func (t *Trail) ExecutionTrail(executionID string) []Event {
	t.mu.RLock()
	var matched []Event
	for _, e := range t.events {
		if e.ExecutionID == executionID {
			matched = append(matched, e.clone())
		}
	}
	t.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	return matched
}

// HumanInteractions returns human-in-the-loop events, newest first.
func (t *Trail) HumanInteractions(tenantID string, limit int) []Event {
	return t.view(tenantID, limit, Event.IsHumanInteraction)
}

// SecurityEvents returns security decisions and violations, newest first.
func (t *Trail) SecurityEvents(tenantID string, limit int) []Event {
	return t.view(tenantID, limit, Event.IsSecurity)
}

func (t *Trail) view(tenantID string, limit int, keep func(Event) bool) []Event {
	t.mu.RLock()
	var matched []Event
	for _, e := range t.events {
		if !keep(e) {
			continue
		}
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		matched = append(matched, e.clone())
	}
	t.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	return paginate(matched, limit, 0)
}

// Stats summarizes the current trail contents.
type Stats struct {
	Total    int               `json:"total"`
	ByType   map[EventType]int `json:"by_type"`
	ByTenant map[string]int    `json:"by_tenant"`
	Oldest   time.Time         `json:"oldest,omitempty"`
	Newest   time.Time         `json:"newest,omitempty"`
}

// GetStats returns aggregate counts over the in-memory trail.
func (t *Trail) GetStats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := Stats{
		Total:    len(t.events),
		ByType:   make(map[EventType]int),
		ByTenant: make(map[string]int),
	}
	for _, e := range t.events {
		stats.ByType[e.Type]++
		if e.TenantID != "" {
			stats.ByTenant[e.TenantID]++
		}
		if stats.Oldest.IsZero() || e.Timestamp.Before(stats.Oldest) {
			stats.Oldest = e.Timestamp
		}
		if e.Timestamp.After(stats.Newest) {
			stats.Newest = e.Timestamp
		}
	}
	return stats
}

func paginate(events []Event, limit, offset int) []Event {
	if offset > 0 {
		if offset >= len(events) {
			return nil
		}
		events = events[offset:]
	}
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events
}
