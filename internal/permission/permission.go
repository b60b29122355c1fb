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

// Package permission resolves what capabilities an agent holds.
package permission

import (
	"errors"
	"strings"
	"time"
)

// Domain errors
var (
	ErrRoleNotFound      = errors.New("role not found")
	ErrRoleAlreadyExists = errors.New("role already exists")
	ErrInvalidLevel      = errors.New("invalid permission level")
)

// Level is an ordinal capability grant. Levels are totally ordered; a
// permission at a higher level satisfies any lower requirement.
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelExecute
	LevelAdmin
)

var levelNames = map[Level]string{
	LevelNone:    "none",
	LevelRead:    "read",
	LevelExecute: "execute",
	LevelAdmin:   "admin",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// ParseLevel validates a level string.
func ParseLevel(s string) (Level, error) {
	for level, name := range levelNames {
		if name == strings.ToLower(s) {
			return level, nil
		}
	}
	return LevelNone, ErrInvalidLevel
}

// Permission grants a level of access to a resource pattern. A pattern is
// an exact resource name or a "prefix:*" wildcard. Conditions, when set,
// must all be satisfied by the check context. A permission whose ExpiresAt
// lies in the past is treated as absent.
type Permission struct {
	Resource   string         `json:"resource"`
	Level      Level          `json:"level"`
	Conditions map[string]any `json:"conditions,omitempty"`
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
}

// Matches reports whether the permission's pattern covers the resource.
// "tool:*" matches "tool:search" and "tool:" but not "toolsearch".
func (p Permission) Matches(resource string) bool {
	if strings.HasSuffix(p.Resource, "*") {
		return strings.HasPrefix(resource, strings.TrimSuffix(p.Resource, "*"))
	}
	return p.Resource == resource
}

// Expired reports whether the permission lapsed before now.
func (p Permission) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// ConditionsMet evaluates the ANDed condition map against a check context.
// Every condition key must be present in the context; a condition value
// that is a slice means membership, anything else means equality.
func (p Permission) ConditionsMet(checkCtx map[string]any) bool {
	for key, want := range p.Conditions {
		got, ok := checkCtx[key]
		if !ok {
			return false
		}
		if !conditionMatches(want, got) {
			return false
		}
	}
	return true
}

func conditionMatches(want, got any) bool {
	switch allowed := want.(type) {
	case []any:
		for _, v := range allowed {
			if v == got {
				return true
			}
		}
		return false
	case []string:
		for _, v := range allowed {
			if v == got {
				return true
			}
		}
		return false
	default:
		return want == got
	}
}
