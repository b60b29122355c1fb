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

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ErrUnknownFormat is returned for export formats outside the supported set.
var ErrUnknownFormat = fmt.Errorf("unknown export format")

// ExportBundle carries serialized events plus an optional signed manifest.
// The manifest is a JWS over the payload digest, so a consumer holding the
// signing key can detect tampering with an exported trail.
type ExportBundle struct {
	Format   string `json:"format"`
	Data     []byte `json:"data"`
	Manifest string `json:"manifest,omitempty"`
}

// Export serializes the trail, optionally filtered to one tenant.
// Events are exported oldest-first.
func (t *Trail) Export(format, tenantID string) (*ExportBundle, error) {
	if format != FormatJSON && format != FormatCSV {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	t.mu.RLock()
	var events []Event
	for _, e := range t.events {
		if tenantID != "" && e.TenantID != tenantID {
			continue
		}
		events = append(events, e.clone())
	}
	key := t.signKey
	t.mu.RUnlock()

	var data []byte
	var err error
	switch format {
	case FormatJSON:
		data, err = json.Marshal(events)
	case FormatCSV:
		data, err = marshalCSV(events)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to serialize export: %w", err)
	}

	bundle := &ExportBundle{Format: format, Data: data}
	if len(key) > 0 {
		manifest, err := signManifest(data, len(events), key)
		if err != nil {
			return nil, fmt.Errorf("failed to sign export manifest: %w", err)
		}
		bundle.Manifest = manifest
	}
	return bundle, nil
}

func marshalCSV(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "type", "timestamp", "tenant_id", "agent_id", "user_id", "execution_id", "resource", "action", "outcome", "details"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, e := range events {
		details := ""
		if len(e.Details) > 0 {
			raw, err := json.Marshal(e.Details)
			if err != nil {
				return nil, err
			}
			details = string(raw)
		}
		record := []string{
			e.ID,
			string(e.Type),
			e.Timestamp.Format(time.RFC3339Nano),
			e.TenantID,
			e.AgentID,
			e.UserID,
			e.ExecutionID,
			e.Resource,
			e.Action,
			e.Outcome,
			details,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// manifestClaims is the signed statement attached to an export.
type manifestClaims struct {
	EventCount int    `json:"event_count"`
	Digest     string `json:"digest"`
	jwt.RegisteredClaims
}

func signManifest(data []byte, count int, key []byte) (string, error) {
	sum := sha256.Sum256(data)
	claims := manifestClaims{
		EventCount: count,
		Digest:     hex.EncodeToString(sum[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   "agentplane-audit",
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// VerifyManifest checks a signed export manifest against the exported data.
func VerifyManifest(manifest string, data []byte, key []byte) error {
	var claims manifestClaims
	token, err := jwt.ParseWithClaims(manifest, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid manifest signature")
	}
	sum := sha256.Sum256(data)
	if claims.Digest != hex.EncodeToString(sum[:]) {
		return fmt.Errorf("export digest mismatch")
	}
	return nil
}
