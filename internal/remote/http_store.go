package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/backup"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

// HTTPStore talks to a PostgREST-compatible endpoint. Upserts POST with
// merge-duplicates resolution on the engine's conflict key, so retries are
// idempotent by construction.
type HTTPStore struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

// NewHTTPStore creates a store for the given endpoint.
func NewHTTPStore(baseURL, serviceKey string) *HTTPStore {
	return &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Upsert writes one payload and returns the row id from the representation
// the server echoes back.
func (s *HTTPStore) Upsert(ctx context.Context, engine backup.Engine, data json.RawMessage) (string, error) {
	table, ok := tables[engine]
	if !ok {
		return "", lferrors.InvalidInput(fmt.Sprintf("no remote table for engine %q", engine))
	}

	// Prospects without a place id merge on the company/website pair instead.
	conflictKey := conflictKeys[engine]
	if engine == backup.EngineProspecting && !hasField(data, "google_place_id") {
		conflictKey = "company_name,website"
	}

	url := fmt.Sprintf("%s/rest/v1/%s?on_conflict=%s", s.baseURL, table, conflictKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", lferrors.Internal("build upsert request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", lferrors.Transient("remote store unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", lferrors.Transient("read upsert response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", lferrors.New(lferrors.CategoryFatal, lferrors.SeverityError,
			"Invalid API key").WithContext("status", resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", lferrors.Transient(fmt.Sprintf("remote store returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= 300:
		return "", lferrors.Internal(fmt.Sprintf("remote store returned %d: %s", resp.StatusCode, truncate(body, 256)), nil)
	}

	// return=representation yields an array with the affected row.
	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) == 0 {
		return "", lferrors.Internal("upsert response missing representation", err)
	}
	var id any
	if raw, ok := rows[0]["id"]; ok {
		_ = json.Unmarshal(raw, &id)
	}
	if id == nil {
		return "", lferrors.Internal("upsert row has no id", nil)
	}
	return fmt.Sprintf("%v", id), nil
}

// hasField reports whether the payload (object, or every element of an
// array) carries a non-empty value for the field. Bulk prospect upserts post
// arrays; a single row missing the key forces the composite-key fallback.
func hasField(data json.RawMessage, field string) bool {
	var arr []map[string]json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) == 0 {
			return false
		}
		for _, obj := range arr {
			if !objectHasField(obj, field) {
				return false
			}
		}
		return true
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return objectHasField(probe, field)
}

func objectHasField(obj map[string]json.RawMessage, field string) bool {
	raw, ok := obj[field]
	return ok && string(raw) != "null" && string(raw) != `""`
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
