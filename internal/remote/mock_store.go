package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"git.home.luguber.info/inful/leadforge/internal/backup"
)

// MockStore is an in-memory Store for tests. It honours the natural-key
// contract: upserting the same key twice updates the existing row.
type MockStore struct {
	mu     sync.Mutex
	rows   map[string]json.RawMessage // natural key -> payload
	ids    map[string]string          // natural key -> row id
	nextID int

	// FailWith, when set, makes every upsert fail with this error.
	FailWith error
}

// NewMockStore creates an empty mock.
func NewMockStore() *MockStore {
	return &MockStore{
		rows: make(map[string]json.RawMessage),
		ids:  make(map[string]string),
	}
}

func (m *MockStore) Upsert(_ context.Context, engine backup.Engine, data json.RawMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return "", m.FailWith
	}

	// Bulk payloads (prospect batches) upsert row by row.
	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err == nil {
		var firstID string
		for _, row := range batch {
			id := m.upsertRow(engine, row)
			if firstID == "" {
				firstID = id
			}
		}
		if firstID == "" {
			return "", fmt.Errorf("empty batch")
		}
		return firstID, nil
	}
	return m.upsertRow(engine, data), nil
}

func (m *MockStore) upsertRow(engine backup.Engine, data json.RawMessage) string {
	key := string(engine) + "/" + naturalKey(engine, data)
	m.rows[key] = data
	if id, ok := m.ids[key]; ok {
		return id
	}
	m.nextID++
	id := fmt.Sprintf("row-%d", m.nextID)
	m.ids[key] = id
	return id
}

// RowCount returns the number of distinct rows.
func (m *MockStore) RowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Row returns the stored payload for an engine and natural key.
func (m *MockStore) Row(engine backup.Engine, key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.rows[string(engine)+"/"+key]
	return data, ok
}

func naturalKey(engine backup.Engine, data json.RawMessage) string {
	var fields map[string]any
	_ = json.Unmarshal(data, &fields)
	str := func(k string) string {
		if v, ok := fields[k].(string); ok {
			return v
		}
		return ""
	}

	switch engine {
	case backup.EngineAnalysis:
		return str("url")
	case backup.EngineProspecting:
		if pid := str("google_place_id"); pid != "" {
			return pid
		}
		return str("company_name") + "|" + str("website")
	case backup.EngineOutreach:
		return str("lead_id") + "|" + str("platform")
	case backup.EngineReports:
		return str("lead_id") + "|" + str("format")
	}
	return ""
}
