package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/leadforge/internal/backup"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

func TestUpsertSendsConflictKeyAndParsesID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/analyses", r.URL.Path)
		assert.Equal(t, "url", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=representation", r.Header.Get("Prefer"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id": 42, "url": "https://a.example"}]`))
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "service-key")
	id, err := s.Upsert(context.Background(), backup.EngineAnalysis, json.RawMessage(`{"url":"https://a.example"}`))
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestUpsertProspectFallsBackToCompositeKey(t *testing.T) {
	var gotConflict string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConflict = r.URL.Query().Get("on_conflict")
		_, _ = w.Write([]byte(`[{"id": "p1"}]`))
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "k")

	_, err := s.Upsert(context.Background(), backup.EngineProspecting,
		json.RawMessage(`{"google_place_id":"gp-1","company_name":"Acme"}`))
	require.NoError(t, err)
	assert.Equal(t, "google_place_id", gotConflict)

	_, err = s.Upsert(context.Background(), backup.EngineProspecting,
		json.RawMessage(`{"company_name":"Acme","website":"https://acme.example"}`))
	require.NoError(t, err)
	assert.Equal(t, "company_name,website", gotConflict)
}

func TestUpsertClassifiesAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "bad-key")
	_, err := s.Upsert(context.Background(), backup.EngineAnalysis, json.RawMessage(`{"url":"x"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
	assert.False(t, lferrors.IsRetryable(err))
}

func TestUpsertClassifiesServerErrorTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPStore(srv.URL, "k")
	_, err := s.Upsert(context.Background(), backup.EngineAnalysis, json.RawMessage(`{"url":"x"}`))
	require.Error(t, err)
	assert.True(t, lferrors.IsRetryable(err))
}

func TestMockStoreIdempotentUpsert(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	id1, err := m.Upsert(ctx, backup.EngineAnalysis, json.RawMessage(`{"url":"https://a.example","overall_score":60}`))
	require.NoError(t, err)
	id2, err := m.Upsert(ctx, backup.EngineAnalysis, json.RawMessage(`{"url":"https://a.example","overall_score":72}`))
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "same natural key must hit the same row")
	assert.Equal(t, 1, m.RowCount())

	row, ok := m.Row(backup.EngineAnalysis, "https://a.example")
	require.True(t, ok)
	assert.Contains(t, string(row), "72", "second upsert must update the row")
}
