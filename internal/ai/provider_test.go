package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

func TestProviderComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello"}},
			},
		})
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"}, nil)
	got, err := p.Complete(context.Background(), Request{System: "sys", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestProviderClassifiesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{BaseURL: srv.URL}, nil)
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, lferrors.IsRetryable(err), "5xx must be retryable")
}

func TestProviderRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewProvider(ProviderConfig{BaseURL: srv.URL}, nil)
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.True(t, lferrors.IsCategory(err, lferrors.CategoryQuality))
}

func TestGateBoundsConcurrency(t *testing.T) {
	g := NewGate(1, 0)

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Acquire(ctx)
	assert.Error(t, err, "second acquire must block until released")

	release()
	release2, err := g.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}
