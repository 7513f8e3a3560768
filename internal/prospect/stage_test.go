package prospect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/leadforge/internal/ai"
	"git.home.luguber.info/inful/leadforge/internal/backup"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/queue"
	"git.home.luguber.info/inful/leadforge/internal/remote"
)

func prospectJob(t *testing.T, payload string) *queue.Job {
	t.Helper()
	return &queue.Job{ID: "p1", WorkType: queue.WorkProspecting, Payload: json.RawMessage(payload)}
}

func staticFinder(candidates ...Candidate) Finder {
	return FinderFunc(func(context.Context, Brief, int) ([]Candidate, error) {
		return candidates, nil
	})
}

func TestExecuteDedupsAndFillsBriefDefaults(t *testing.T) {
	stage := NewStage(staticFinder(
		Candidate{CompanyName: "Acme", Website: "https://Acme.Example/"},
		Candidate{CompanyName: "Acme", Website: "https://acme.example"}, // same after canonicalization
		Candidate{CompanyName: "Beta", Website: "https://beta.example", Industry: "plumbing"},
		Candidate{CompanyName: "NoSite"}, // unkeyable, dropped
		Candidate{GooglePlaceID: "place-9", CompanyName: "Gamma", Website: "https://gamma.example"},
	), nil)

	job := prospectJob(t, `{"brief":{"industry":"hvac","location":"Oslo"},"count":10}`)
	result, meta, err := stage.Execute(context.Background(), job)
	require.NoError(t, err)

	rows := result.([]Row)
	require.Len(t, rows, 3)
	assert.Equal(t, "https://acme.example", rows[0].Website)
	assert.Equal(t, "hvac", rows[0].Industry, "brief industry fills the blank")
	assert.Equal(t, "Oslo", rows[0].Location)
	assert.Equal(t, "plumbing", rows[1].Industry, "candidate industry wins over brief")
	assert.Equal(t, "place-9", rows[2].GooglePlaceID)
	assert.Nil(t, rows[0].Verification, "no verifier wired")

	assert.Equal(t, "hvac prospects", meta.CompanyName)
	assert.Equal(t, "hvac", meta.Industry)

	snap := job.Snapshot()
	assert.Equal(t, 3, snap.Progress.Current)
	assert.Equal(t, 3, snap.Progress.Total)
}

func TestExecuteTruncatesToCount(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 8; i++ {
		candidates = append(candidates, Candidate{
			CompanyName: fmt.Sprintf("Co %d", i),
			Website:     fmt.Sprintf("https://co%d.example", i),
		})
	}
	stage := NewStage(staticFinder(candidates...), nil)

	result, _, err := stage.Execute(context.Background(),
		prospectJob(t, `{"brief":{"industry":"hvac"},"count":3}`))
	require.NoError(t, err)
	assert.Len(t, result.([]Row), 3)
}

func TestExecuteRequiresIndustry(t *testing.T) {
	stage := NewStage(staticFinder(), nil)
	_, _, err := stage.Execute(context.Background(), prospectJob(t, `{"count":5}`))
	require.Error(t, err)
	assert.True(t, lferrors.IsCategory(err, lferrors.CategoryInvalidInput))
}

func TestExecuteNoCandidatesFailsJob(t *testing.T) {
	stage := NewStage(staticFinder(), nil)
	_, _, err := stage.Execute(context.Background(),
		prospectJob(t, `{"brief":{"industry":"hvac"}}`))
	require.Error(t, err)
	assert.True(t, lferrors.IsCategory(err, lferrors.CategoryQuality))
	assert.False(t, lferrors.IsRetryable(err))
}

func TestExecuteFinderErrorPropagates(t *testing.T) {
	boom := lferrors.Transient("candidate source unavailable", nil)
	stage := NewStage(FinderFunc(func(context.Context, Brief, int) ([]Candidate, error) {
		return nil, boom
	}), nil)

	_, _, err := stage.Execute(context.Background(),
		prospectJob(t, `{"brief":{"industry":"hvac"}}`))
	require.Error(t, err)
	assert.True(t, lferrors.IsRetryable(err))
}

func TestVerifierChecksReachabilityAndParking(t *testing.T) {
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>We fix heat pumps in Oslo.</body></html>")
	}))
	defer live.Close()
	parked := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>This domain is parked. Buy this domain today!</body></html>")
	}))
	defer parked.Close()

	matchClient := ai.TextClientFunc(func(context.Context, ai.Request) (string, error) {
		return `{"match": true}`, nil
	})
	v := NewVerifier(live.Client(), matchClient)
	brief := Brief{Industry: "hvac"}

	got := v.Verify(context.Background(), brief, Candidate{CompanyName: "Live", Website: live.URL})
	assert.True(t, got.Reachable)
	assert.False(t, got.Parked)
	require.NotNil(t, got.IndustryMatch)
	assert.True(t, *got.IndustryMatch)

	got = v.Verify(context.Background(), brief, Candidate{CompanyName: "Parked", Website: parked.URL})
	assert.True(t, got.Reachable)
	assert.True(t, got.Parked)
	assert.Nil(t, got.IndustryMatch, "parked sites skip the industry check")

	got = v.Verify(context.Background(), brief, Candidate{CompanyName: "Dead", Website: "https://127.0.0.1:1/"})
	assert.False(t, got.Reachable)
	assert.NotEmpty(t, got.Detail)
}

func TestVerificationAttachedToRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>real business</body></html>")
	}))
	defer srv.Close()

	stage := NewStage(
		staticFinder(Candidate{CompanyName: "Acme", Website: srv.URL}),
		NewVerifier(srv.Client(), nil),
	)
	result, _, err := stage.Execute(context.Background(),
		prospectJob(t, `{"brief":{"industry":"hvac"},"options":{"verify":true}}`))
	require.NoError(t, err)

	rows := result.([]Row)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Verification)
	assert.True(t, rows[0].Verification.Reachable)
}

func TestBulkRowsUpsertIdempotently(t *testing.T) {
	stage := NewStage(staticFinder(
		Candidate{CompanyName: "Acme", Website: "https://acme.example"},
		Candidate{GooglePlaceID: "place-9", CompanyName: "Gamma", Website: "https://gamma.example"},
	), nil)
	result, _, err := stage.Execute(context.Background(),
		prospectJob(t, `{"brief":{"industry":"hvac"}}`))
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	mock := remote.NewMockStore()
	_, err = mock.Upsert(context.Background(), backup.EngineProspecting, data)
	require.NoError(t, err)
	_, err = mock.Upsert(context.Background(), backup.EngineProspecting, data)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.RowCount(), "re-running the same batch must not duplicate rows")
}
