package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithJobID(t *testing.T) {
	ctx := context.Background()
	ctx = WithJobID(ctx, "job-123")

	lc := GetContext(ctx)
	if lc.JobID != "job-123" {
		t.Errorf("expected job-123, got %s", lc.JobID)
	}
}

func TestWithEngine(t *testing.T) {
	ctx := context.Background()
	ctx = WithEngine(ctx, "analysis")

	lc := GetContext(ctx)
	if lc.Engine != "analysis" {
		t.Errorf("expected analysis, got %s", lc.Engine)
	}
}

func TestMultipleContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithJobID(ctx, "job-1")
	ctx = WithWorkType(ctx, "analyze_url")
	ctx = WithCompany(ctx, "Acme")

	lc := GetContext(ctx)
	if lc.JobID != "job-1" || lc.WorkType != "analyze_url" || lc.Company != "Acme" {
		t.Errorf("context values not accumulated: %+v", lc)
	}
}

func TestContextValuesDoNotLeakUpward(t *testing.T) {
	parent := WithJobID(context.Background(), "job-1")
	_ = WithCompany(parent, "Acme")

	if lc := GetContext(parent); lc.Company != "" {
		t.Errorf("child value leaked into parent context: %+v", lc)
	}
}

func TestInfoContextEmitsContextFields(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	ctx := WithJobID(context.Background(), "job-42")
	ctx = WithEngine(ctx, "outreach")
	InfoContext(ctx, "work started", slog.String("extra", "v"))

	out := buf.String()
	for _, want := range []string{"job_id=job-42", "engine=outreach", "extra=v", "work started"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}
