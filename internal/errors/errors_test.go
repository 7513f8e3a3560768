package errors

import (
	stderrors "errors"
	"net/http"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := New(CategoryTransient, SeverityWarning, "upstream hiccup")
	if e.Error() != "transient (warning): upstream hiccup" {
		t.Fatalf("unexpected format: %s", e.Error())
	}

	cause := stderrors.New("connection reset")
	w := Wrap(cause, CategoryTransient, SeverityWarning, "upstream hiccup")
	if w.Error() != "transient (warning): upstream hiccup: connection reset" {
		t.Fatalf("unexpected wrapped format: %s", w.Error())
	}
	if !stderrors.Is(w, cause) {
		t.Fatal("expected Unwrap to reach the cause")
	}
}

func TestRetryableClassification(t *testing.T) {
	if !IsRetryable(Transient("db lock", nil)) {
		t.Fatal("transient errors must be retryable")
	}
	if IsRetryable(BackupFailed("save", stderrors.New("disk full"))) {
		t.Fatal("fatal backup errors must not be retryable")
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
}

func TestGetCategoryFallback(t *testing.T) {
	if got := GetCategory(stderrors.New("plain")); got != CategoryInternal {
		t.Fatalf("expected internal fallback, got %s", got)
	}
	if got := GetCategory(Quality("social", nil)); got != CategoryQuality {
		t.Fatalf("expected quality, got %s", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{InvalidInput("bad json"), http.StatusBadRequest},
		{NotFound("job", "j-1"), http.StatusNotFound},
		{Transient("5xx", nil), http.StatusServiceUnavailable},
		{UpstreamTimeout("ai", nil), http.StatusGatewayTimeout},
		{Quality("seo", nil), http.StatusUnprocessableEntity},
		{Internal("boom", nil), http.StatusInternalServerError},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := a.StatusCodeFor(c.err); got != c.want {
			t.Fatalf("status for %v: expected %d got %d", c.err, c.want, got)
		}
	}
}

func TestCLIExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)
	if a.ExitCodeFor(nil) != 0 {
		t.Fatal("nil error must exit 0")
	}
	if a.ExitCodeFor(Internal("boom", nil)) != 1 {
		t.Fatal("any failure must exit 1")
	}
}

func TestWithContext(t *testing.T) {
	e := InvalidPayload("url", "missing")
	if e.Context["field"] != "url" || e.Context["reason"] != "missing" {
		t.Fatalf("context not attached: %+v", e.Context)
	}
}
