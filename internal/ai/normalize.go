package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

// StripFences removes a markdown code fence wrapping the payload, with or
// without a language tag. Text outside a single fence pair is discarded;
// unfenced input passes through trimmed.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	rest := trimmed[start+3:]
	// Drop an optional language tag up to the first newline.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		if firstLine == "" || isLanguageTag(firstLine) {
			rest = rest[nl+1:]
		}
	}
	if end := strings.LastIndex(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return len(s) <= 16
}

// ParseObject strips fences and decodes the payload into out. A non-object
// response is a quality error, not a crash.
func ParseObject(raw string, out any) error {
	payload := StripFences(raw)
	if payload == "" {
		return lferrors.Quality("normalize", fmt.Errorf("empty model response"))
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return lferrors.Quality("normalize", fmt.Errorf("response is not valid JSON: %w", err))
	}
	return nil
}

// StringList coerces a decoded JSON value into a string slice. Missing or
// null values become an empty list; scalar strings become a one-element list.
// Non-string entries are dropped.
func StringList(v any) []string {
	switch x := v.(type) {
	case nil:
		return []string{}
	case string:
		if strings.TrimSpace(x) == "" {
			return []string{}
		}
		return []string{x}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return x
	default:
		return []string{}
	}
}

// Number coerces a decoded JSON value into a float64, tolerating numeric
// strings. Returns false when no number is present.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(x), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
