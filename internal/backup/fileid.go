package backup

import (
	"crypto/rand"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold strips diacritics so "Café Müller" slugs to "cafe-muller".
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug lowercases a company name into a filesystem-safe ASCII identifier.
// Runs of non-alphanumeric characters collapse into a single hyphen.
func Slug(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// idGenerator issues strictly monotonic file IDs. ULIDs from a monotonic
// entropy source are ordered even within the same millisecond, which resolves
// suffix collisions without retries.
type idGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDGenerator() *idGenerator {
	return &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// FileID builds "{slug(company)}-YYYY-MM-DD-{suffix}". The slug falls back to
// the URL host when the company name is empty, then to "record".
func (g *idGenerator) FileID(companyName, rawURL string, ts time.Time) string {
	slug := Slug(companyName)
	if slug == "" {
		if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
			slug = Slug(u.Host)
		}
	}
	if slug == "" {
		slug = "record"
	}

	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(ts), g.entropy)
	g.mu.Unlock()

	return slug + "-" + ts.UTC().Format("2006-01-02") + "-" + strings.ToLower(id.String())
}
