package outreach

import (
	"fmt"
	"strings"
)

// Ruleset bounds what a variant may look like before it is accepted. Rejected
// variants are still recorded; the consumer decides what to do with them.
type Ruleset struct {
	BannedPhrases []string
	SubjectMax    int
	BodyMin       int
	BodyMax       int
	DMCaps        map[string]int
	DMCapDefault  int
}

// DefaultRuleset returns the production rules.
func DefaultRuleset() Ruleset {
	return Ruleset{
		BannedPhrases: []string{
			"i hope this email finds you well",
			"to whom it may concern",
			"i know you're busy",
			"quick question",
			"guaranteed results",
			"act now",
			"limited time offer",
		},
		SubjectMax: 120,
		BodyMin:    200,
		BodyMax:    3000,
		DMCaps: map[string]int{
			PlatformLinkedIn:  1900,
			PlatformTwitter:   1000,
			PlatformInstagram: 1000,
			PlatformFacebook:  2000,
		},
		DMCapDefault: 1000,
	}
}

// Placeholder fragments that mean the template machinery leaked into the copy.
var leakMarkers = []string{"{{", "}}", "[object Object]", "undefined"}

// CheckEmail returns every rule the subject/body pair violates. An empty
// slice means the variant is accepted.
func (r Ruleset) CheckEmail(subject, body string) []string {
	var violations []string
	if subject == "" {
		violations = append(violations, "subject is empty")
	}
	if len(subject) > r.SubjectMax {
		violations = append(violations, fmt.Sprintf("subject exceeds %d characters", r.SubjectMax))
	}
	if len(body) < r.BodyMin {
		violations = append(violations, fmt.Sprintf("body shorter than %d characters", r.BodyMin))
	}
	if len(body) > r.BodyMax {
		violations = append(violations, fmt.Sprintf("body exceeds %d characters", r.BodyMax))
	}
	violations = append(violations, r.checkText(subject+"\n"+body)...)
	return violations
}

// CheckDM returns every rule a direct-message text violates for a platform.
func (r Ruleset) CheckDM(platform, text string) []string {
	var violations []string
	if text == "" {
		violations = append(violations, "message is empty")
	}
	cap := r.DMCaps[platform]
	if cap == 0 {
		cap = r.DMCapDefault
	}
	if len(text) > cap {
		violations = append(violations, fmt.Sprintf("message exceeds %s cap of %d characters", platform, cap))
	}
	violations = append(violations, r.checkText(text)...)
	return violations
}

func (r Ruleset) checkText(text string) []string {
	var violations []string
	lower := strings.ToLower(text)
	for _, phrase := range r.BannedPhrases {
		if strings.Contains(lower, phrase) {
			violations = append(violations, fmt.Sprintf("banned phrase: %q", phrase))
		}
	}
	for _, marker := range leakMarkers {
		if strings.Contains(text, marker) {
			violations = append(violations, fmt.Sprintf("placeholder leakage: %q", marker))
		}
	}
	return violations
}
