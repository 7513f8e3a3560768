// Package outreach composes personalized email and DM copy for a lead and
// grades every variant against a quality ruleset before handing it on.
package outreach

import (
	"context"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/leadforge/internal/ai"
)

// Channels. Email is modeled as a platform so the remote upsert key
// (lead_id, platform) covers both kinds of copy uniformly.
const (
	PlatformEmail     = "email"
	PlatformLinkedIn  = "linkedin"
	PlatformTwitter   = "twitter"
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
)

// Strategies steer the angle of each variant. One strategy per variant.
const (
	StrategyDirect      = "direct"
	StrategyValueFirst  = "value_first"
	StrategySocialProof = "social_proof"
)

func variantStrategies(generateVariants bool) []string {
	if generateVariants {
		return []string{StrategyDirect, StrategyValueFirst, StrategySocialProof}
	}
	return []string{StrategyDirect}
}

var strategyAngle = map[string]string{
	StrategyDirect:      "state the concrete website problem you found and the fix, plainly",
	StrategyValueFirst:  "lead with one specific improvement and its business impact before any ask",
	StrategySocialProof: "reference comparable businesses that solved the same problem",
}

const composerSystem = "You write short B2B outreach for a web agency. " +
	"Plain language, no filler, no marketing superlatives. " +
	"Answer with a single JSON object and nothing else."

// LeadContext is what the composer knows about the recipient.
type LeadContext struct {
	LeadID      string
	CompanyName string
	Industry    string
	Website     string
	Findings    []string
}

// Composer turns lead context into copy via the shared text client.
type Composer struct {
	ai ai.TextClient
}

// NewComposer wires a composer.
func NewComposer(client ai.TextClient) *Composer {
	return &Composer{ai: client}
}

// ComposeEmail produces one email variant for a strategy.
func (c *Composer) ComposeEmail(ctx context.Context, lead LeadContext, strategy string) (subject, body string, err error) {
	raw, err := c.ai.Complete(ctx, ai.Request{
		System: composerSystem + ` Shape: {"subject": "", "body": ""}`,
		Prompt: buildComposePrompt(lead, strategy, "a cold outreach email"),
	})
	if err != nil {
		return "", "", err
	}
	var decoded struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := ai.ParseObject(raw, &decoded); err != nil {
		return "", "", err
	}
	return strings.TrimSpace(decoded.Subject), strings.TrimSpace(decoded.Body), nil
}

// ComposeDM produces one direct-message variant for a platform and strategy.
func (c *Composer) ComposeDM(ctx context.Context, lead LeadContext, platform, strategy string) (string, error) {
	raw, err := c.ai.Complete(ctx, ai.Request{
		System: composerSystem + ` Shape: {"message": ""}`,
		Prompt: buildComposePrompt(lead, strategy, fmt.Sprintf("a %s direct message", platform)),
	})
	if err != nil {
		return "", err
	}
	var decoded struct {
		Message string `json:"message"`
	}
	if err := ai.ParseObject(raw, &decoded); err != nil {
		return "", err
	}
	return strings.TrimSpace(decoded.Message), nil
}

func buildComposePrompt(lead LeadContext, strategy, kind string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write %s to %s", kind, lead.CompanyName)
	if lead.Industry != "" {
		fmt.Fprintf(&b, " (%s)", lead.Industry)
	}
	if lead.Website != "" {
		fmt.Fprintf(&b, ", website %s", lead.Website)
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "Angle: %s.\n", strategyAngle[strategy])
	if len(lead.Findings) > 0 {
		b.WriteString("Findings from our analysis:\n")
		for _, f := range lead.Findings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	b.WriteString("\nRespond with the JSON object only.")
	return b.String()
}
