package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/backup"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/queue"
)

// Payload is the compose job input. options.generate_variants, when present,
// overrides the advisory has_variants flag from the caller.
type Payload struct {
	LeadID      string   `json:"lead_id"`
	CompanyName string   `json:"company_name"`
	Industry    string   `json:"industry,omitempty"`
	Website     string   `json:"website,omitempty"`
	Findings    []string `json:"findings,omitempty"`
	Platforms   []string `json:"platforms,omitempty"`
	HasVariants *bool    `json:"has_variants,omitempty"`
	Options     struct {
		GenerateVariants *bool `json:"generate_variants,omitempty"`
	} `json:"options,omitempty"`
}

func (p Payload) generateVariants() bool {
	if p.Options.GenerateVariants != nil {
		return *p.Options.GenerateVariants
	}
	return p.HasVariants == nil || !*p.HasVariants
}

// Variant is one piece of composed copy with its quality verdict.
type Variant struct {
	Strategy   string   `json:"strategy"`
	Subject    string   `json:"subject,omitempty"`
	Body       string   `json:"body"`
	Accepted   bool     `json:"accepted"`
	Rejections []string `json:"rejections,omitempty"`
}

// Row is one platform's composed copy as the remote store receives it,
// upserted on (lead_id, platform).
type Row struct {
	LeadID        string    `json:"lead_id"`
	CompanyName   string    `json:"company_name"`
	Platform      string    `json:"platform"`
	Variants      []Variant `json:"variants"`
	AcceptedCount int       `json:"accepted_count"`
	RejectedCount int       `json:"rejected_count"`
	ComposedAt    string    `json:"composed_at"`
}

// Stage runs compose jobs: email plus a DM per requested platform, every
// variant checked against the ruleset. Low quality never fails the job.
type Stage struct {
	composer *Composer
	rules    Ruleset
}

// NewStage wires a compose stage with the default ruleset.
func NewStage(composer *Composer) *Stage {
	return &Stage{composer: composer, rules: DefaultRuleset()}
}

// Engine implements pipeline.Stage.
func (s *Stage) Engine() backup.Engine { return backup.EngineOutreach }

// Execute implements pipeline.Stage. Cancellation is observed between
// variants. The job fails only when not a single variant could be generated.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) (any, backup.Meta, error) {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, backup.Meta{}, lferrors.InvalidPayload("payload", err.Error())
	}
	if payload.LeadID == "" {
		return nil, backup.Meta{}, lferrors.InvalidPayload("lead_id", "required")
	}
	if payload.CompanyName == "" {
		return nil, backup.Meta{}, lferrors.InvalidPayload("company_name", "required")
	}
	if len(payload.Platforms) == 0 {
		payload.Platforms = []string{PlatformLinkedIn}
	}

	lead := LeadContext{
		LeadID:      payload.LeadID,
		CompanyName: payload.CompanyName,
		Industry:    payload.Industry,
		Website:     payload.Website,
		Findings:    payload.Findings,
	}
	strategies := variantStrategies(payload.generateVariants())
	channels := append([]string{PlatformEmail}, payload.Platforms...)
	total := len(channels) * len(strategies)
	now := time.Now().UTC().Format(time.RFC3339)

	var (
		rows      []Row
		generated int
		step      int
		lastErr   error
	)
	for _, platform := range channels {
		row := Row{
			LeadID:      payload.LeadID,
			CompanyName: payload.CompanyName,
			Platform:    platform,
			Variants:    []Variant{},
			ComposedAt:  now,
		}
		for _, strategy := range strategies {
			if job.CancelRequested() {
				return nil, backup.Meta{}, lferrors.Cancelled(job.ID)
			}
			step++
			job.Report(step, total, fmt.Sprintf("%s %s", platform, strategy))

			variant, err := s.composeOne(ctx, lead, platform, strategy)
			if err != nil {
				lastErr = err
				slog.Warn("Variant generation failed",
					logfields.JobID(job.ID), logfields.Company(payload.CompanyName),
					"platform", platform, "strategy", strategy, logfields.Error(err))
				continue
			}
			generated++
			if variant.Accepted {
				row.AcceptedCount++
			} else {
				row.RejectedCount++
			}
			row.Variants = append(row.Variants, variant)
		}
		rows = append(rows, row)
	}

	if generated == 0 {
		return nil, backup.Meta{}, lferrors.Transient("no outreach variant could be generated", lastErr)
	}

	slog.Info("Outreach composed",
		logfields.JobID(job.ID), logfields.Company(payload.CompanyName),
		"platforms", len(channels), "variants", generated,
	)

	meta := backup.Meta{
		CompanyName: payload.CompanyName,
		URL:         payload.Website,
		Industry:    payload.Industry,
		LeadID:      payload.LeadID,
	}
	return rows, meta, nil
}

func (s *Stage) composeOne(ctx context.Context, lead LeadContext, platform, strategy string) (Variant, error) {
	v := Variant{Strategy: strategy}
	if platform == PlatformEmail {
		subject, body, err := s.composer.ComposeEmail(ctx, lead, strategy)
		if err != nil {
			return Variant{}, err
		}
		v.Subject = subject
		v.Body = body
		v.Rejections = s.rules.CheckEmail(subject, body)
	} else {
		text, err := s.composer.ComposeDM(ctx, lead, platform, strategy)
		if err != nil {
			return Variant{}, err
		}
		v.Body = text
		v.Rejections = s.rules.CheckDM(platform, text)
	}
	v.Accepted = len(v.Rejections) == 0
	return v, nil
}
