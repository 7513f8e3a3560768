// Package remote is the boundary to the hosted relational store. All writes
// go through one idempotent upsert contract: replaying a backup never creates
// duplicate rows.
package remote

import (
	"context"
	"encoding/json"

	"git.home.luguber.info/inful/leadforge/internal/backup"
)

// Store upserts engine payloads into the remote database and returns the row
// id. The conflict key is the engine's natural key:
//
//	analysis  url
//	prospecting  google_place_id, falling back to (company_name, website)
//	outreach  (lead_id, platform)
//	reports   (lead_id, format)
type Store interface {
	Upsert(ctx context.Context, engine backup.Engine, data json.RawMessage) (databaseID string, err error)
}

// conflictKeys maps each engine to the column list its upsert merges on.
var conflictKeys = map[backup.Engine]string{
	backup.EngineAnalysis:    "url",
	backup.EngineProspecting: "google_place_id",
	backup.EngineOutreach:    "lead_id,platform",
	backup.EngineReports:     "lead_id,format",
}

// tables maps each engine to its remote table.
var tables = map[backup.Engine]string{
	backup.EngineAnalysis:    "analyses",
	backup.EngineProspecting: "prospects",
	backup.EngineOutreach:    "outreach_variants",
	backup.EngineReports:     "reports",
}
