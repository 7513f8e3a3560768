// Package backup provides at-least-once local durability for engine payloads.
// Every record an engine persists lands on disk before any remote write, and
// survives process restarts and remote-store outages.
package backup

import (
	"encoding/json"
	"time"
)

// Engine identifies which pipeline engine owns a record. Each engine gets its
// own directory pair under the backup root.
type Engine string

const (
	EngineProspecting Engine = "prospecting"
	EngineAnalysis    Engine = "analysis"
	EngineOutreach    Engine = "outreach"
	EngineReports     Engine = "reports"
)

// Engines lists all known engines in scan order.
func Engines() []Engine {
	return []Engine{EngineProspecting, EngineAnalysis, EngineOutreach, EngineReports}
}

// Valid reports whether the engine is one of the known set.
func (e Engine) Valid() bool {
	switch e {
	case EngineProspecting, EngineAnalysis, EngineOutreach, EngineReports:
		return true
	}
	return false
}

// UploadStatus is the remote-write lifecycle state of a record. The status
// field and the directory the file sits in are always consistent: leads/ holds
// pending and uploaded records, failed-uploads/ holds failed ones.
type UploadStatus string

const (
	StatusPending  UploadStatus = "pending"
	StatusUploaded UploadStatus = "uploaded"
	StatusFailed   UploadStatus = "failed"
)

// Record is the canonical on-disk shape. Denormalized metadata is duplicated
// at the top level so directory scans can filter without decoding Data.
type Record struct {
	FileID      string `json:"file_id"`
	Engine      Engine `json:"engine"`
	SavedAt     string `json:"saved_at"` // ISO-8601

	// Denormalized metadata
	CompanyName  string   `json:"company_name"`
	URL          string   `json:"url,omitempty"`
	Grade        string   `json:"grade,omitempty"`
	OverallScore *float64 `json:"overall_score,omitempty"`
	Industry     string   `json:"industry,omitempty"`
	LeadID       string   `json:"lead_id,omitempty"`
	Platform     string   `json:"platform,omitempty"`
	Format       string   `json:"format,omitempty"`

	// Data is the canonical payload the remote store receives, verbatim.
	Data json.RawMessage `json:"data"`

	// Upload lifecycle
	UploadedToDB bool         `json:"uploaded_to_db"`
	UploadStatus UploadStatus `json:"upload_status"`
	UploadedAt   string       `json:"uploaded_at,omitempty"`
	DatabaseID   string       `json:"database_id,omitempty"`
	UploadError  string       `json:"upload_error,omitempty"`
	FailedAt     string       `json:"failed_at,omitempty"`
	RetryCount   int          `json:"retry_count"`
}

// Meta carries the denormalized fields supplied at save time.
type Meta struct {
	CompanyName  string
	URL          string
	Grade        string
	OverallScore *float64
	Industry     string
	LeadID       string
	Platform     string
	Format       string
}

// now returns the current time formatted the way every timestamp field in a
// record is stored.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
