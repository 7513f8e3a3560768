package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// flatRecord is the pre-nesting on-disk shape: the payload fields sat at the
// top level next to the metadata instead of under data.
type flatRecord struct {
	FileID         string          `json:"file_id"`
	SavedAt        string          `json:"saved_at"`
	CompanyName    string          `json:"company_name"`
	URL            string          `json:"url"`
	Grade          string          `json:"grade"`
	OverallScore   *float64        `json:"overall_score"`
	Industry       string          `json:"industry"`
	AnalysisResult json.RawMessage `json:"analysis_result"`
	LeadData       json.RawMessage `json:"lead_data"`
	UploadedToDB   bool            `json:"uploaded_to_db"`
	UploadedAt     string          `json:"uploaded_at"`
	DatabaseID     string          `json:"database_id"`
}

// IsFlatFormat detects the old shape structurally: no nested data field plus a
// top-level analysis_result. Nothing else about the file is trusted.
func IsFlatFormat(raw []byte) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	_, hasData := probe["data"]
	_, hasAnalysis := probe["analysis_result"]
	return !hasData && hasAnalysis
}

// Migrate rewrites a flat-format record file into the canonical nested shape
// in place. It never touches the remote store. Returns the migrated record, or
// an error if the file is not flat-format.
func (s *Store) Migrate(path string) (*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	if !IsFlatFormat(raw) {
		return nil, fmt.Errorf("%s: not a flat-format record", filepath.Base(path))
	}

	var flat flatRecord
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode flat record: %w", err)
	}

	payload := map[string]json.RawMessage{
		"analysis_result": orNull(flat.AnalysisResult),
		"lead_data":       orNull(flat.LeadData),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal nested payload: %w", err)
	}

	rec := &Record{
		FileID:       flat.FileID,
		Engine:       EngineAnalysis, // flat records predate the multi-engine layout
		SavedAt:      flat.SavedAt,
		CompanyName:  flat.CompanyName,
		URL:          flat.URL,
		Grade:        flat.Grade,
		OverallScore: flat.OverallScore,
		Industry:     flat.Industry,
		Data:         data,
		UploadedToDB: flat.UploadedToDB,
		UploadedAt:   flat.UploadedAt,
		DatabaseID:   flat.DatabaseID,
	}
	if rec.UploadedToDB {
		rec.UploadStatus = StatusUploaded
	} else {
		rec.UploadStatus = StatusPending
	}
	if rec.SavedAt == "" {
		rec.SavedAt = now()
	}
	if rec.FileID == "" {
		rec.FileID = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MigrateAll scans leads/ directories for flat-format files and migrates each.
// With dryRun set it only reports which files would change.
func (s *Store) MigrateAll(engine Engine, dryRun bool) (migrated, skipped []string, err error) {
	for _, e := range s.enginesFor(engine) {
		dir := s.dir(e, leadsDir)
		items, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		for _, it := range items {
			if it.IsDir() || !strings.HasSuffix(it.Name(), ".json") {
				continue
			}
			path := filepath.Join(dir, it.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				skipped = append(skipped, path)
				continue
			}
			if !IsFlatFormat(raw) {
				skipped = append(skipped, path)
				continue
			}
			if dryRun {
				migrated = append(migrated, path)
				continue
			}
			if _, err := s.Migrate(path); err != nil {
				skipped = append(skipped, path)
				continue
			}
			migrated = append(migrated, path)
		}
	}
	return migrated, skipped, nil
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
