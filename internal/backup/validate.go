package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidationResult is the outcome of checking one record file.
type ValidationResult struct {
	Path   string `json:"path"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Validate checks a single record file: the JSON must parse, required fields
// must be present, and the upload status must match the directory the file
// sits in (failed records live in failed-uploads/, everything else in leads/).
func (s *Store) Validate(path string) ValidationResult {
	res := ValidationResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		res.Reason = fmt.Sprintf("unreadable: %v", err)
		return res
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		res.Reason = fmt.Sprintf("invalid JSON: %v", err)
		return res
	}

	switch {
	case rec.FileID == "":
		res.Reason = "missing file_id"
	case !rec.Engine.Valid():
		res.Reason = fmt.Sprintf("unknown engine %q", rec.Engine)
	case rec.SavedAt == "":
		res.Reason = "missing saved_at"
	case len(rec.Data) == 0:
		res.Reason = "missing data"
	case rec.UploadStatus != StatusPending && rec.UploadStatus != StatusUploaded && rec.UploadStatus != StatusFailed:
		res.Reason = fmt.Sprintf("unknown upload_status %q", rec.UploadStatus)
	}
	if res.Reason != "" {
		return res
	}

	inFailedDir := filepath.Base(filepath.Dir(path)) == failedDir
	if inFailedDir && rec.UploadStatus != StatusFailed {
		res.Reason = fmt.Sprintf("status %q in %s/", rec.UploadStatus, failedDir)
		return res
	}
	if !inFailedDir && rec.UploadStatus == StatusFailed {
		res.Reason = fmt.Sprintf("status failed outside %s/", failedDir)
		return res
	}

	res.Valid = true
	return res
}

// ValidateAll walks both directories of every engine and validates each record
// file, including ones scanDir would silently skip.
func (s *Store) ValidateAll(engine Engine) ([]ValidationResult, error) {
	var out []ValidationResult
	for _, e := range s.enginesFor(engine) {
		for _, sub := range []string{leadsDir, failedDir} {
			dir := s.dir(e, sub)
			items, err := os.ReadDir(dir)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, fmt.Errorf("scan %s: %w", dir, err)
			}
			for _, it := range items {
				if it.IsDir() || !strings.HasSuffix(it.Name(), ".json") {
					continue
				}
				out = append(out, s.Validate(filepath.Join(dir, it.Name())))
			}
		}
	}
	return out, nil
}
