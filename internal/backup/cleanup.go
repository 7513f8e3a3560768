package backup

import (
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Cleanup deletes uploaded records older than the retention window. Pending
// and failed records are never touched: only data confirmed in the remote
// store is eligible.
func (s *Store) Cleanup(retentionDays int, dryRun bool) (removed []string, err error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	entries, err := s.ListUploaded("")
	if err != nil {
		return nil, err
	}
	for _, ent := range entries {
		savedAt, err := time.Parse(time.RFC3339, ent.Record.SavedAt)
		if err != nil {
			slog.Warn("Skipping record with unparseable saved_at",
				"path", ent.Path, "saved_at", ent.Record.SavedAt)
			continue
		}
		if !savedAt.Before(cutoff) {
			continue
		}
		if dryRun {
			removed = append(removed, ent.Path)
			continue
		}
		if err := os.Remove(ent.Path); err != nil {
			slog.Warn("Failed to remove expired record", "path", ent.Path, "error", err)
			continue
		}
		removed = append(removed, ent.Path)
	}
	return removed, nil
}
