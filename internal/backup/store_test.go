package backup

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/metrics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestSaveWritesPendingRecord(t *testing.T) {
	s := newTestStore(t)

	path, rec, err := s.Save(EngineAnalysis, map[string]any{"score": 72}, Meta{
		CompanyName: "Café Müller GmbH",
		URL:         "https://cafe-mueller.example",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rec.UploadStatus != StatusPending {
		t.Fatalf("new record must be pending, got %s", rec.UploadStatus)
	}
	if !strings.HasPrefix(filepath.Base(path), "cafe-muller-gmbh-") {
		t.Fatalf("file name must start with slug, got %s", filepath.Base(path))
	}
	if filepath.Base(filepath.Dir(path)) != leadsDir {
		t.Fatalf("new record must land in %s/, got %s", leadsDir, path)
	}

	got, err := readRecord(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var payload map[string]int
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if payload["score"] != 72 {
		t.Fatalf("payload round-trip mismatch: %v", payload)
	}
}

func TestSaveRejectsUnknownEngine(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Save("crm", nil, Meta{}); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestFileIDsAreMonotonic(t *testing.T) {
	s := newTestStore(t)

	var prev string
	for i := 0; i < 20; i++ {
		path, _, err := s.Save(EngineProspecting, i, Meta{CompanyName: "Acme"})
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		name := filepath.Base(path)
		if prev != "" && name <= prev {
			t.Fatalf("file IDs must be strictly increasing: %s then %s", prev, name)
		}
		prev = name
	}
}

func TestMarkUploadedInPlace(t *testing.T) {
	s := newTestStore(t)
	path, _, err := s.Save(EngineAnalysis, "x", Meta{CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := s.MarkUploaded(path, "row-42"); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	rec, err := readRecord(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if rec.UploadStatus != StatusUploaded || !rec.UploadedToDB {
		t.Fatalf("expected uploaded status, got %+v", rec)
	}
	if rec.DatabaseID != "row-42" || rec.UploadedAt == "" {
		t.Fatalf("expected database id and timestamp, got %+v", rec)
	}

	pending, err := s.ListPending(EngineAnalysis)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("uploaded record must not list as pending")
	}
}

func TestMarkFailedMovesToFailedDir(t *testing.T) {
	s := newTestStore(t)
	path, rec, err := s.Save(EngineOutreach, "x", Meta{CompanyName: "Acme", LeadID: "L1"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	dst, err := s.MarkFailed(path, errors.New("remote store unreachable"))
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if filepath.Base(filepath.Dir(dst)) != failedDir {
		t.Fatalf("failed record must live in %s/, got %s", failedDir, dst)
	}
	if filepath.Base(dst) != rec.FileID+".json" {
		t.Fatalf("file_id must survive the move: %s", dst)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("original must be removed after move")
	}

	failed, err := readRecord(dst)
	if err != nil {
		t.Fatalf("read failed copy: %v", err)
	}
	if failed.UploadStatus != StatusFailed || failed.RetryCount != 1 {
		t.Fatalf("expected failed status with retry_count=1, got %+v", failed)
	}
	if failed.UploadError != "remote store unreachable" || failed.FailedAt == "" {
		t.Fatalf("expected upload error and failed_at, got %+v", failed)
	}
}

type countingRecorder struct {
	metrics.NoopRecorder
	uploads   int
	succeeded int
}

func (c *countingRecorder) IncUploadResult(_ string, success bool) {
	c.uploads++
	if success {
		c.succeeded++
	}
}

func TestMarkFailedCountsUploadEvenWhenRemoveFails(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not bind root")
	}
	rec := &countingRecorder{}
	s, err := NewStore(t.TempDir(), rec)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	path, _, err := s.Save(EngineAnalysis, "x", Meta{CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	// Make leads/ read-only so deleting the original fails after the
	// failed-uploads/ copy is written.
	leads := filepath.Dir(path)
	if err := os.Chmod(leads, 0o550); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(leads, 0o750) })

	dst, err := s.MarkFailed(path, errors.New("boom"))
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("failed copy must exist: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("original should have survived the failed remove: %v", err)
	}
	if rec.uploads != 1 || rec.succeeded != 0 {
		t.Fatalf("failed upload must be counted exactly once, got %d/%d", rec.uploads, rec.succeeded)
	}
}

func TestListPendingTombstonesInterruptedMove(t *testing.T) {
	s := newTestStore(t)
	path, rec, err := s.Save(EngineAnalysis, "x", Meta{CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	// Simulate a crash between writing the failed copy and deleting the
	// original: both files exist under the same file_id.
	failedCopy := *rec
	failedCopy.UploadStatus = StatusFailed
	if err := writeAtomic(s.failedPath(EngineAnalysis, rec.FileID), &failedCopy); err != nil {
		t.Fatalf("plant failed copy: %v", err)
	}

	pending, err := s.ListPending(EngineAnalysis)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("tombstoned record must not list as pending")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("tombstone must be deleted during the scan")
	}
}

func TestRestoreAfterSuccessfulRetry(t *testing.T) {
	s := newTestStore(t)
	path, _, err := s.Save(EngineReports, "x", Meta{CompanyName: "Acme", LeadID: "L1", Format: "html"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	failedPath, err := s.MarkFailed(path, errors.New("boom"))
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	restored, err := s.Restore(failedPath, "row-7")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if filepath.Base(filepath.Dir(restored)) != leadsDir {
		t.Fatalf("restored record must return to %s/, got %s", leadsDir, restored)
	}
	rec, err := readRecord(restored)
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if rec.UploadStatus != StatusUploaded || rec.RetryCount != 1 {
		t.Fatalf("expected uploaded with retry_count preserved, got %+v", rec)
	}
	if rec.UploadError != "" || rec.FailedAt != "" {
		t.Fatalf("failure fields must be cleared on restore, got %+v", rec)
	}
	if _, err := os.Stat(failedPath); !os.IsNotExist(err) {
		t.Fatalf("failed copy must be removed after restore")
	}
}

func TestRecordFailureBumpsRetryCount(t *testing.T) {
	s := newTestStore(t)
	path, _, err := s.Save(EngineAnalysis, "x", Meta{CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	failedPath, err := s.MarkFailed(path, errors.New("first"))
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := s.RecordFailure(failedPath, errors.New("second")); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	rec, err := readRecord(failedPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec.RetryCount != 2 || rec.UploadError != "second" {
		t.Fatalf("expected retry_count=2 with latest error, got %+v", rec)
	}
}

func TestScanIgnoresTempAndCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Save(EngineAnalysis, "x", Meta{CompanyName: "Acme"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	dir := s.dir(EngineAnalysis, leadsDir)
	if err := os.WriteFile(filepath.Join(dir, "partial.json.0.tmp"), []byte("{"), 0o600); err != nil {
		t.Fatalf("plant tmp: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("not json"), 0o600); err != nil {
		t.Fatalf("plant corrupt: %v", err)
	}

	pending, err := s.ListPending(EngineAnalysis)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected exactly the good record, got %d", len(pending))
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	p1, _, _ := s.Save(EngineAnalysis, "a", Meta{CompanyName: "A"})
	p2, _, _ := s.Save(EngineAnalysis, "b", Meta{CompanyName: "B"})
	if _, _, err := s.Save(EngineOutreach, "c", Meta{CompanyName: "C", LeadID: "L"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.MarkUploaded(p1, "row-1"); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	if _, err := s.MarkFailed(p2, errors.New("boom")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{Total: 3, Uploaded: 1, Pending: 1, Failed: 1, SuccessRate: 1.0 / 3.0}
	if stats != want {
		t.Fatalf("stats mismatch: got %+v want %+v", stats, want)
	}

	detailed, err := s.DetailedStats()
	if err != nil {
		t.Fatalf("detailed stats: %v", err)
	}
	for _, es := range detailed {
		if es.Engine == EngineOutreach {
			if es.Pending != 1 || es.OldestPendingAge == "" {
				t.Fatalf("outreach breakdown wrong: %+v", es)
			}
		}
	}
}

func TestValidateStatusDirectoryConsistency(t *testing.T) {
	s := newTestStore(t)
	path, _, err := s.Save(EngineAnalysis, "x", Meta{CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if res := s.Validate(path); !res.Valid {
		t.Fatalf("fresh record must validate: %s", res.Reason)
	}

	// Flip the status without moving the file.
	rec, _ := readRecord(path)
	rec.UploadStatus = StatusFailed
	if err := writeAtomic(path, rec); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if res := s.Validate(path); res.Valid {
		t.Fatal("failed status in leads/ must not validate")
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	s := newTestStore(t)
	dir := s.dir(EngineAnalysis, leadsDir)
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte(`{"engine":"analysis"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	res := s.Validate(path)
	if res.Valid {
		t.Fatal("record without file_id must not validate")
	}
	if !strings.Contains(res.Reason, "file_id") {
		t.Fatalf("reason should name the missing field, got %q", res.Reason)
	}
}

func TestMigrateFlatFormat(t *testing.T) {
	s := newTestStore(t)
	dir := s.dir(EngineAnalysis, leadsDir)
	path := filepath.Join(dir, "acme-2025-11-02-old.json")
	flat := []byte(`{
		"saved_at": "2025-11-02T10:00:00Z",
		"company_name": "Acme",
		"url": "https://acme.example",
		"analysis_result": {"overall_score": 61},
		"lead_data": {"industry": "plumbing"},
		"uploaded_to_db": false
	}`)
	if err := os.WriteFile(path, flat, 0o600); err != nil {
		t.Fatalf("plant flat record: %v", err)
	}

	rec, err := s.Migrate(path)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if rec.UploadStatus != StatusPending {
		t.Fatalf("non-uploaded flat record must become pending, got %s", rec.UploadStatus)
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		t.Fatalf("decode nested data: %v", err)
	}
	if _, ok := data["analysis_result"]; !ok {
		t.Fatal("analysis_result must nest under data")
	}
	if _, ok := data["lead_data"]; !ok {
		t.Fatal("lead_data must nest under data")
	}

	if res := s.Validate(path); !res.Valid {
		t.Fatalf("migrated record must validate: %s", res.Reason)
	}

	// Second migration attempt must refuse: the file is canonical now.
	if _, err := s.Migrate(path); err == nil {
		t.Fatal("canonical record must not migrate again")
	}
}

func TestMigrateAllDryRun(t *testing.T) {
	s := newTestStore(t)
	dir := s.dir(EngineAnalysis, leadsDir)
	path := filepath.Join(dir, "old.json")
	flat := []byte(`{"company_name":"A","analysis_result":{},"uploaded_to_db":false}`)
	if err := os.WriteFile(path, flat, 0o600); err != nil {
		t.Fatalf("plant: %v", err)
	}
	if _, _, err := s.Save(EngineAnalysis, "x", Meta{CompanyName: "New"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	migrated, skipped, err := s.MigrateAll(EngineAnalysis, true)
	if err != nil {
		t.Fatalf("migrate all: %v", err)
	}
	if len(migrated) != 1 || len(skipped) != 1 {
		t.Fatalf("expected 1 migrated / 1 skipped, got %d/%d", len(migrated), len(skipped))
	}
	// Dry run must not rewrite.
	raw, _ := os.ReadFile(path)
	if !IsFlatFormat(raw) {
		t.Fatal("dry run must leave the file untouched")
	}
}

func TestCleanupRemovesOnlyExpiredUploaded(t *testing.T) {
	s := newTestStore(t)

	oldPath, _, err := s.Save(EngineAnalysis, "old", Meta{CompanyName: "Old"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.MarkUploaded(oldPath, "row-1"); err != nil {
		t.Fatalf("mark uploaded: %v", err)
	}
	// Age the record past the retention window.
	rec, _ := readRecord(oldPath)
	rec.SavedAt = time.Now().UTC().AddDate(0, 0, -45).Format(time.RFC3339)
	if err := writeAtomic(oldPath, rec); err != nil {
		t.Fatalf("age record: %v", err)
	}

	// A pending record of the same age must survive.
	pendingPath, _, err := s.Save(EngineAnalysis, "pending", Meta{CompanyName: "Pending"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	prec, _ := readRecord(pendingPath)
	prec.SavedAt = rec.SavedAt
	if err := writeAtomic(pendingPath, prec); err != nil {
		t.Fatalf("age pending record: %v", err)
	}

	removed, err := s.Cleanup(30, false)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if len(removed) != 1 || removed[0] != oldPath {
		t.Fatalf("expected only the uploaded record removed, got %v", removed)
	}
	if _, err := os.Stat(pendingPath); err != nil {
		t.Fatalf("pending record must survive cleanup: %v", err)
	}
}

func TestSlug(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Café Müller GmbH", "cafe-muller-gmbh"},
		{"  Acme & Sons, Inc.  ", "acme-sons-inc"},
		{"ÅNGSTRÖM", "angstrom"},
		{"---", ""},
		{"a b", "a-b"},
	}
	for _, c := range cases {
		if got := Slug(c.in); got != c.want {
			t.Errorf("Slug(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
