package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/metrics"
)

const (
	leadsDir  = "leads"
	failedDir = "failed-uploads"
)

// Store is a per-engine local JSON store with atomic writes.
//
// Layout:
//
//	<root>/<engine>/leads/            # pending | uploaded
//	<root>/<engine>/failed-uploads/   # failed
//
// The store assumes exclusive write access by a single process. Concurrent
// readers (validation, retry) tolerate partially written .tmp files by
// ignoring them.
type Store struct {
	root     string
	mu       sync.Mutex
	ids      *idGenerator
	recorder metrics.Recorder
}

// NewStore creates a backup store rooted at the given path and ensures the
// directory pair exists for every engine.
func NewStore(root string, recorder metrics.Recorder) (*Store, error) {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	s := &Store{root: root, ids: newIDGenerator(), recorder: recorder}
	for _, e := range Engines() {
		for _, d := range []string{leadsDir, failedDir} {
			if err := os.MkdirAll(filepath.Join(root, string(e), d), 0o750); err != nil {
				return nil, fmt.Errorf("create backup directory: %w", err)
			}
		}
	}
	return s, nil
}

// Root returns the store's root path.
func (s *Store) Root() string { return s.root }

// Save writes a new record with upload_status=pending into <engine>/leads/ and
// returns its path. I/O errors here are fatal to the caller: the pipeline must
// never continue past a failed backup write.
func (s *Store) Save(engine Engine, payload any, meta Meta) (string, *Record, error) {
	if !engine.Valid() {
		return "", nil, fmt.Errorf("unknown engine %q", engine)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("marshal payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts := time.Now()
	rec := &Record{
		FileID:       s.ids.FileID(meta.CompanyName, meta.URL, ts),
		Engine:       engine,
		SavedAt:      ts.UTC().Format(time.RFC3339),
		CompanyName:  meta.CompanyName,
		URL:          meta.URL,
		Grade:        meta.Grade,
		OverallScore: meta.OverallScore,
		Industry:     meta.Industry,
		LeadID:       meta.LeadID,
		Platform:     meta.Platform,
		Format:       meta.Format,
		Data:         data,
		UploadStatus: StatusPending,
	}

	path := s.leadsPath(engine, rec.FileID)
	if err := writeAtomic(path, rec); err != nil {
		return "", nil, err
	}
	s.recorder.IncBackupSave(string(engine))
	return path, rec, nil
}

// MarkUploaded records a successful remote upsert in place.
func (s *Store) MarkUploaded(path, databaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := readRecord(path)
	if err != nil {
		return err
	}
	rec.UploadStatus = StatusUploaded
	rec.UploadedToDB = true
	rec.DatabaseID = databaseID
	rec.UploadedAt = now()
	rec.UploadError = ""
	rec.FailedAt = ""

	if err := writeAtomic(path, rec); err != nil {
		return err
	}
	s.recorder.IncUploadResult(string(rec.Engine), true)
	return nil
}

// MarkFailed moves the record into failed-uploads/ under the same file_id,
// recording the upload error and bumping retry_count. The failed-uploads/ copy
// becomes authoritative as soon as it exists: if deleting the original fails,
// the leftover is tombstoned on the next scan.
func (s *Store) MarkFailed(path string, uploadErr error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := readRecord(path)
	if err != nil {
		return "", err
	}
	rec.UploadStatus = StatusFailed
	rec.UploadedToDB = false
	if uploadErr != nil {
		rec.UploadError = uploadErr.Error()
	}
	rec.FailedAt = now()
	rec.RetryCount++

	dst := s.failedPath(rec.Engine, rec.FileID)
	if err := writeAtomic(dst, rec); err != nil {
		return "", err
	}
	s.recorder.IncUploadResult(string(rec.Engine), false)
	// If the remove fails the duplicate stays behind; scans prefer the
	// failed-uploads/ copy and tombstone the leftover.
	_ = os.Remove(path)
	return dst, nil
}

// Restore moves a failed record back to leads/ after a successful replay,
// marking it uploaded. Used by the retry coordinator.
func (s *Store) Restore(failedPath, databaseID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := readRecord(failedPath)
	if err != nil {
		return "", err
	}
	rec.UploadStatus = StatusUploaded
	rec.UploadedToDB = true
	rec.DatabaseID = databaseID
	rec.UploadedAt = now()
	rec.UploadError = ""
	rec.FailedAt = ""

	dst := s.leadsPath(rec.Engine, rec.FileID)
	if err := writeAtomic(dst, rec); err != nil {
		return "", err
	}
	if err := os.Remove(failedPath); err != nil && !os.IsNotExist(err) {
		return dst, fmt.Errorf("remove failed copy: %w", err)
	}
	s.recorder.IncUploadResult(string(rec.Engine), true)
	return dst, nil
}

// RecordFailure updates a failed record in place after an unsuccessful replay.
func (s *Store) RecordFailure(failedPath string, uploadErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := readRecord(failedPath)
	if err != nil {
		return err
	}
	if uploadErr != nil {
		rec.UploadError = uploadErr.Error()
	}
	rec.FailedAt = now()
	rec.RetryCount++
	return writeAtomic(failedPath, rec)
}

// Entry pairs a record with its on-disk location.
type Entry struct {
	Path   string
	Record *Record
}

// ListPending scans leads/ across engines for records not yet uploaded.
// Records whose file_id also exists in failed-uploads/ are tombstones from an
// interrupted MarkFailed; they are deleted, not returned.
func (s *Store) ListPending(engine Engine) ([]Entry, error) {
	var out []Entry
	for _, e := range s.enginesFor(engine) {
		failed, err := s.fileIDs(s.dir(e, failedDir))
		if err != nil {
			return nil, err
		}
		entries, err := s.scanDir(s.dir(e, leadsDir))
		if err != nil {
			return nil, err
		}
		for _, ent := range entries {
			if failed[ent.Record.FileID] {
				_ = os.Remove(ent.Path) // tombstone from interrupted MarkFailed
				continue
			}
			if ent.Record.UploadStatus == StatusPending {
				out = append(out, ent)
			}
		}
	}
	return out, nil
}

// ListFailed scans failed-uploads/ across engines.
func (s *Store) ListFailed(engine Engine) ([]Entry, error) {
	var out []Entry
	for _, e := range s.enginesFor(engine) {
		entries, err := s.scanDir(s.dir(e, failedDir))
		if err != nil {
			return nil, err
		}
		out = append(out, entries...)
	}
	return out, nil
}

// ListUploaded scans leads/ for uploaded records, oldest first. Used by the
// retention cleanup.
func (s *Store) ListUploaded(engine Engine) ([]Entry, error) {
	var out []Entry
	for _, e := range s.enginesFor(engine) {
		entries, err := s.scanDir(s.dir(e, leadsDir))
		if err != nil {
			return nil, err
		}
		for _, ent := range entries {
			if ent.Record.UploadStatus == StatusUploaded {
				out = append(out, ent)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.SavedAt < out[j].Record.SavedAt })
	return out, nil
}

func (s *Store) enginesFor(engine Engine) []Engine {
	if engine != "" {
		return []Engine{engine}
	}
	return Engines()
}

func (s *Store) dir(e Engine, sub string) string {
	return filepath.Join(s.root, string(e), sub)
}

func (s *Store) leadsPath(e Engine, fileID string) string {
	return filepath.Join(s.dir(e, leadsDir), fileID+".json")
}

func (s *Store) failedPath(e Engine, fileID string) string {
	return filepath.Join(s.dir(e, failedDir), fileID+".json")
}

// scanDir reads every record file in a directory. Unparseable files and .tmp
// leftovers are skipped, never fatal to the scan.
func (s *Store) scanDir(dir string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	var out []Entry
	for _, it := range items {
		if it.IsDir() || !strings.HasSuffix(it.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, it.Name())
		rec, err := readRecord(path)
		if err != nil {
			continue
		}
		out = append(out, Entry{Path: path, Record: rec})
	}
	return out, nil
}

// fileIDs returns the set of record file IDs present in a directory.
func (s *Store) fileIDs(dir string) (map[string]bool, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	ids := make(map[string]bool, len(items))
	for _, it := range items {
		if name, ok := strings.CutSuffix(it.Name(), ".json"); ok {
			ids[name] = true
		}
	}
	return ids, nil
}

// readRecord decodes a record file.
func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", filepath.Base(path), err)
	}
	return &rec, nil
}

// writeAtomic serializes the record to a temp file, fsyncs, and renames it
// into place. A failed rename is retried with a fresh temp name.
func writeAtomic(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	const renameAttempts = 3
	var lastErr error
	for attempt := 0; attempt < renameAttempts; attempt++ {
		tmp := fmt.Sprintf("%s.%d.tmp", path, attempt)
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write temp file: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("sync temp file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("close temp file: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("rename into place after %d attempts: %w", renameAttempts, lastErr)
}
