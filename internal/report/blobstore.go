package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// BlobStore keeps rendered report bodies in a content-addressable layout:
//
//	<base>/
//	  blobs/
//	    ab/
//	      cd1234...           (first 2 chars = subdir, rest = filename)
//	      cd1234....meta.json (content type, size, created_at)
//
// The backup record for a report carries only the metadata row; the body
// lives here, deduplicated by hash, so re-rendering an unchanged report is
// free and the remote store never sees megabytes of HTML.
type BlobStore struct {
	basePath string
	mu       sync.RWMutex
}

type blobMeta struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at"`
}

// NewBlobStore creates the store rooted at basePath.
func NewBlobStore(basePath string) (*BlobStore, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "blobs"), 0o750); err != nil {
		return nil, fmt.Errorf("create blob directory: %w", err)
	}
	return &BlobStore{basePath: basePath}, nil
}

// Put stores a blob and returns its content hash. Storing the same bytes
// twice is a no-op returning the existing hash.
func (s *BlobStore) Put(data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	path := s.blobPath(hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create blob subdirectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}

	meta := blobMeta{
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal blob metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta.json", raw, 0o600); err != nil {
		return "", fmt.Errorf("write blob metadata: %w", err)
	}
	return hash, nil
}

// Get returns a blob's bytes and content type.
func (s *BlobStore) Get(hash string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.blobPath(hash)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("blob not found: %s", hash)
		}
		return nil, "", fmt.Errorf("read blob: %w", err)
	}

	var meta blobMeta
	if raw, merr := os.ReadFile(path + ".meta.json"); merr == nil {
		_ = json.Unmarshal(raw, &meta)
	}
	return data, meta.ContentType, nil
}

// Exists reports whether the blob is present.
func (s *BlobStore) Exists(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := os.Stat(s.blobPath(hash))
	return err == nil
}

// Delete removes a blob and its metadata sidecar.
func (s *BlobStore) Delete(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.blobPath(hash)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob not found: %s", hash)
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	os.Remove(path + ".meta.json") // best effort
	os.Remove(filepath.Dir(path))  // best effort, only succeeds when empty
	return nil
}

func (s *BlobStore) blobPath(hash string) string {
	if len(hash) < 2 {
		return filepath.Join(s.basePath, "blobs", hash)
	}
	return filepath.Join(s.basePath, "blobs", hash[:2], hash[2:])
}
