package webhook

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileRecordingStore writes recordings to local disk, one directory per
// tenant. Deployments that keep recordings in object storage implement
// RecordingStore against their bucket client instead.
type FileRecordingStore struct {
	root string
}

// NewFileRecordingStore creates a store rooted at dir.
func NewFileRecordingStore(dir string) *FileRecordingStore {
	return &FileRecordingStore{root: dir}
}

// Store implements RecordingStore.
func (s *FileRecordingStore) Store(ctx context.Context, orgID, sessionID string, body io.Reader) (string, error) {
	dir := filepath.Join(s.root, orgID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("recording dir: %w", err)
	}

	path := filepath.Join(dir, sessionID+".wav")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("recording file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("recording write: %w", err)
	}
	return path, nil
}
