// blog/media.go
package blog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MediaStore keeps uploaded post images on local disk under a single media
// directory. Stored paths are relative to that directory so the database
// never learns about the filesystem layout.
type MediaStore struct {
	dir string
}

func NewMediaStore(dir string) (*MediaStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "posts"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	return &MediaStore{dir: dir}, nil
}

func (s *MediaStore) Dir() string {
	return s.dir
}

// Save stores an upload under a fresh name, keeping only the original
// extension, and returns the media-relative path.
func (s *MediaStore) Save(originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	rel := filepath.Join("posts", uuid.New().String()+ext)
	f, err := os.Create(filepath.Join(s.dir, rel))
	if err != nil {
		return "", fmt.Errorf("failed to create media file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// Remove deletes a stored file. An empty path or an already-missing file is
// a no-op: the post is gone either way.
func (s *MediaStore) Remove(rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(rel)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
