package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// ImageStore persists generated scene images under a content-addressed
// filename so repeated captions reuse the same file.
type ImageStore struct {
	mediaDir string
}

func NewImageStore(dataDir string) (*ImageStore, error) {
	mediaDir := filepath.Join(dataDir, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &ImageStore{mediaDir: mediaDir}, nil
}

// imageFilename derives the stable filename for a caption.
func imageFilename(caption string) string {
	sum := sha256.Sum256([]byte(caption))
	return hex.EncodeToString(sum[:])[:16] + ".png"
}

// Save writes the image bytes for the caption and returns the filename
// relative to the media directory.
func (s *ImageStore) Save(caption string, data []byte) (string, error) {
	name := imageFilename(caption)
	if err := os.WriteFile(filepath.Join(s.mediaDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	return name, nil
}

// Load reads a previously saved image. It returns (nil, nil) when no image
// exists for the name.
func (s *ImageStore) Load(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.mediaDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}
