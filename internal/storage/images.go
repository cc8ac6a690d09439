package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ImageSink persists plate crops to stable storage.
type ImageSink interface {
	// Write stores the payload under the given filename and returns the
	// full path of the written file.
	Write(filename string, data []byte) (string, error)
}

// ImageDir writes plate crops as individual files under a base directory.
type ImageDir struct {
	baseDir string
}

// NewImageDir creates an ImageDir sink rooted at baseDir.
func NewImageDir(baseDir string) *ImageDir {
	return &ImageDir{baseDir: baseDir}
}

// Write stores the crop on disk. The directory is created lazily so a
// missing or remounted SD card surfaces as a write error, not a crash.
func (s *ImageDir) Write(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	fullPath := filepath.Join(s.baseDir, filename)
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image %s: %w", filename, err)
	}

	return fullPath, nil
}

// CropFilename derives the deterministic file name for an accepted detection.
// Format: {PLATE}_{captured_at_unix_ms}.jpg
func CropFilename(plateText string, capturedAt time.Time) string {
	return fmt.Sprintf("%s_%d.jpg", plateText, capturedAt.UnixMilli())
}
