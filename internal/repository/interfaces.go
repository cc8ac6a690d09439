package repository

import (
	"alprd/internal/model"
)

// DetectionStore defines the persistence operations used by the storage
// writer. Exactly one execution context touches a store instance at a time.
type DetectionStore interface {
	// Insert adds a detection row and returns its id.
	Insert(rec *model.DetectionRecord) (int64, error)

	// Close releases the underlying connection.
	Close() error
}

// DetectionReader defines the read-side queries used by the diagnostic
// handlers. Implementations must be safe for concurrent readers.
type DetectionReader interface {
	GetPlateHistory(plateText string) ([]model.DetectionRecord, error)
	GetRecent(limit int) ([]model.DetectionRecord, error)
	GetStats() (*Stats, error)
}

// Stats summarizes the contents of the detections table.
type Stats struct {
	TotalDetections int            `json:"total_detections"`
	UniquePlates    int            `json:"unique_plates"`
	TopPlates       map[string]int `json:"top_plates"`
}
