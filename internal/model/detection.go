package model

import (
	"math"
	"strings"
	"time"
)

// Detection is a single plate reading produced by the recognition stage.
// It is immutable once handed to the pipeline; the image payload ownership
// transfers at enqueue time.
type Detection struct {
	PlateText  string    `json:"plate_text"`
	Confidence float64   `json:"confidence"`
	CapturedAt time.Time `json:"captured_at"`
	Image      []byte    `json:"-"`
}

// DetectionRecord represents a persisted detection row.
type DetectionRecord struct {
	ID         int64     `json:"id"`
	PlateText  string    `json:"plate_text"`
	Confidence float64   `json:"confidence"`
	CapturedAt time.Time `json:"captured_at"`
	ImagePath  string    `json:"image_path"`
}

// NormalizePlate canonicalizes a raw OCR plate string so that all cooldown
// and storage decisions key on the same identity.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// RoundConfidence truncates OCR confidence to 4 decimal places before storage.
func RoundConfidence(confidence float64) float64 {
	return math.Round(confidence*10000) / 10000
}
