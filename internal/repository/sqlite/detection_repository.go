package sqlite

import (
	"fmt"

	"alprd/internal/model"
	"alprd/internal/repository"
)

const topPlatesLimit = 10

// DetectionRepository implements repository.DetectionStore and
// repository.DetectionReader for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// Insert adds a new detection record to the database.
func (r *DetectionRepository) Insert(rec *model.DetectionRecord) (int64, error) {
	result, err := r.db.Conn().Exec(`
		INSERT INTO detections (plate_text, confidence, captured_at, image_path)
		VALUES (?, ?, ?, ?)
	`, rec.PlateText, rec.Confidence, rec.CapturedAt, rec.ImagePath)
	if err != nil {
		return 0, fmt.Errorf("failed to insert detection: %w", err)
	}

	return result.LastInsertId()
}

// Close closes the underlying connection.
func (r *DetectionRepository) Close() error {
	return r.db.Close()
}

// GetPlateHistory retrieves all sightings of a plate, newest first.
func (r *DetectionRepository) GetPlateHistory(plateText string) ([]model.DetectionRecord, error) {
	rows, err := r.db.Conn().Query(`
		SELECT id, plate_text, confidence, captured_at, image_path
		FROM detections WHERE plate_text = ?
		ORDER BY captured_at DESC
	`, model.NormalizePlate(plateText))
	if err != nil {
		return nil, fmt.Errorf("failed to query plate history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetRecent retrieves the most recent detections, newest first.
func (r *DetectionRepository) GetRecent(limit int) ([]model.DetectionRecord, error) {
	rows, err := r.db.Conn().Query(`
		SELECT id, plate_text, confidence, captured_at, image_path
		FROM detections
		ORDER BY captured_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent detections: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetStats returns aggregate statistics about stored detections.
func (r *DetectionRepository) GetStats() (*repository.Stats, error) {
	stats := &repository.Stats{TopPlates: make(map[string]int)}

	err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&stats.TotalDetections)
	if err != nil {
		return nil, fmt.Errorf("failed to count detections: %w", err)
	}

	err = r.db.Conn().QueryRow(`SELECT COUNT(DISTINCT plate_text) FROM detections`).Scan(&stats.UniquePlates)
	if err != nil {
		return nil, fmt.Errorf("failed to count unique plates: %w", err)
	}

	rows, err := r.db.Conn().Query(`
		SELECT plate_text, COUNT(*) as cnt
		FROM detections
		GROUP BY plate_text
		ORDER BY cnt DESC
		LIMIT ?
	`, topPlatesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top plates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var plate string
		var count int
		if err := rows.Scan(&plate, &count); err != nil {
			return nil, fmt.Errorf("failed to scan top plate: %w", err)
		}
		stats.TopPlates[plate] = count
	}

	return stats, rows.Err()
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRecords(rows rowScanner) ([]model.DetectionRecord, error) {
	var records []model.DetectionRecord
	for rows.Next() {
		var rec model.DetectionRecord
		if err := rows.Scan(&rec.ID, &rec.PlateText, &rec.Confidence, &rec.CapturedAt, &rec.ImagePath); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
