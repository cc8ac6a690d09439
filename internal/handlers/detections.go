package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"alprd/internal/pipeline"
	"alprd/internal/repository"
)

const defaultRecentLimit = 50

// GetPlateHistoryHandler returns every sighting of the requested plate,
// newest first.
func GetPlateHistoryHandler(reader repository.DetectionReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plate := r.URL.Query().Get("plate")
		if plate == "" {
			http.Error(w, "missing plate parameter", http.StatusBadRequest)
			return
		}

		records, err := reader.GetPlateHistory(plate)
		if err != nil {
			logger.Error("failed to query plate history", zap.String("plate", plate), zap.Error(err))
			http.Error(w, "failed to query plate history", http.StatusInternalServerError)
			return
		}

		writeJSON(w, records)
	}
}

// GetRecentDetectionsHandler returns the most recent detections.
func GetRecentDetectionsHandler(reader repository.DetectionReader, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		records, err := reader.GetRecent(limit)
		if err != nil {
			logger.Error("failed to query recent detections", zap.Error(err))
			http.Error(w, "failed to query recent detections", http.StatusInternalServerError)
			return
		}

		writeJSON(w, records)
	}
}

// GetStatsHandler combines storage statistics with the pipeline's counter
// snapshot.
func GetStatsHandler(reader repository.DetectionReader, p *pipeline.DetectionPipeline, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storageStats, err := reader.GetStats()
		if err != nil {
			logger.Error("failed to query storage stats", zap.Error(err))
			http.Error(w, "failed to query storage stats", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]any{
			"storage":     storageStats,
			"pipeline":    p.Stats(),
			"degraded":    p.Degraded(),
			"queue_depth": p.QueueDepth(),
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
