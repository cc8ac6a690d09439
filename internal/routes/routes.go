package routes

import (
	"net/http"

	"go.uber.org/zap"

	"alprd/internal/feed"
	"alprd/internal/handlers"
	"alprd/internal/pipeline"
	"alprd/internal/repository"
)

// SetupRoutes registers the diagnostic API endpoints.
func SetupRoutes(reader repository.DetectionReader, p *pipeline.DetectionPipeline, hub *feed.Hub, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/detections", handlers.GetRecentDetectionsHandler(reader, logger))
	mux.HandleFunc("/api/plates/history", handlers.GetPlateHistoryHandler(reader, logger))
	mux.HandleFunc("/api/stats", handlers.GetStatsHandler(reader, p, logger))
	mux.HandleFunc("/api/feed", handlers.FeedWebsocketHandler(hub, logger))

	return mux
}
