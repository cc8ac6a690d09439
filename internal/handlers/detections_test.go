package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alprd/internal/config"
	"alprd/internal/model"
	"alprd/internal/pipeline"
	"alprd/internal/repository"
	"alprd/internal/storage"
)

type stubReader struct {
	records []model.DetectionRecord
	stats   *repository.Stats
	err     error
}

func (r *stubReader) GetPlateHistory(string) ([]model.DetectionRecord, error) {
	return r.records, r.err
}

func (r *stubReader) GetRecent(limit int) ([]model.DetectionRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	if limit < len(r.records) {
		return r.records[:limit], nil
	}
	return r.records, nil
}

func (r *stubReader) GetStats() (*repository.Stats, error) {
	return r.stats, r.err
}

type stubStore struct{}

func (stubStore) Insert(*model.DetectionRecord) (int64, error) { return 1, nil }
func (stubStore) Close() error                                 { return nil }

func testPipeline(t *testing.T) *pipeline.DetectionPipeline {
	t.Helper()
	cfg := &config.Config{
		CooldownWindow:       5 * time.Second,
		QueueCapacity:        8,
		Backpressure:         config.DropOldest,
		MaxWriteRetries:      1,
		MaxReconnectAttempts: 1,
		ShutdownDrainTimeout: time.Second,
	}
	opener := func() (repository.DetectionStore, error) { return stubStore{}, nil }
	return pipeline.New(cfg, storage.NewImageDir(t.TempDir()), opener, zap.NewNop(), nil)
}

func sampleRecords() []model.DetectionRecord {
	return []model.DetectionRecord{
		{ID: 2, PlateText: "ABC123", Confidence: 0.95, CapturedAt: time.Now(), ImagePath: "/crops/a.jpg"},
		{ID: 1, PlateText: "ABC123", Confidence: 0.90, CapturedAt: time.Now().Add(-time.Minute), ImagePath: "/crops/b.jpg"},
	}
}

func TestGetPlateHistoryHandler(t *testing.T) {
	handler := GetPlateHistoryHandler(&stubReader{records: sampleRecords()}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/plates/history?plate=ABC123", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var records []model.DetectionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)
	assert.Equal(t, "ABC123", records[0].PlateText)
}

func TestGetPlateHistoryHandler_MissingPlate(t *testing.T) {
	handler := GetPlateHistoryHandler(&stubReader{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/plates/history", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPlateHistoryHandler_QueryError(t *testing.T) {
	handler := GetPlateHistoryHandler(&stubReader{err: errors.New("disk error")}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/plates/history?plate=ABC123", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRecentDetectionsHandler_Limit(t *testing.T) {
	handler := GetRecentDetectionsHandler(&stubReader{records: sampleRecords()}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/detections?limit=1", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var records []model.DetectionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 1)
}

func TestGetStatsHandler(t *testing.T) {
	reader := &stubReader{stats: &repository.Stats{
		TotalDetections: 3,
		UniquePlates:    2,
		TopPlates:       map[string]int{"ABC123": 2, "XYZ999": 1},
	}}
	handler := GetStatsHandler(reader, testPipeline(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "storage")
	assert.Contains(t, body, "pipeline")
	assert.Contains(t, body, "degraded")
	assert.Contains(t, body, "queue_depth")
}
