package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"alprd/internal/config"
	"alprd/internal/model"
	"alprd/internal/repository"
)

func testConfig() *config.Config {
	return &config.Config{
		CooldownWindow:       5 * time.Second,
		CooldownEvictFactor:  10,
		QueueCapacity:        16,
		Backpressure:         config.DropOldest,
		MaxWriteRetries:      3,
		RetryBackoff:         time.Millisecond,
		MaxReconnectAttempts: 3,
		ShutdownDrainTimeout: 2 * time.Second,
	}
}

// fakeSink records image writes in memory and can inject failures and
// latency.
type fakeSink struct {
	mu       sync.Mutex
	files    map[string][]byte
	failures int // number of Write calls to fail before succeeding
	delay    time.Duration
}

func newFakeSink() *fakeSink {
	return &fakeSink{files: make(map[string][]byte)}
}

func (s *fakeSink) Write(filename string, data []byte) (string, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return "", errors.New("injected image write failure")
	}
	s.files[filename] = data
	return "/crops/" + filename, nil
}

func (s *fakeSink) has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for filename := range s.files {
		if "/crops/"+filename == path {
			return true
		}
	}
	return false
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// fakeStore is an in-memory repository.DetectionStore with failure
// injection. If sink is set, Insert verifies the referenced image file was
// written first.
type fakeStore struct {
	mu       sync.Mutex
	records  []model.DetectionRecord
	failures int // number of Insert calls to fail before succeeding
	failAll  bool
	closed   bool
	sink     *fakeSink
}

func (s *fakeStore) Insert(rec *model.DetectionRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("store closed")
	}
	if s.failAll {
		return 0, errors.New("injected insert failure")
	}
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("injected insert failure")
	}
	if s.sink != nil && !s.sink.has(rec.ImagePath) {
		return 0, fmt.Errorf("row references missing image file %s", rec.ImagePath)
	}
	s.records = append(s.records, *rec)
	return int64(len(s.records)), nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *fakeStore) all() []model.DetectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DetectionRecord(nil), s.records...)
}

func singleStoreOpener(store *fakeStore) StoreOpener {
	return func() (repository.DetectionStore, error) {
		return store, nil
	}
}

func testDetection(plate string, confidence float64, capturedAt time.Time) model.Detection {
	return model.Detection{
		PlateText:  plate,
		Confidence: confidence,
		CapturedAt: capturedAt,
		Image:      []byte("jpeg-bytes"),
	}
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}
