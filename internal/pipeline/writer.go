package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"alprd/internal/config"
	"alprd/internal/model"
	"alprd/internal/observability/metrics"
	"alprd/internal/repository"
	"alprd/internal/storage"
)

// StoreOpener opens a fresh detection store. The writer calls it once at
// startup and again on reconnect attempts.
type StoreOpener func() (repository.DetectionStore, error)

// StorageWriter drains the persistence queue on a single goroutine. It is
// the only component that touches the store connection, so the connection
// needs no locking of its own. All storage failures are handled here: retry,
// count, continue — never kill the loop.
type StorageWriter struct {
	queue     *Queue
	sink      storage.ImageSink
	openStore StoreOpener
	cfg       *config.Config
	counters  *counters
	metrics   *metrics.PipelineMetrics
	logger    *zap.Logger

	// onWritten, if set, is invoked after each durable write.
	onWritten func(*model.DetectionRecord)

	storeMu   sync.Mutex
	store     repository.DetectionStore
	degraded  atomic.Bool
	done      chan struct{}
	startOnce sync.Once
}

func newStorageWriter(queue *Queue, sink storage.ImageSink, openStore StoreOpener, cfg *config.Config, counters *counters, m *metrics.PipelineMetrics, logger *zap.Logger) *StorageWriter {
	return &StorageWriter{
		queue:     queue,
		sink:      sink,
		openStore: openStore,
		cfg:       cfg,
		counters:  counters,
		metrics:   m,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// start opens the store and launches the drain loop. The connection stays
// open for the process lifetime.
func (w *StorageWriter) start() error {
	store, err := w.openStore()
	if err != nil {
		return err
	}
	w.storeMu.Lock()
	w.store = store
	w.storeMu.Unlock()

	w.startOnce.Do(func() {
		go w.run()
	})
	return nil
}

func (w *StorageWriter) run() {
	defer close(w.done)
	defer w.closeStore()

	for {
		qw, ok := w.queue.DequeueBlocking()
		if !ok {
			return
		}
		w.process(qw)
	}
}

func (w *StorageWriter) process(qw QueuedWrite) {
	ctx := context.Background()

	if w.degraded.Load() {
		w.counters.degradedDropped.Add(1)
		w.metrics.RecordWriteDropped(ctx, "degraded")
		return
	}

	det := qw.Detection

	// Image first: a row must never point at a missing file.
	imagePath, err := w.writeImage(ctx, det)
	if err != nil {
		w.logger.Error("dropping detection after failed image write",
			zap.String("plate", det.PlateText),
			zap.Error(err),
		)
		w.counters.permanentFailures.Add(1)
		w.metrics.RecordWriteDropped(ctx, "image_write")
		return
	}

	rec := &model.DetectionRecord{
		PlateText:  det.PlateText,
		Confidence: model.RoundConfidence(det.Confidence),
		CapturedAt: det.CapturedAt,
		ImagePath:  imagePath,
	}

	if err := w.insertRecord(ctx, rec); err != nil {
		w.logger.Error("dropping detection after failed insert",
			zap.String("plate", det.PlateText),
			zap.Error(err),
		)
		w.counters.permanentFailures.Add(1)
		w.metrics.RecordWriteDropped(ctx, "insert")
		return
	}

	w.counters.written.Add(1)
	w.metrics.RecordWriteCompleted(ctx)
	w.logger.Info("logged detection",
		zap.String("plate", rec.PlateText),
		zap.Float64("confidence", rec.Confidence),
		zap.String("image_path", rec.ImagePath),
	)

	if w.onWritten != nil {
		w.onWritten(rec)
	}
}

// writeImage stores the plate crop, retrying transient failures with
// backoff.
func (w *StorageWriter) writeImage(ctx context.Context, det model.Detection) (string, error) {
	filename := storage.CropFilename(det.PlateText, det.CapturedAt)

	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxWriteRetries; attempt++ {
		path, err := w.sink.Write(filename, det.Image)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if attempt < w.cfg.MaxWriteRetries {
			w.counters.writeRetries.Add(1)
			w.metrics.RecordWriteRetry(ctx)
			time.Sleep(time.Duration(attempt) * w.cfg.RetryBackoff)
		}
	}
	return "", lastErr
}

// insertRecord inserts the detection row, retrying transient failures. When
// retries exhaust it assumes the connection may be unusable and tries to
// reconnect before giving up on this record.
func (w *StorageWriter) insertRecord(ctx context.Context, rec *model.DetectionRecord) error {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxWriteRetries; attempt++ {
		store := w.currentStore()
		if store == nil {
			return errStoreClosed
		}
		_, err := store.Insert(rec)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt < w.cfg.MaxWriteRetries {
			w.counters.writeRetries.Add(1)
			w.metrics.RecordWriteRetry(ctx)
			time.Sleep(time.Duration(attempt) * w.cfg.RetryBackoff)
		}
	}

	if w.reconnect(ctx) {
		store := w.currentStore()
		if store == nil {
			return errStoreClosed
		}
		_, err := store.Insert(rec)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// reconnect reopens the store with bounded attempts. Exhausting them flips
// the writer into degraded mode: subsequent writes are counted and dropped,
// but the loop keeps draining so frame acquisition is never affected.
func (w *StorageWriter) reconnect(ctx context.Context) bool {
	for attempt := 1; attempt <= w.cfg.MaxReconnectAttempts; attempt++ {
		w.counters.reconnects.Add(1)
		w.closeStore()

		store, err := w.openStore()
		if err == nil {
			w.storeMu.Lock()
			w.store = store
			w.storeMu.Unlock()
			w.metrics.RecordStoreReconnect(ctx, true)
			w.logger.Warn("reopened detection store", zap.Int("attempt", attempt))
			return true
		}

		w.metrics.RecordStoreReconnect(ctx, false)
		w.logger.Error("failed to reopen detection store",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		time.Sleep(time.Duration(attempt) * w.cfg.RetryBackoff)
	}

	w.degraded.Store(true)
	w.logger.Error("detection store unusable, entering degraded mode")
	return false
}

func (w *StorageWriter) currentStore() repository.DetectionStore {
	w.storeMu.Lock()
	defer w.storeMu.Unlock()
	return w.store
}

// closeStore closes the store exactly once per open. Safe to call from the
// shutdown path while the writer goroutine is still running.
func (w *StorageWriter) closeStore() {
	w.storeMu.Lock()
	defer w.storeMu.Unlock()
	if w.store != nil {
		if err := w.store.Close(); err != nil {
			w.logger.Error("failed to close detection store", zap.Error(err))
		}
		w.store = nil
	}
}

// Degraded reports whether the writer has given up on storage.
func (w *StorageWriter) Degraded() bool {
	return w.degraded.Load()
}
