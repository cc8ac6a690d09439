package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alprd/internal/config"
	"alprd/internal/repository"
)

// runWriter starts a writer over the given queue, feeds it the enqueued
// items, and waits for the drain loop to finish.
func runWriter(t *testing.T, w *StorageWriter, q *Queue) {
	t.Helper()
	require.NoError(t, w.start())
	q.Close()
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not drain in time")
	}
}

func newTestWriter(cfg *config.Config, sink *fakeSink, opener StoreOpener) (*StorageWriter, *Queue, *counters) {
	q := NewQueue(cfg.QueueCapacity, cfg.Backpressure)
	c := &counters{}
	w := newStorageWriter(q, sink, opener, cfg, c, nil, nopLogger())
	return w, q, c
}

func TestStorageWriter_WritesImageThenRow(t *testing.T) {
	sink := newFakeSink()
	store := &fakeStore{sink: sink} // Insert fails if the image is missing
	w, q, c := newTestWriter(testConfig(), sink, singleStoreOpener(store))

	capturedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	q.Enqueue(QueuedWrite{Detection: testDetection("ABC123", 0.93, capturedAt)})
	runWriter(t, w, q)

	records := store.all()
	require.Len(t, records, 1)
	assert.Equal(t, "ABC123", records[0].PlateText)
	assert.Equal(t, 0.93, records[0].Confidence)
	assert.Equal(t, "/crops/ABC123_1709294400000.jpg", records[0].ImagePath)
	assert.EqualValues(t, 1, c.written.Load())
}

func TestStorageWriter_RetriesThenSucceeds(t *testing.T) {
	sink := newFakeSink()
	store := &fakeStore{failures: 2} // fail twice, then succeed
	cfg := testConfig()
	cfg.MaxWriteRetries = 3
	w, q, c := newTestWriter(cfg, sink, singleStoreOpener(store))

	q.Enqueue(QueuedWrite{Detection: testDetection("ABC123", 0.9, time.Now())})
	runWriter(t, w, q)

	assert.Equal(t, 1, store.count(), "exactly one row, no duplicates")
	assert.EqualValues(t, 2, c.writeRetries.Load())
	assert.EqualValues(t, 0, c.permanentFailures.Load())
}

func TestStorageWriter_ImageFailureSkipsInsert(t *testing.T) {
	cfg := testConfig()
	sink := newFakeSink()
	sink.failures = cfg.MaxWriteRetries // every attempt fails
	store := &fakeStore{}
	w, q, c := newTestWriter(cfg, sink, singleStoreOpener(store))

	q.Enqueue(QueuedWrite{Detection: testDetection("ABC123", 0.9, time.Now())})
	runWriter(t, w, q)

	assert.Equal(t, 0, store.count(), "no dangling row for a missing image")
	assert.EqualValues(t, 1, c.permanentFailures.Load())
}

func TestStorageWriter_PermanentFailureDoesNotStopDraining(t *testing.T) {
	cfg := testConfig()
	sink := newFakeSink()
	sink.failures = cfg.MaxWriteRetries // first item's image writes all fail
	store := &fakeStore{}
	w, q, c := newTestWriter(cfg, sink, singleStoreOpener(store))

	q.Enqueue(QueuedWrite{Detection: testDetection("ABC123", 0.9, time.Now())})
	q.Enqueue(QueuedWrite{Detection: testDetection("XYZ999", 0.8, time.Now())})
	runWriter(t, w, q)

	require.Equal(t, 1, store.count())
	assert.Equal(t, "XYZ999", store.all()[0].PlateText)
	assert.EqualValues(t, 1, c.permanentFailures.Load())
}

func TestStorageWriter_ReconnectRecovers(t *testing.T) {
	sink := newFakeSink()
	broken := &fakeStore{failAll: true}
	healthy := &fakeStore{}

	opened := 0
	opener := func() (repository.DetectionStore, error) {
		opened++
		if opened == 1 {
			return broken, nil
		}
		return healthy, nil
	}

	w, q, c := newTestWriter(testConfig(), sink, opener)
	q.Enqueue(QueuedWrite{Detection: testDetection("ABC123", 0.9, time.Now())})
	runWriter(t, w, q)

	assert.Equal(t, 1, healthy.count(), "row written through the reopened store")
	assert.GreaterOrEqual(t, c.reconnects.Load(), uint64(1))
	assert.False(t, w.Degraded())
}

func TestStorageWriter_EntersDegradedMode(t *testing.T) {
	sink := newFakeSink()
	broken := &fakeStore{failAll: true}

	opened := 0
	opener := func() (repository.DetectionStore, error) {
		opened++
		if opened == 1 {
			return broken, nil
		}
		return nil, errors.New("injected open failure")
	}

	cfg := testConfig()
	w, q, c := newTestWriter(cfg, sink, opener)
	q.Enqueue(QueuedWrite{Detection: testDetection("ABC123", 0.9, time.Now())})
	q.Enqueue(QueuedWrite{Detection: testDetection("XYZ999", 0.8, time.Now())})
	q.Enqueue(QueuedWrite{Detection: testDetection("DEF456", 0.7, time.Now())})
	runWriter(t, w, q)

	assert.True(t, w.Degraded())
	assert.EqualValues(t, cfg.MaxReconnectAttempts, c.reconnects.Load())
	assert.EqualValues(t, 1, c.permanentFailures.Load(), "item that hit the fault")
	assert.EqualValues(t, 2, c.degradedDropped.Load(), "items after the fault are counted, not written")
}
