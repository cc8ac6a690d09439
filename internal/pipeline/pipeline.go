package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"alprd/internal/config"
	"alprd/internal/model"
	"alprd/internal/observability/metrics"
	"alprd/internal/storage"
)

type state int32

const (
	stateCreated state = iota
	stateRunning
	stateStopping
	stateStopped
)

// Outcome reports what the pipeline did with an observed detection.
type Outcome int

const (
	// OutcomeAccepted means the detection was admitted for persistence.
	OutcomeAccepted Outcome = iota
	// OutcomeSuppressed means the detection is plate chatter inside the
	// cooldown window. Not an error.
	OutcomeSuppressed
	// OutcomeBelowConfidence means the detection failed the optional
	// confidence filter.
	OutcomeBelowConfidence
	// OutcomeQueueFull means the queue rejected the write (drop-new policy).
	OutcomeQueueFull
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeSuppressed:
		return "suppressed"
	case OutcomeBelowConfidence:
		return "below_confidence"
	case OutcomeQueueFull:
		return "queue_full"
	}
	return "unknown"
}

// DetectionPipeline wires the cooldown tracker, the persistence queue, and
// the storage writer together behind a single Observe entry point.
type DetectionPipeline struct {
	cfg      *config.Config
	cooldown *CooldownTracker
	queue    *Queue
	writer   *StorageWriter
	counters counters
	metrics  *metrics.PipelineMetrics
	logger   *zap.Logger

	state atomic.Int32
	now   func() time.Time // overridden in tests
}

// New builds a pipeline. sink persists plate crops; openStore opens the
// detection store (invoked at Start and on reconnects). m may be nil.
func New(cfg *config.Config, sink storage.ImageSink, openStore StoreOpener, logger *zap.Logger, m *metrics.PipelineMetrics) *DetectionPipeline {
	p := &DetectionPipeline{
		cfg:      cfg,
		cooldown: NewCooldownTracker(cfg.CooldownWindow, cfg.CooldownEvictFactor),
		queue:    NewQueue(cfg.QueueCapacity, cfg.Backpressure),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
	p.writer = newStorageWriter(p.queue, sink, openStore, cfg, &p.counters, m, logger)
	return p
}

// SetOnWritten registers a callback invoked by the writer goroutine after
// each durable write. Must be called before Start.
func (p *DetectionPipeline) SetOnWritten(fn func(*model.DetectionRecord)) {
	p.writer.onWritten = fn
}

// Start opens the storage handle and launches the writer. Valid exactly once.
func (p *DetectionPipeline) Start() error {
	if !p.state.CompareAndSwap(int32(stateCreated), int32(stateRunning)) {
		return ErrAlreadyStarted
	}

	if err := p.writer.start(); err != nil {
		p.state.Store(int32(stateCreated))
		return err
	}

	p.logger.Info("detection pipeline started",
		zap.Duration("cooldown_window", p.cfg.CooldownWindow),
		zap.Int("queue_capacity", p.cfg.QueueCapacity),
		zap.String("backpressure", string(p.cfg.Backpressure)),
	)
	return nil
}

// Observe is the single entry point for the recognition stage. It decides
// accept/suppress and hands accepted detections to the queue; it never
// blocks on storage.
func (p *DetectionPipeline) Observe(det model.Detection) (Outcome, error) {
	if state(p.state.Load()) != stateRunning {
		return 0, ErrNotRunning
	}

	ctx := context.Background()
	p.counters.observed.Add(1)

	det.PlateText = model.NormalizePlate(det.PlateText)
	if det.CapturedAt.IsZero() {
		det.CapturedAt = p.now()
	}

	if det.Confidence < p.cfg.MinConfidence {
		p.counters.belowConfidence.Add(1)
		p.metrics.RecordObserved(ctx, OutcomeBelowConfidence.String())
		return OutcomeBelowConfidence, nil
	}

	if !p.cooldown.ShouldLog(det.PlateText, det.CapturedAt) {
		p.counters.suppressed.Add(1)
		p.metrics.RecordObserved(ctx, OutcomeSuppressed.String())
		return OutcomeSuppressed, nil
	}

	switch p.queue.Enqueue(QueuedWrite{Detection: det}) {
	case EnqueueAccepted:
		p.counters.enqueued.Add(1)
		p.metrics.RecordObserved(ctx, OutcomeAccepted.String())
		return OutcomeAccepted, nil
	case EnqueueEvictedOldest:
		p.counters.enqueued.Add(1)
		p.counters.evictedOldest.Add(1)
		p.metrics.RecordObserved(ctx, OutcomeAccepted.String())
		p.metrics.RecordWriteDropped(ctx, "evicted")
		return OutcomeAccepted, nil
	case EnqueueDroppedNew:
		p.counters.overflowDropped.Add(1)
		p.metrics.RecordObserved(ctx, OutcomeQueueFull.String())
		return OutcomeQueueFull, nil
	default: // EnqueueClosed: raced with Stop
		return 0, ErrNotRunning
	}
}

// Stop drains the queue within the configured grace period, then closes the
// storage handle regardless so shutdown is always bounded. Writes still
// queued after the grace period are abandoned and counted.
func (p *DetectionPipeline) Stop() error {
	if !p.state.CompareAndSwap(int32(stateRunning), int32(stateStopping)) {
		return ErrNotRunning
	}

	p.queue.Close()

	if !p.waitWriter() {
		lost := p.queue.DiscardPending()
		if lost > 0 {
			p.counters.lostOnShutdown.Add(uint64(lost))
			for i := 0; i < lost; i++ {
				p.metrics.RecordWriteDropped(context.Background(), "shutdown")
			}
			p.logger.Warn("abandoned queued writes on shutdown", zap.Int("count", lost))
		}
		// The writer may be wedged inside a storage call; close the handle
		// out from under it so the process can still exit.
		if !p.waitWriter() {
			p.writer.closeStore()
		}
	}

	p.state.Store(int32(stateStopped))
	p.logger.Info("detection pipeline stopped")
	return nil
}

func (p *DetectionPipeline) waitWriter() bool {
	select {
	case <-p.writer.done:
		return true
	case <-time.After(p.cfg.ShutdownDrainTimeout):
		return false
	}
}

// Stats returns a snapshot of the pipeline's monotonic counters.
func (p *DetectionPipeline) Stats() Stats {
	return p.counters.snapshot()
}

// Degraded reports whether the writer has entered degraded mode.
func (p *DetectionPipeline) Degraded() bool {
	return p.writer.Degraded()
}

// QueueDepth returns the number of writes waiting for the writer.
func (p *DetectionPipeline) QueueDepth() int {
	return p.queue.Len()
}
