package pipeline

import "sync/atomic"

// Stats is a point-in-time snapshot of the pipeline's monotonic counters.
type Stats struct {
	Observed          uint64 `json:"observed"`
	Suppressed        uint64 `json:"suppressed"`
	BelowConfidence   uint64 `json:"below_confidence"`
	Enqueued          uint64 `json:"enqueued"`
	OverflowDropped   uint64 `json:"overflow_dropped"`
	EvictedOldest     uint64 `json:"evicted_oldest"`
	Written           uint64 `json:"written"`
	WriteRetries      uint64 `json:"write_retries"`
	PermanentFailures uint64 `json:"permanent_failures"`
	Reconnects        uint64 `json:"reconnects"`
	DegradedDropped   uint64 `json:"degraded_dropped"`
	LostOnShutdown    uint64 `json:"lost_on_shutdown"`
}

// counters holds the live atomic counters shared by the producer path and
// the writer goroutine.
type counters struct {
	observed          atomic.Uint64
	suppressed        atomic.Uint64
	belowConfidence   atomic.Uint64
	enqueued          atomic.Uint64
	overflowDropped   atomic.Uint64
	evictedOldest     atomic.Uint64
	written           atomic.Uint64
	writeRetries      atomic.Uint64
	permanentFailures atomic.Uint64
	reconnects        atomic.Uint64
	degradedDropped   atomic.Uint64
	lostOnShutdown    atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Observed:          c.observed.Load(),
		Suppressed:        c.suppressed.Load(),
		BelowConfidence:   c.belowConfidence.Load(),
		Enqueued:          c.enqueued.Load(),
		OverflowDropped:   c.overflowDropped.Load(),
		EvictedOldest:     c.evictedOldest.Load(),
		Written:           c.written.Load(),
		WriteRetries:      c.writeRetries.Load(),
		PermanentFailures: c.permanentFailures.Load(),
		Reconnects:        c.reconnects.Load(),
		DegradedDropped:   c.degradedDropped.Load(),
		LostOnShutdown:    c.lostOnShutdown.Load(),
	}
}
