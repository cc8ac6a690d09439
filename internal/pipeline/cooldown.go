package pipeline

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	cooldownShardCount = 16
	// evictEvery bounds how often a shard scans for stale entries.
	evictEvery = 128
)

type cooldownShard struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	accepts  int
}

// CooldownTracker suppresses plate chatter: repeated sightings of the same
// plate inside the cooldown window. State is sharded by plate hash so
// distinct plates don't contend on one lock.
type CooldownTracker struct {
	window   time.Duration
	evictAge time.Duration // zero disables eviction
	shards   [cooldownShardCount]*cooldownShard
}

// NewCooldownTracker creates a tracker with the given window. Entries idle
// longer than evictFactor*window are purged best-effort; evictFactor <= 0
// disables eviction.
func NewCooldownTracker(window time.Duration, evictFactor int) *CooldownTracker {
	t := &CooldownTracker{window: window}
	if evictFactor > 0 {
		t.evictAge = time.Duration(evictFactor) * window
	}
	for i := range t.shards {
		t.shards[i] = &cooldownShard{lastSeen: make(map[string]time.Time)}
	}
	return t
}

// ShouldLog reports whether a sighting of plateText at now should be
// persisted, and records now as the last accepted sighting if so. The
// read-decide-update sequence is a single critical section per shard, so two
// near-simultaneous sightings of one plate can never both be accepted.
func (t *CooldownTracker) ShouldLog(plateText string, now time.Time) bool {
	shard := t.shard(plateText)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if last, ok := shard.lastSeen[plateText]; ok && now.Sub(last) < t.window {
		return false
	}

	shard.lastSeen[plateText] = now
	shard.accepts++
	if t.evictAge > 0 && shard.accepts%evictEvery == 0 {
		shard.evictStale(now, t.evictAge)
	}
	return true
}

// Len returns the number of tracked plates across all shards.
func (t *CooldownTracker) Len() int {
	n := 0
	for _, shard := range t.shards {
		shard.mu.Lock()
		n += len(shard.lastSeen)
		shard.mu.Unlock()
	}
	return n
}

func (t *CooldownTracker) shard(plateText string) *cooldownShard {
	h := fnv.New32a()
	h.Write([]byte(plateText))
	return t.shards[h.Sum32()%cooldownShardCount]
}

// evictStale drops entries older than maxAge. Caller holds the shard lock.
func (s *cooldownShard) evictStale(now time.Time, maxAge time.Duration) {
	for plate, last := range s.lastSeen {
		if now.Sub(last) > maxAge {
			delete(s.lastSeen, plate)
		}
	}
}
