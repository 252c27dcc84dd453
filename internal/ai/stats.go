package ai

import (
	"sync"
	"time"
)

// Outcome classifies a finished dispatch attempt for accounting.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeRateLimited Outcome = "rate-limited"
	OutcomeError       Outcome = "error"
	OutcomeMalformed   Outcome = "malformed-response"
)

// ProviderStats is a point-in-time copy of one provider's counters.
type ProviderStats struct {
	ProviderID         string        `json:"provider_id"`
	Attempts           int64         `json:"attempts"`
	Successes          int64         `json:"successes"`
	Timeouts           int64         `json:"timeouts"`
	RateLimited        int64         `json:"rate_limited"`
	Errors             int64         `json:"errors"`
	MalformedResponses int64         `json:"malformed_responses"`
	AvgLatency         time.Duration `json:"avg_latency"`
	LastUsed           time.Time     `json:"last_used"`
}

// Clock injects time into the tracker so rate-window tests do not sleep.
type Clock func() time.Time

// Tracker accumulates per-provider counters and enforces the sliding
// one-minute rate budget the dispatcher consults before attempting a
// provider. All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	clock   Clock
	stats   map[string]*ProviderStats
	windows map[string][]time.Time
	limits  map[string]int
}

func NewTracker(set *DescriptorSet, clock Clock) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	tracker := &Tracker{
		clock:   clock,
		stats:   make(map[string]*ProviderStats),
		windows: make(map[string][]time.Time),
		limits:  make(map[string]int),
	}
	if set != nil {
		for _, descriptor := range set.Descriptors() {
			tracker.limits[descriptor.ID] = descriptor.RequestsPerMin
		}
	}
	return tracker
}

// RecordAttempt accounts one finished attempt and stamps the rate window.
func (t *Tracker) RecordAttempt(providerID string, outcome Outcome, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	entry := t.stats[providerID]
	if entry == nil {
		entry = &ProviderStats{ProviderID: providerID}
		t.stats[providerID] = entry
	}

	entry.Attempts++
	entry.LastUsed = now
	switch outcome {
	case OutcomeSuccess:
		entry.Successes++
	case OutcomeTimeout:
		entry.Timeouts++
	case OutcomeRateLimited:
		entry.RateLimited++
	case OutcomeMalformed:
		entry.MalformedResponses++
	default:
		entry.Errors++
	}

	// Rolling average, no full latency history kept.
	entry.AvgLatency += (latency - entry.AvgLatency) / time.Duration(entry.Attempts)

	t.windows[providerID] = append(t.pruneWindow(providerID, now), now)
}

// IsRateBudgetAvailable reports whether the provider is under its
// requests-per-minute limit right now. A zero limit means unlimited.
func (t *Tracker) IsRateBudgetAvailable(providerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	limit := t.limits[providerID]
	if limit <= 0 {
		return true
	}
	window := t.pruneWindow(providerID, t.clock())
	t.windows[providerID] = window
	return len(window) < limit
}

// pruneWindow drops timestamps older than one minute. Caller holds the lock.
func (t *Tracker) pruneWindow(providerID string, now time.Time) []time.Time {
	window := t.windows[providerID]
	cutoff := now.Add(-time.Minute)
	kept := window[:0]
	for _, stamp := range window {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	return kept
}

// Snapshot returns a copy of all counters, keyed by provider id.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]ProviderStats, len(t.stats))
	for id, entry := range t.stats {
		out[id] = *entry
	}
	return out
}
