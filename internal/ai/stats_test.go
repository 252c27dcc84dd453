package ai

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgram/llmgram/internal/config"
	"github.com/llmgram/llmgram/internal/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(t *testing.T, providers []config.ProviderConfig, clock Clock) *Tracker {
	t.Helper()
	set, err := NewDescriptorSet(providers, nil, 10*time.Second, logger.NewTestLogger())
	require.NoError(t, err)
	return NewTracker(set, clock)
}

func TestTracker_RecordAttempt(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, []config.ProviderConfig{testProvider("alpha", 1)}, clock.Now)

	tracker.RecordAttempt("alpha", OutcomeSuccess, 100*time.Millisecond)
	tracker.RecordAttempt("alpha", OutcomeTimeout, 300*time.Millisecond)
	tracker.RecordAttempt("alpha", OutcomeRateLimited, 0)
	tracker.RecordAttempt("alpha", OutcomeError, 50*time.Millisecond)
	tracker.RecordAttempt("alpha", OutcomeMalformed, 50*time.Millisecond)

	snapshot := tracker.Snapshot()
	stats, ok := snapshot["alpha"]
	require.True(t, ok)
	assert.Equal(t, int64(5), stats.Attempts)
	assert.Equal(t, int64(1), stats.Successes)
	assert.Equal(t, int64(1), stats.Timeouts)
	assert.Equal(t, int64(1), stats.RateLimited)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(1), stats.MalformedResponses)
	assert.Equal(t, clock.Now(), stats.LastUsed)
}

func TestTracker_AvgLatency(t *testing.T) {
	clock := newFakeClock()
	tracker := newTestTracker(t, []config.ProviderConfig{testProvider("alpha", 1)}, clock.Now)

	tracker.RecordAttempt("alpha", OutcomeSuccess, 100*time.Millisecond)
	tracker.RecordAttempt("alpha", OutcomeSuccess, 300*time.Millisecond)

	snapshot := tracker.Snapshot()
	assert.Equal(t, 200*time.Millisecond, snapshot["alpha"].AvgLatency)
}

func TestTracker_RateBudget(t *testing.T) {
	providers := []config.ProviderConfig{
		testProvider("limited", 1, func(c *config.ProviderConfig) { c.RequestsPerMin = 2 }),
		testProvider("unlimited", 1),
	}

	t.Run("unlimited provider always has budget", func(t *testing.T) {
		clock := newFakeClock()
		tracker := newTestTracker(t, providers, clock.Now)
		for range 100 {
			tracker.RecordAttempt("unlimited", OutcomeSuccess, time.Millisecond)
		}
		assert.True(t, tracker.IsRateBudgetAvailable("unlimited"))
	})

	t.Run("budget exhausts at the limit", func(t *testing.T) {
		clock := newFakeClock()
		tracker := newTestTracker(t, providers, clock.Now)

		assert.True(t, tracker.IsRateBudgetAvailable("limited"))
		tracker.RecordAttempt("limited", OutcomeSuccess, time.Millisecond)
		assert.True(t, tracker.IsRateBudgetAvailable("limited"))
		tracker.RecordAttempt("limited", OutcomeError, time.Millisecond)
		assert.False(t, tracker.IsRateBudgetAvailable("limited"))
	})

	t.Run("window slides after a minute", func(t *testing.T) {
		clock := newFakeClock()
		tracker := newTestTracker(t, providers, clock.Now)

		tracker.RecordAttempt("limited", OutcomeSuccess, time.Millisecond)
		clock.Advance(30 * time.Second)
		tracker.RecordAttempt("limited", OutcomeSuccess, time.Millisecond)
		assert.False(t, tracker.IsRateBudgetAvailable("limited"))

		// The first stamp falls out after 61s, the second is still inside.
		clock.Advance(31 * time.Second)
		assert.True(t, tracker.IsRateBudgetAvailable("limited"))

		clock.Advance(31 * time.Second)
		assert.True(t, tracker.IsRateBudgetAvailable("limited"))
	})

	t.Run("unknown provider is treated as unlimited", func(t *testing.T) {
		tracker := NewTracker(nil, nil)
		assert.True(t, tracker.IsRateBudgetAvailable("ghost"))
	})
}

func TestTracker_SnapshotIsACopy(t *testing.T) {
	tracker := newTestTracker(t, []config.ProviderConfig{testProvider("alpha", 1)}, nil)
	tracker.RecordAttempt("alpha", OutcomeSuccess, time.Millisecond)

	snapshot := tracker.Snapshot()
	entry := snapshot["alpha"]
	entry.Attempts = 999
	snapshot["alpha"] = entry

	assert.Equal(t, int64(1), tracker.Snapshot()["alpha"].Attempts)
}

func TestTracker_ConcurrentRecording(t *testing.T) {
	tracker := newTestTracker(t, []config.ProviderConfig{testProvider("alpha", 1)}, nil)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				tracker.RecordAttempt("alpha", OutcomeSuccess, time.Millisecond)
				tracker.IsRateBudgetAvailable("alpha")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), tracker.Snapshot()["alpha"].Attempts)
}
