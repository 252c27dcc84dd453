package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgram/llmgram/internal/config"
	"github.com/llmgram/llmgram/internal/logger"
)

func TestNewDescriptorSet(t *testing.T) {
	log := logger.NewTestLogger()

	t.Run("applies default timeout and display name", func(t *testing.T) {
		set, err := NewDescriptorSet([]config.ProviderConfig{testProvider("alpha", 1)}, nil, 42*time.Second, log)
		require.NoError(t, err)

		descriptor, err := set.Get("alpha")
		require.NoError(t, err)
		assert.Equal(t, 42*time.Second, descriptor.Timeout)
		assert.Equal(t, "alpha", descriptor.DisplayName)
	})

	t.Run("explicit timeout wins over default", func(t *testing.T) {
		provider := testProvider("alpha", 1, func(c *config.ProviderConfig) {
			c.Timeout = 5 * time.Second
		})
		set, err := NewDescriptorSet([]config.ProviderConfig{provider}, nil, 42*time.Second, log)
		require.NoError(t, err)

		descriptor, err := set.Get("alpha")
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, descriptor.Timeout)
	})

	t.Run("duplicate provider id rejected", func(t *testing.T) {
		_, err := NewDescriptorSet(
			[]config.ProviderConfig{testProvider("alpha", 1), testProvider("alpha", 2)},
			nil, time.Second, log,
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate provider id")
	})

	t.Run("tier referencing unknown provider rejected", func(t *testing.T) {
		_, err := NewDescriptorSet(
			[]config.ProviderConfig{testProvider("alpha", 1)},
			[]config.TierConfig{{Name: "fast", Providers: []string{"alpha", "ghost"}}},
			time.Second, log,
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown provider")
	})

	t.Run("tier with no enabled providers logs a warning", func(t *testing.T) {
		warnLog := logger.NewTestLogger()
		disabled := testProvider("alpha", 1, func(c *config.ProviderConfig) { c.Enabled = false })
		_, err := NewDescriptorSet(
			[]config.ProviderConfig{disabled},
			[]config.TierConfig{{Name: "fast", Providers: []string{"alpha"}}},
			time.Second, warnLog,
		)
		require.NoError(t, err)
		assert.True(t, warnLog.HasEntry("warn", "Tier has no enabled providers and is unusable"))
	})

	t.Run("unknown lookups", func(t *testing.T) {
		set, err := NewDescriptorSet([]config.ProviderConfig{testProvider("alpha", 1)}, nil, time.Second, log)
		require.NoError(t, err)

		_, err = set.Get("ghost")
		assert.ErrorIs(t, err, ErrProviderNotFound)
		_, err = set.Tier("ghost")
		assert.ErrorIs(t, err, ErrTierNotFound)
	})
}

func TestDescriptorSet_TierCandidates(t *testing.T) {
	log := logger.NewTestLogger()
	providers := []config.ProviderConfig{
		testProvider("low", 1),
		testProvider("high", 10),
		testProvider("mid-first", 5),
		testProvider("mid-second", 5),
	}
	tiers := []config.TierConfig{
		{Name: "all", Providers: []string{"low", "high", "mid-first", "mid-second"}},
	}
	set, err := NewDescriptorSet(providers, tiers, time.Second, log)
	require.NoError(t, err)

	candidates, err := set.TierCandidates("all")
	require.NoError(t, err)

	ids := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		ids = append(ids, candidate.ID)
	}
	// Descending weight, declaration order breaking ties.
	assert.Equal(t, []string{"high", "mid-first", "mid-second", "low"}, ids)
}

func TestDescriptorSet_Tiers(t *testing.T) {
	log := logger.NewTestLogger()
	set, err := NewDescriptorSet(
		[]config.ProviderConfig{testProvider("alpha", 1)},
		[]config.TierConfig{
			{Name: "fast", Providers: []string{"alpha"}},
			{Name: "smart", Providers: []string{"alpha"}},
		},
		time.Second, log,
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"fast", "smart"}, set.Tiers())
}
