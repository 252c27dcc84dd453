package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmgram/llmgram/internal/ai"
	"github.com/llmgram/llmgram/internal/config"
	"github.com/llmgram/llmgram/internal/history"
	"github.com/llmgram/llmgram/internal/logger"
)

type stubAdapter struct {
	id   string
	body string
}

func (a *stubAdapter) ID() string { return a.id }

func (a *stubAdapter) ModelInfo() *ai.ModelInfo { return &ai.ModelInfo{ID: "stub", Provider: a.id} }

func (a *stubAdapter) Send(ctx context.Context, request ai.ProviderRequest) (*ai.RawResponse, error) {
	return &ai.RawResponse{ProviderID: a.id, StatusCode: 200, Body: []byte(a.body)}, nil
}

func newTestChatService(t *testing.T) (*ChatService, *history.Store) {
	t.Helper()
	log := logger.NewTestLogger()

	providers := []config.ProviderConfig{{
		ID:      "stub",
		Type:    ai.ProviderOpenai,
		Model:   "stub-model",
		Weight:  1,
		Enabled: true,
	}}
	tiers := []config.TierConfig{{Name: "default", Providers: []string{"stub"}}}

	set, err := ai.NewDescriptorSet(providers, tiers, 10*time.Second, log)
	require.NoError(t, err)

	registry := ai.NewAdapterRegistry()
	require.NoError(t, registry.Register(&stubAdapter{
		id:   "stub",
		body: `{"id":"cmpl-1","choices":[{"message":{"content":"stub reply"},"finish_reason":"stop"}]}`,
	}))

	store, err := history.NewStore(history.Config{MaxTurns: 10}, nil, log)
	require.NoError(t, err)

	stats := ai.NewTracker(set, nil)
	dispatcher := ai.NewDispatcher(set, registry, store, stats, config.DispatchConfig{}, "", nil, log)

	return NewChatService(dispatcher, store, stats, "default", log), store
}

func TestChatService_Ask(t *testing.T) {
	svc, _ := newTestChatService(t)

	result, err := svc.Ask(context.Background(), "chat-1", "hello")

	require.NoError(t, err)
	assert.Equal(t, "stub reply", result.Text)
	assert.Equal(t, "stub", result.ProviderID)

	turns := svc.HistorySnapshot("chat-1")
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, "stub reply", turns[1].Content)
}

func TestChatService_DispatchDefaultsTier(t *testing.T) {
	svc, _ := newTestChatService(t)

	result, err := svc.Dispatch(context.Background(), ai.DispatchRequest{
		ConversationKey: "chat-1",
		Text:            "no tier given",
	})

	require.NoError(t, err)
	assert.Equal(t, "stub reply", result.Text)
}

func TestChatService_ResetHistory(t *testing.T) {
	svc, _ := newTestChatService(t)

	_, err := svc.Ask(context.Background(), "chat-1", "hello")
	require.NoError(t, err)
	require.NotEmpty(t, svc.HistorySnapshot("chat-1"))

	svc.ResetHistory("chat-1")

	assert.Empty(t, svc.HistorySnapshot("chat-1"))
}

func TestChatService_StatsSnapshot(t *testing.T) {
	svc, _ := newTestChatService(t)

	_, err := svc.Ask(context.Background(), "chat-1", "hello")
	require.NoError(t, err)

	snapshot := svc.StatsSnapshot()
	require.Contains(t, snapshot, "stub")
	assert.Equal(t, int64(1), snapshot["stub"].Attempts)
	assert.Equal(t, int64(1), snapshot["stub"].Successes)
	assert.Empty(t, svc.DisabledProviders())
}
