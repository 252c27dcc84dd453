package service

import (
	"context"

	"github.com/llmgram/llmgram/internal/ai"
	"github.com/llmgram/llmgram/internal/history"
	"github.com/llmgram/llmgram/internal/logger"
)

// ChatService is the application-facing surface of the dispatch core. Callers
// hand it raw user text and get back a normalized reply; tier selection,
// failover and history bookkeeping stay behind it.
type ChatService struct {
	dispatcher  *ai.Dispatcher
	store       *history.Store
	stats       *ai.Tracker
	defaultTier string
	logger      logger.Logger
}

func NewChatService(
	dispatcher *ai.Dispatcher,
	store *history.Store,
	stats *ai.Tracker,
	defaultTier string,
	log logger.Logger,
) *ChatService {
	return &ChatService{
		dispatcher:  dispatcher,
		store:       store,
		stats:       stats,
		defaultTier: defaultTier,
		logger:      log,
	}
}

// Ask dispatches text on the default tier.
func (s *ChatService) Ask(ctx context.Context, conversationKey, text string) (*ai.NormalizedResult, error) {
	return s.Dispatch(ctx, ai.DispatchRequest{
		ConversationKey: conversationKey,
		Tier:            s.defaultTier,
		Text:            text,
	})
}

// Dispatch runs one request through the failover engine. An empty tier falls
// back to the configured default.
func (s *ChatService) Dispatch(ctx context.Context, req ai.DispatchRequest) (*ai.NormalizedResult, error) {
	if req.Tier == "" {
		req.Tier = s.defaultTier
	}
	return s.dispatcher.Dispatch(ctx, req)
}

// HistorySnapshot returns the current turns for a conversation, oldest first.
func (s *ChatService) HistorySnapshot(conversationKey string) []history.ChatTurn {
	return s.store.History(conversationKey)
}

// ResetHistory wipes a conversation, including its persisted turns.
func (s *ChatService) ResetHistory(conversationKey string) {
	s.store.Clear(conversationKey)
	s.logger.WithField("conversation", conversationKey).Info("Conversation history reset")
}

// StatsSnapshot returns per-provider usage counters.
func (s *ChatService) StatsSnapshot() map[string]ai.ProviderStats {
	return s.stats.Snapshot()
}

// DisabledProviders reports providers pulled from rotation this run.
func (s *ChatService) DisabledProviders() map[string]string {
	return s.dispatcher.DisabledProviders()
}
