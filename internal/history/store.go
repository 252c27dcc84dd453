package history

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/llmgram/llmgram/internal/database"
	"github.com/llmgram/llmgram/internal/logger"
)

// Store keeps a bounded message log per conversation key. All mutation goes
// through AppendTurn/AppendPair/Clear; appends to the same key are serialized
// by a per-conversation mutex so a user+assistant pair is never split by a
// concurrent writer.
type Store struct {
	conversations *lru.Cache[string, *conversation]
	maxTurns      int
	db            database.Database
	persist       bool
	logger        logger.Logger
}

type conversation struct {
	mu     sync.Mutex
	turns  []ChatTurn
	loaded bool
}

type Config struct {
	MaxTurns         int
	MaxConversations int
	Persist          bool
}

func NewStore(cfg Config, db database.Database, log logger.Logger) (*Store, error) {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 40
	}
	if cfg.MaxConversations <= 0 {
		cfg.MaxConversations = 1024
	}
	// Evicted conversations survive in the database when persistence is on,
	// they are replayed on next access.
	conversations, err := lru.New[string, *conversation](cfg.MaxConversations)
	if err != nil {
		return nil, err
	}
	return &Store{
		conversations: conversations,
		maxTurns:      cfg.MaxTurns,
		db:            db,
		persist:       cfg.Persist && db != nil,
		logger:        log,
	}, nil
}

func (s *Store) conversationFor(key string) *conversation {
	if conv, ok := s.conversations.Get(key); ok {
		return conv
	}
	conv := &conversation{}
	if previous, ok, _ := s.conversations.PeekOrAdd(key, conv); ok {
		return previous
	}
	return conv
}

// load replays persisted turns on first access. Caller holds conv.mu.
func (s *Store) load(key string, conv *conversation) {
	if conv.loaded {
		return
	}
	conv.loaded = true
	if !s.persist {
		return
	}
	records, err := s.db.GetTurns(key, s.maxTurns)
	if err != nil {
		s.logger.WithError(err).WithField("conversation", key).Error("Failed to load history")
		return
	}
	for _, record := range records {
		conv.turns = append(conv.turns, ChatTurn{
			Role:       record.Role,
			Content:    record.Content,
			MediaRef:   record.MediaRef,
			ProviderID: record.ProviderID,
			Timestamp:  record.CreatedAt,
		})
	}
}

// History returns up to the configured cap of turns, oldest first. Unknown
// keys yield an empty slice, never an error.
func (s *Store) History(key string) []ChatTurn {
	conv := s.conversationFor(key)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	s.load(key, conv)
	out := make([]ChatTurn, len(conv.turns))
	copy(out, conv.turns)
	return out
}

func (s *Store) AppendTurn(key string, turn ChatTurn) {
	conv := s.conversationFor(key)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	s.load(key, conv)
	s.append(key, conv, turn)
}

// AppendPair appends a user turn and its assistant reply under one lock, so
// the pair stays adjacent relative to other writers on the same key.
func (s *Store) AppendPair(key string, user, assistant ChatTurn) {
	conv := s.conversationFor(key)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	s.load(key, conv)
	s.append(key, conv, user)
	s.append(key, conv, assistant)
}

// append assumes conv.mu is held.
func (s *Store) append(key string, conv *conversation, turn ChatTurn) {
	conv.turns = append(conv.turns, turn)
	if overflow := len(conv.turns) - s.maxTurns; overflow > 0 {
		conv.turns = append([]ChatTurn(nil), conv.turns[overflow:]...)
	}
	if s.persist {
		record := database.TurnRecord{
			Role:       turn.Role,
			Content:    turn.Content,
			MediaRef:   turn.MediaRef,
			ProviderID: turn.ProviderID,
			CreatedAt:  turn.Timestamp,
		}
		if err := s.db.SaveTurn(key, record); err != nil {
			s.logger.WithError(err).WithField("conversation", key).Error("Failed to persist turn")
			return
		}
		if err := s.db.TrimTurns(key, s.maxTurns); err != nil {
			s.logger.WithError(err).WithField("conversation", key).Error("Failed to trim persisted turns")
		}
	}
}

func (s *Store) Clear(key string) {
	conv := s.conversationFor(key)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.turns = nil
	conv.loaded = true
	if s.persist {
		if err := s.db.DeleteTurns(key); err != nil {
			s.logger.WithError(err).WithField("conversation", key).Error("Failed to delete persisted turns")
		}
	}
}

func (s *Store) MaxTurns() int {
	return s.maxTurns
}
