package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned by GetValue when a key has no stored value.
var ErrNotFound = errors.New("key not found")

type Database interface {
	GetDB() *sql.DB

	Exec(query string, args ...any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Close() error
	ExecWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error)

	// Generic key-value storage
	GetValue(key string) ([]byte, error)
	SetValue(key string, value []byte) error

	// Conversation turn storage
	SaveTurn(conversationKey string, turn TurnRecord) error
	GetTurns(conversationKey string, limit int) ([]TurnRecord, error)
	DeleteTurns(conversationKey string) error
	TrimTurns(conversationKey string, keep int) error
}

// TurnRecord is the persisted form of one conversation turn.
type TurnRecord struct {
	Role       string
	Content    string
	MediaRef   string
	ProviderID string
	CreatedAt  time.Time
}
