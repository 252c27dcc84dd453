package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/llmgram/llmgram/internal/config"
	"github.com/llmgram/llmgram/internal/logger"
)

type sqliteDB struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteDB(cfg *config.Config, log logger.Logger) (Database, error) {
	db, err := sql.Open("sqlite", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, err
	}

	log.WithFields(logger.Fields{
		"DSN": cfg.GetDatabaseDSN(),
	}).Debug("Database opened")

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	return &sqliteDB{db: db, logger: log}, nil
}

func (s *sqliteDB) GetDB() *sql.DB {
	return s.db
}

func (s *sqliteDB) Exec(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(query, args...)
}

func (s *sqliteDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *sqliteDB) Query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(query, args...)
}

func (s *sqliteDB) QueryRow(query string, args ...any) *sql.Row {
	return s.db.QueryRow(query, args...)
}

func (s *sqliteDB) Close() error {
	return s.db.Close()
}

func (s *sqliteDB) ExecWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	var err error
	for i := range 3 {
		res, err = s.ExecContext(ctx, query, args...)
		if err == nil || !strings.Contains(err.Error(), "database is locked") {
			return res, err
		}
		s.logger.WithFields(logger.Fields{
			"attempt": i + 1,
			"query":   query,
			"error":   err.Error(),
		}).Warn("Database locked, retrying...")
		time.Sleep(100 * time.Millisecond * time.Duration(i+1))
	}
	return res, err
}

func (s *sqliteDB) GetValue(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return value, err
}

func (s *sqliteDB) SetValue(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

func (s *sqliteDB) SaveTurn(conversationKey string, turn TurnRecord) error {
	_, err := s.ExecWithRetry(context.Background(), `
		INSERT INTO conversation_turns (conversation_key, role, content, media_ref, provider_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, conversationKey, turn.Role, turn.Content, turn.MediaRef, turn.ProviderID, turn.CreatedAt)
	return err
}

func (s *sqliteDB) GetTurns(conversationKey string, limit int) ([]TurnRecord, error) {
	// Newest limit-many rows, returned oldest first.
	rows, err := s.db.Query(`
		SELECT role, content, media_ref, provider_id, created_at FROM (
			SELECT id, role, content, media_ref, provider_id, created_at
			FROM conversation_turns
			WHERE conversation_key = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, conversationKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []TurnRecord
	for rows.Next() {
		var turn TurnRecord
		if err := rows.Scan(&turn.Role, &turn.Content, &turn.MediaRef, &turn.ProviderID, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return turns, nil
}

func (s *sqliteDB) DeleteTurns(conversationKey string) error {
	_, err := s.db.Exec("DELETE FROM conversation_turns WHERE conversation_key = ?", conversationKey)
	return err
}

func (s *sqliteDB) TrimTurns(conversationKey string, keep int) error {
	_, err := s.db.Exec(`
		DELETE FROM conversation_turns
		WHERE conversation_key = ? AND id NOT IN (
			SELECT id FROM conversation_turns
			WHERE conversation_key = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`, conversationKey, conversationKey, keep)
	return err
}
