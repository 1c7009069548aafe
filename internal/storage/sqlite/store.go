package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/streamchat/internal/core/domain"
	"github.com/tjfontaine/streamchat/internal/core/ports"
)

// sessionKey is the single row holding the continuity id.
const sessionKey = "x_session_id"

// Store is a SQLite implementation of SessionStore and TranscriptArchive
type Store struct {
	db *sql.DB
}

var (
	_ ports.SessionStore      = (*Store)(nil)
	_ ports.TranscriptArchive = (*Store)(nil)
)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	// Initialize schema
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS session_state (
			key TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transcript_messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			conversation_key TEXT NOT NULL,
			request_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			archived_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transcript_conversation ON transcript_messages(conversation_key, seq)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) GetSessionID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id FROM session_state WHERE key = ?`, sessionKey).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session id: %w", err)
	}
	return id, nil
}

func (s *Store) SetSessionID(ctx context.Context, sessionID string) error {
	query := `INSERT INTO session_state (key, session_id, updated_at) VALUES (?, ?, ?)
	          ON CONFLICT(key) DO UPDATE SET session_id = excluded.session_id, updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, sessionKey, sessionID, time.Now()); err != nil {
		return fmt.Errorf("failed to set session id: %w", err)
	}
	return nil
}

func (s *Store) ClearSessionID(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE key = ?`, sessionKey); err != nil {
		return fmt.Errorf("failed to clear session id: %w", err)
	}
	return nil
}

func (s *Store) AppendMessages(ctx context.Context, msgs []ports.ArchivedMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO transcript_messages
	          (id, conversation_key, request_id, role, content, status, error_message, created_at, archived_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(id) DO UPDATE SET content = excluded.content, status = excluded.status,
	          error_message = excluded.error_message, archived_at = excluded.archived_at`

	now := time.Now()
	for _, m := range msgs {
		archivedAt := m.ArchivedAt
		if archivedAt.IsZero() {
			archivedAt = now
		}
		createdAt := m.Message.CreatedAt
		if createdAt.IsZero() {
			createdAt = archivedAt
		}
		_, err := tx.ExecContext(ctx, query,
			m.Message.ID, m.ConversationKey, m.RequestID, string(m.Message.Role), m.Message.Text,
			string(m.Message.Status), m.Message.Error, createdAt, archivedAt)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}

	return tx.Commit()
}

// ListMessages returns the most recent messages of a conversation in
// chronological order. A limit of zero returns everything.
func (s *Store) ListMessages(ctx context.Context, conversationKey string, limit int) ([]ports.ArchivedMessage, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT id, conversation_key, request_id, role, content, status, error_message, created_at, archived_at
	          FROM (SELECT * FROM transcript_messages WHERE conversation_key = ? ORDER BY seq DESC LIMIT ?)
	          ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []ports.ArchivedMessage
	for rows.Next() {
		var (
			m         ports.ArchivedMessage
			requestID sql.NullString
			errMsg    sql.NullString
			role      string
			status    string
		)
		if err := rows.Scan(&m.Message.ID, &m.ConversationKey, &requestID, &role, &m.Message.Text,
			&status, &errMsg, &m.Message.CreatedAt, &m.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.RequestID = requestID.String
		m.Message.Role = domain.Role(role)
		m.Message.Status = domain.MessageStatus(status)
		m.Message.Error = errMsg.String
		m.Message.Complete = m.Message.Status != domain.MessageStatusStreaming
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
