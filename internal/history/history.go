// Package history provides SQLite-based persistence for accounts, chat
// sessions and chat messages. Deleting an account cascades to its sessions
// and messages; deleting a session cascades to its messages.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"

	"github.com/comigor/sonar-go/internal/logger"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE,
		display_name TEXT,
		photo_url TEXT,
		provider TEXT NOT NULL DEFAULT 'email',
		external_uid TEXT UNIQUE NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT 'New Chat',
		model TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
		model TEXT,
		tokens_used INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_id ON chat_sessions(user_id);`,
	`CREATE INDEX IF NOT EXISTS idx_chat_sessions_created_at ON chat_sessions(created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session_id ON chat_messages(session_id);`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_created_at ON chat_messages(created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_users_external_uid ON users(external_uid);`,
}

// Store is a handle on the history database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// one connection keeps pragmas and :memory: databases consistent
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.L.Info("sqlite history DB initialized", "path", path)
	return s, nil
}

// Init creates the tables and indexes if they don't exist.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply history schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertAccount finds the account by ExternalUID, refreshing its profile, or
// creates it.
func (s *Store) UpsertAccount(ctx context.Context, a Account) (Account, error) {
	if a.ExternalUID == "" {
		return Account{}, errors.New("account external uid is required")
	}
	if a.Provider == "" {
		a.Provider = "email"
	}
	now := s.now().UTC()

	var existing Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE external_uid = ?;`, a.ExternalUID,
	).Scan(&existing.ID, &existing.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		a.ID = uuid.NewString()
		a.CreatedAt, a.UpdatedAt = now, now
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO users (id, email, display_name, photo_url, provider, external_uid, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?);`,
			a.ID, nullable(a.Email), a.DisplayName, a.PhotoURL, a.Provider, a.ExternalUID, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return Account{}, fmt.Errorf("insert account: %w", err)
		}
		return a, nil
	case err != nil:
		return Account{}, fmt.Errorf("lookup account: %w", err)
	}

	a.ID = existing.ID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = now
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET email = ?, display_name = ?, photo_url = ?, provider = ?, updated_at = ? WHERE id = ?;`,
		nullable(a.Email), a.DisplayName, a.PhotoURL, a.Provider, a.UpdatedAt, a.ID)
	if err != nil {
		return Account{}, fmt.Errorf("update account: %w", err)
	}
	return a, nil
}

// FindAccount returns the account linked to externalUID.
func (s *Store) FindAccount(ctx context.Context, externalUID string) (Account, error) {
	var a Account
	var email, name, photo sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, photo_url, provider, external_uid, created_at, updated_at FROM users WHERE external_uid = ?;`, externalUID,
	).Scan(&a.ID, &email, &name, &photo, &a.Provider, &a.ExternalUID, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %s: %w", externalUID, ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("lookup account: %w", err)
	}
	a.Email, a.DisplayName, a.PhotoURL = email.String, name.String, photo.String
	return a, nil
}

// DeleteAccount removes the account together with its sessions and messages.
func (s *Store) DeleteAccount(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?;`, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	return nil
}

// CreateSession starts a new session for userID. An empty title becomes
// "New Chat".
func (s *Store) CreateSession(ctx context.Context, userID, title, model string) (Session, error) {
	if title == "" {
		title = defaultTitle
	}
	now := s.now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, title, model, created_at, updated_at) VALUES (?,?,?,?,?,?);`,
		sess.ID, sess.UserID, sess.Title, sess.Model, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// DeleteSession removes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?;`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// GetSession returns the session sessionID if it belongs to userID. Sessions
// of other accounts are reported as ErrNotFound.
func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, COALESCE(model, ''), created_at, updated_at FROM chat_sessions WHERE id = ? AND user_id = ?;`, sessionID, userID,
	).Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Model, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	return sess, nil
}

// ListSessions returns the sessions of userID, most recent first.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, COALESCE(model, ''), created_at, updated_at FROM chat_sessions WHERE user_id = ? ORDER BY created_at DESC, id DESC;`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Model, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// AppendMessage stores msg and bumps the session's updated_at.
func (s *Store) AppendMessage(ctx context.Context, msg Message) error {
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, user_id, content, role, model, tokens_used, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?);`,
		msg.ID, msg.SessionID, msg.UserID, msg.Content, msg.Role, msg.Model, msg.TokensUsed, msg.CreatedAt.UTC(), msg.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = ? WHERE id = ?;`, s.now().UTC(), msg.SessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

// ListMessages returns all messages of a session in chronological order.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, content, role, COALESCE(model, ''), tokens_used, created_at, updated_at FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC, id ASC;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Content, &m.Role, &m.Model, &m.TokensUsed, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
