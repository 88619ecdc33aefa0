package history

import (
	"context"
	"sync"

	"github.com/comigor/sonar-go/internal/chat"
	"github.com/comigor/sonar-go/internal/logger"
)

const titleRunes = 60

// SessionRecorder persists a live conversation for one account. The session
// row is created lazily on the first message, titled after it; Reset starts a
// new session for the next message.
type SessionRecorder struct {
	store   *Store
	account Account

	mu        sync.Mutex
	sessionID string
}

// NewSessionRecorder creates a recorder writing to store on behalf of account.
func NewSessionRecorder(store *Store, account Account) *SessionRecorder {
	return &SessionRecorder{store: store, account: account}
}

// Record implements chat.Recorder.
func (r *SessionRecorder) Record(ctx context.Context, msg chat.Message, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID == "" {
		sess, err := r.store.CreateSession(ctx, r.account.ID, title(msg.Content), model)
		if err != nil {
			return err
		}
		r.sessionID = sess.ID
		logger.L.Debug("history session created", "session", sess.ID, "title", sess.Title)
	}

	return r.store.AppendMessage(ctx, Message{
		ID:        msg.ID,
		SessionID: r.sessionID,
		UserID:    r.account.ID,
		Content:   msg.Content,
		Role:      string(msg.Role),
		Model:     model,
		CreatedAt: msg.CreatedAt,
	})
}

// Reset implements chat.Recorder.
func (r *SessionRecorder) Reset() {
	r.mu.Lock()
	r.sessionID = ""
	r.mu.Unlock()
}

// SessionID returns the session currently written to, if any.
func (r *SessionRecorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func title(content string) string {
	runes := []rune(content)
	if len(runes) <= titleRunes {
		return content
	}
	return string(runes[:titleRunes-1]) + "…"
}
