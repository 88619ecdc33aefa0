package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry of the conversation. Messages are never modified
// after they are appended.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a point-in-time copy of the conversation state for rendering.
type Snapshot struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model"`
	Busy        bool      `json:"busy"`
	AnimatingID string    `json:"animating_id,omitempty"`
}
