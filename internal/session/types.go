// Package session holds the conversation models and the scope-keyed store
// that backs the chat surface.
package session

import (
	"time"

	"github.com/recaphq/chatscope/internal/scope"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SourceType distinguishes attribution targets.
type SourceType string

const (
	SourceContent SourceType = "content"
	SourceWeb     SourceType = "web"
)

// Source is one attribution reference attached to an assistant message,
// pointing at either an item in the user's library or an external web result.
type Source struct {
	Type      SourceType `json:"type"`
	ContentID string     `json:"content_id,omitempty"`
	Title     string     `json:"title,omitempty"`
	URL       string     `json:"url,omitempty"`
}

// Message is a single conversation entry. Messages are immutable once
// appended; Sources is empty for user messages.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Sources   []Source  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one conversation bound to exactly one scope. ID stays empty
// until the backend assigns one when the first message pair is persisted.
type Session struct {
	ID       string      `json:"id,omitempty"`
	Scope    scope.Scope `json:"-"`
	Messages []Message   `json:"messages"`
}

// State is the per-scope presentation state of the chat surface.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateEmpty         State = "empty"
	StateRestored      State = "restored"
	StateSending       State = "sending"
	StateIdle          State = "idle"
	StateLimitReached  State = "limit_reached"
)

// Snapshot is a copy of one scope's cached conversation, safe to hand to a
// renderer.
type Snapshot struct {
	SessionID string
	Messages  []Message
	State     State
	Loading   bool
	Sending   bool
}
