// Package backend consumes the product API's conversation contract:
// session lookup and append, message exchange, session deletion, and usage
// limits. It is a thin request/response client; all state lives with the
// caller.
package backend

import (
	"context"
	"errors"

	"github.com/recaphq/chatscope/internal/scope"
	"github.com/recaphq/chatscope/internal/session"
)

// UnlimitedLimit is the backend sentinel for an unmetered tier.
const UnlimitedLimit = -1

var (
	// ErrQuotaExceeded is returned by Exchange when the backend rejects the
	// request with its distinguished usage-limit error shape.
	ErrQuotaExceeded = errors.New("usage limit exceeded")

	// ErrNoCredential is returned when no bearer token is available; no
	// network call is made in that case.
	ErrNoCredential = errors.New("no credential available")
)

// TokenProvider yields the bearer credential attached to every request.
// The bool reports whether a credential is available at all.
type TokenProvider interface {
	Token() (string, bool)
}

// StaticToken is a TokenProvider for a fixed credential. The empty string
// means unauthenticated.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token() (string, bool) { return string(t), t != "" }

// SessionRecord is a persisted conversation as returned by the backend.
type SessionRecord struct {
	ID       string            `json:"id"`
	Messages []session.Message `json:"messages"`
}

// MessagePayload is one message in an append request.
type MessagePayload struct {
	Role    session.Role     `json:"role"`
	Content string           `json:"content"`
	Sources []session.Source `json:"sources,omitempty"`
}

// ExchangeRequest asks the assistant to answer one user message. The scope
// fields are a hard contract: the backend must never answer from a wider
// corpus than the request names.
type ExchangeRequest struct {
	Message      string `json:"message"`
	ScopeType    string `json:"scope_type"`
	ContentID    string `json:"content_id,omitempty"`
	CollectionID string `json:"collection_id,omitempty"`
	SearchWeb    bool   `json:"search_web,omitempty"`
}

// ExchangeResponse is the assistant's answer with its attributions.
type ExchangeResponse struct {
	Answer  string           `json:"answer"`
	Sources []session.Source `json:"sources"`
}

// Usage is the remaining-allowance pair for the current period.
type Usage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Unlimited reports whether the tier has no cap.
func (u Usage) Unlimited() bool { return u.Limit == UnlimitedLimit }

// Remaining returns the number of exchanges left; meaningless when unlimited.
func (u Usage) Remaining() int { return u.Limit - u.Used }

// Client is the consumed backend surface. Implementations must map
// "no session found" to (nil, nil), not an error.
type Client interface {
	SessionByScope(ctx context.Context, sc scope.Scope) (*SessionRecord, error)
	AppendMessages(ctx context.Context, sc scope.Scope, msgs []MessagePayload) (sessionID string, err error)
	DeleteSession(ctx context.Context, sessionID string) error
	Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error)
	UsageLimits(ctx context.Context) (*Usage, error)
}
