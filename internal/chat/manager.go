// Package chat implements the context-scoped conversation manager: session
// loading with stale-result protection, single-flight message exchange with
// optimistic rendering, best-effort persistence, usage-limit gating, and
// explicit session termination.
package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/recaphq/chatscope/internal/backend"
	"github.com/recaphq/chatscope/internal/events"
	"github.com/recaphq/chatscope/internal/scope"
	"github.com/recaphq/chatscope/internal/session"
)

// Event types published to the notification broker.
const (
	EventStateChanged      events.Type = "chat.state_changed"
	EventMessageAppended   events.Type = "chat.message_appended"
	EventQuotaUpdated      events.Type = "chat.quota_updated"
	EventSessionTerminated events.Type = "chat.session_terminated"
)

var (
	// ErrEmptyMessage rejects a send whose text is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrSendInFlight rejects a send while a prior exchange for the same
	// scope is still outstanding. The send is dropped, not queued.
	ErrSendInFlight = errors.New("a send is already in flight for this scope")

	// ErrNoSession means there is nothing to terminate for the scope.
	ErrNoSession = errors.New("no session for this scope")

	// ErrConfirmationRequired means Terminate was called without a prior
	// RequestTermination.
	ErrConfirmationRequired = errors.New("termination requires confirmation")

	// ErrStaleConfirmation means the surface changed between the
	// confirmation request and its execution.
	ErrStaleConfirmation = errors.New("termination confirmation is stale")
)

// failureReply is the synthetic assistant message appended when an exchange
// fails for any reason other than quota exhaustion.
const failureReply = "Sorry, I ran into a problem answering that. Please try again."

const persistTimeout = 30 * time.Second

// Outcome classifies the result of a Send call.
type Outcome string

const (
	// OutcomeSent means the assistant answered and both messages were
	// appended.
	OutcomeSent Outcome = "sent"
	// OutcomeBlocked means the usage limit stopped the send, either locally
	// or via the backend's quota rejection.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeRejected means a precondition failed and nothing was appended.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed means the exchange failed and a synthetic error reply
	// was appended after the user's message.
	OutcomeFailed Outcome = "failed"
)

// Notification is the payload published on every broker event.
type Notification struct {
	Scope   scope.Scope
	State   session.State
	Message *session.Message
	Usage   *backend.Usage
}

// ManagerOptions configures a Manager. Store, Logger and Broker are
// optional; Client and Tokens are not.
type ManagerOptions struct {
	Store  *session.Store
	Client backend.Client
	Tokens backend.TokenProvider
	Logger *log.Logger
	Broker *events.Broker[Notification]
}

// Manager owns the conversation lifecycle for every scope. All of its
// methods are safe for concurrent use; within one scope, ordering is
// guaranteed by the single-flight send marker and the load generation
// counter.
type Manager struct {
	store  *session.Store
	client backend.Client
	tokens backend.TokenProvider
	quota  *QuotaGate
	logger *log.Logger
	broker *events.Broker[Notification]

	mu        sync.Mutex
	active    scope.Scope
	gen       uint64
	webSearch bool

	persistWG sync.WaitGroup
}

// NewManager creates a conversation manager.
func NewManager(opts ManagerOptions) *Manager {
	store := opts.Store
	if store == nil {
		store = session.NewStore()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = backend.StaticToken("")
	}

	return &Manager{
		store:  store,
		client: opts.Client,
		tokens: tokens,
		quota:  NewQuotaGate(opts.Client, logger),
		logger: logger,
		broker: opts.Broker,
	}
}

// Store exposes the scope-keyed session cache for rendering.
func (m *Manager) Store() *session.Store { return m.store }

// Quota exposes the usage gate for rendering.
func (m *Manager) Quota() *QuotaGate { return m.quota }

// ActiveScope returns the scope whose conversation is currently rendered.
func (m *Manager) ActiveScope() scope.Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Activate resolves the host UI's current selection and makes its
// conversation the rendered one, loading any persisted session for it.
// Activation supersedes every outstanding load: a load issued before this
// call can complete but will never be applied. The web-search toggle only
// has meaning in collection scope and is forced off on any transition away
// from one. The first activation also refreshes the usage snapshot.
func (m *Manager) Activate(ctx context.Context, sel scope.Selection) scope.Scope {
	sc := scope.Resolve(sel)

	m.mu.Lock()
	m.active = sc
	m.gen++
	gen := m.gen
	if sc.Kind != scope.KindCollection {
		m.webSearch = false
	}
	m.mu.Unlock()

	if _, ok := m.tokens.Token(); ok && !m.quota.Fetched() {
		if err := m.quota.Refresh(ctx); err == nil {
			m.notifyQuota()
		}
	}

	m.loadSession(ctx, sc, gen)
	return sc
}

// isCurrent reports whether gen is still the newest activation.
func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

// loadSession fetches the persisted session for sc and reconciles it into
// the store, unless a newer activation has superseded gen by the time the
// lookup completes. A superseded result is discarded whole: no store
// mutation and no loading-flag clear for the stale scope.
func (m *Manager) loadSession(ctx context.Context, sc scope.Scope, gen uint64) {
	if _, ok := m.tokens.Token(); !ok {
		// Unauthenticated users chat against an empty, non-persisted
		// session; no lookup is issued.
		m.store.Put(sc, &session.Session{Scope: sc})
		m.store.SetState(sc, session.StateEmpty)
		m.notifyState(sc)
		return
	}

	m.store.SetLoading(sc, true)
	m.store.SetState(sc, session.StateLoading)
	m.notifyState(sc)

	rec, err := m.client.SessionByScope(ctx, sc)

	if !m.isCurrent(gen) {
		m.logger.Debug("discarding stale session load", "scope", sc.Key())
		return
	}
	m.store.SetLoading(sc, false)

	if err != nil {
		// A chat pane's job is to stay usable: lookup failures degrade to
		// an empty session instead of a blocking error.
		m.logger.Warn("session lookup failed, starting empty", "scope", sc.Key(), "error", err)
		rec = nil
	}

	if rec == nil {
		m.store.Put(sc, &session.Session{Scope: sc})
		m.store.SetState(sc, session.StateEmpty)
	} else {
		m.store.Put(sc, &session.Session{ID: rec.ID, Scope: sc, Messages: rec.Messages})
		m.store.SetState(sc, session.StateRestored)
	}
	m.notifyState(sc)
}

// SetWebSearch toggles web augmentation for the active collection
// conversation. It reports whether the flag is on afterwards; outside
// collection scope the flag is always off.
func (m *Manager) SetWebSearch(on bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active.Kind != scope.KindCollection {
		m.webSearch = false
		return false
	}
	m.webSearch = on
	return m.webSearch
}

// WebSearchEnabled reports whether web augmentation is on.
func (m *Manager) WebSearchEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.webSearch
}

// Send submits one user message for sc. The user message is appended to the
// local log before the network call; on success the assistant's answer is
// appended and the pair is persisted in the background; on failure a
// synthetic error reply is appended and nothing is persisted beyond the
// user's message. At most one send per scope is in flight at a time; a
// second attempt is rejected, not queued.
func (m *Manager) Send(ctx context.Context, sc scope.Scope, text string) (Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return OutcomeRejected, ErrEmptyMessage
	}
	if _, ok := m.tokens.Token(); !ok {
		return OutcomeRejected, backend.ErrNoCredential
	}
	if m.store.State(sc) == session.StateLimitReached {
		return OutcomeBlocked, nil
	}
	if !m.quota.Allow() {
		m.store.SetState(sc, session.StateLimitReached)
		m.notifyState(sc)
		return OutcomeBlocked, nil
	}
	if !m.store.BeginSend(sc) {
		return OutcomeRejected, ErrSendInFlight
	}
	defer m.store.EndSend(sc)

	userMsg := session.Message{
		ID:        uuid.New().String(),
		Role:      session.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}
	m.store.Append(sc, userMsg)
	m.store.SetState(sc, session.StateSending)
	m.notifyMessage(sc, userMsg)

	resp, err := m.client.Exchange(ctx, m.exchangeRequest(sc, text))
	switch {
	case errors.Is(err, backend.ErrQuotaExceeded):
		// The distinguished limit rejection gets a terminal presentation
		// state, not an inline error message.
		m.store.SetState(sc, session.StateLimitReached)
		m.notifyState(sc)
		return OutcomeBlocked, nil

	case err != nil:
		m.logger.Warn("exchange failed", "scope", sc.Key(), "error", err)
		reply := session.Message{
			ID:        uuid.New().String(),
			Role:      session.RoleAssistant,
			Content:   failureReply,
			CreatedAt: time.Now(),
		}
		m.store.Append(sc, reply)
		m.store.SetState(sc, session.StateIdle)
		m.notifyMessage(sc, reply)
		return OutcomeFailed, nil
	}

	reply := session.Message{
		ID:        uuid.New().String(),
		Role:      session.RoleAssistant,
		Content:   resp.Answer,
		Sources:   resp.Sources,
		CreatedAt: time.Now(),
	}
	m.store.Append(sc, reply)
	m.store.SetState(sc, session.StateIdle)
	m.quota.ConsumeOne()
	m.notifyMessage(sc, reply)
	m.notifyQuota()

	m.persistPair(sc, userMsg, reply)
	return OutcomeSent, nil
}

// exchangeRequest builds the scope-restricted payload. The restriction is a
// hard contract with the backend: the same message text must never silently
// widen scope.
func (m *Manager) exchangeRequest(sc scope.Scope, text string) backend.ExchangeRequest {
	req := backend.ExchangeRequest{
		Message:   text,
		ScopeType: string(sc.Kind),
	}
	switch sc.Kind {
	case scope.KindContent:
		req.ContentID = sc.ID
	case scope.KindCollection:
		req.CollectionID = sc.ID
		req.SearchWeb = m.WebSearchEnabled()
	}
	return req
}

// persistPair writes the exchanged pair back to the backend as a detached,
// best-effort task. Failure is logged and swallowed; the conversation has
// already happened from the user's point of view. The result applies to the
// originating scope's stored session even if that scope is no longer
// rendered: persistence affects storage, not what is on screen.
func (m *Manager) persistPair(sc scope.Scope, userMsg, reply session.Message) {
	m.persistWG.Add(1)
	go func() {
		defer m.persistWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		payload := []backend.MessagePayload{
			{Role: userMsg.Role, Content: userMsg.Content},
			{Role: reply.Role, Content: reply.Content, Sources: reply.Sources},
		}
		id, err := m.client.AppendMessages(ctx, sc, payload)
		if err != nil {
			m.logger.Warn("message persistence failed", "scope", sc.Key(), "error", err)
			return
		}
		if m.store.AdoptSessionID(sc, id) {
			m.logger.Debug("adopted backend session id", "scope", sc.Key(), "session_id", id)
		}
	}()
}

// RefreshQuota re-reads the usage allowance and, when capacity is back,
// releases every scope stuck in the limit-reached state.
func (m *Manager) RefreshQuota(ctx context.Context) error {
	if err := m.quota.Refresh(ctx); err != nil {
		return err
	}
	if m.quota.Allow() {
		for _, sc := range m.store.ScopesInState(session.StateLimitReached) {
			m.store.SetState(sc, session.StateIdle)
			m.notifyState(sc)
		}
	}
	m.notifyQuota()
	return nil
}

// State returns sc's presentation state.
func (m *Manager) State(sc scope.Scope) session.State { return m.store.State(sc) }

// Snapshot returns a renderer-safe copy of sc's conversation.
func (m *Manager) Snapshot(sc scope.Scope) session.Snapshot { return m.store.Snapshot(sc) }

func (m *Manager) notifyState(sc scope.Scope) {
	m.publish(EventStateChanged, Notification{Scope: sc, State: m.store.State(sc)})
}

func (m *Manager) notifyMessage(sc scope.Scope, msg session.Message) {
	m.publish(EventMessageAppended, Notification{Scope: sc, State: m.store.State(sc), Message: &msg})
}

func (m *Manager) notifyQuota() {
	usage := m.quota.Snapshot()
	m.publish(EventQuotaUpdated, Notification{Usage: &usage})
}

func (m *Manager) publish(t events.Type, n Notification) {
	if m.broker != nil {
		m.broker.Publish(t, n)
	}
}
