package chat

import (
	"context"
	"fmt"

	"github.com/recaphq/chatscope/internal/scope"
	"github.com/recaphq/chatscope/internal/session"
)

// TerminationRequest is the confirmation handle for ending a conversation.
// Termination is irreversible, so it is two-phase: the UI obtains a request,
// shows its confirmation step, then passes the request back to Terminate.
// A request issued before a scope change is rejected as stale.
type TerminationRequest struct {
	Scope     scope.Scope
	SessionID string

	gen uint64
}

// RequestTermination starts the confirmation step for ending sc's
// conversation. It fails with ErrNoSession when there is nothing to end.
func (m *Manager) RequestTermination(sc scope.Scope) (*TerminationRequest, error) {
	snap := m.store.Snapshot(sc)
	if snap.SessionID == "" && len(snap.Messages) == 0 {
		return nil, ErrNoSession
	}

	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	return &TerminationRequest{Scope: sc, SessionID: snap.SessionID, gen: gen}, nil
}

// Terminate executes a confirmed termination: the remote session is deleted
// when one exists, then the scope's local log and identifier are cleared.
// Scopes are independent; no other scope's session is touched.
func (m *Manager) Terminate(ctx context.Context, req *TerminationRequest) error {
	if req == nil {
		return ErrConfirmationRequired
	}

	m.mu.Lock()
	current := m.gen
	m.mu.Unlock()
	if req.gen != current {
		return ErrStaleConfirmation
	}

	if req.SessionID != "" {
		if err := m.client.DeleteSession(ctx, req.SessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}

	m.store.Clear(req.Scope)
	m.logger.Info("session terminated", "scope", req.Scope.Key())
	m.publish(EventSessionTerminated, Notification{Scope: req.Scope, State: session.StateEmpty})
	return nil
}
