package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recaphq/chatscope/internal/scope"
	"github.com/recaphq/chatscope/internal/session"
)

// newTestServer wires a fake of the product API with the routes the client
// consumes. Every handler asserts the bearer credential.
func newTestServer(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			atomic.AddInt64(hits, 1)
			if req.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.HandleFunc("/api/sessions", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("scope_type") == "content" && req.URL.Query().Get("scope_id") == "v1" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"session": map[string]interface{}{
					"id": "s-1",
					"messages": []session.Message{
						{ID: "m1", Role: session.RoleUser, Content: "hi"},
					},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"session": nil})
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/sessions/messages", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ScopeType string           `json:"scope_type"`
			ScopeID   string           `json:"scope_id"`
			Messages  []MessagePayload `json:"messages"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || len(body.Messages) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"session_id": "s-new"})
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		if mux.Vars(req)["id"] == "s-1" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodDelete)

	r.HandleFunc("/api/chat/exchange", func(w http.ResponseWriter, req *http.Request) {
		var body ExchangeRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if body.Message == "over limit" {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": "quota_exceeded"})
			return
		}
		json.NewEncoder(w).Encode(ExchangeResponse{
			Answer:  "answer to: " + body.Message,
			Sources: []session.Source{{Type: session.SourceContent, ContentID: body.ContentID}},
		})
	}).Methods(http.MethodPost)

	r.HandleFunc("/api/usage/limits", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(Usage{Used: 2, Limit: 5})
	}).Methods(http.MethodGet)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *HTTPClient {
	return NewHTTPClient(Options{BaseURL: srv.URL, Tokens: StaticToken("tok-1")})
}

func TestSessionByScope(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	c := newTestClient(srv)
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		rec, err := c.SessionByScope(ctx, scope.Content("v1"))
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "s-1", rec.ID)
		assert.Len(t, rec.Messages, 1)
	})

	t.Run("absence is nil, not an error", func(t *testing.T) {
		rec, err := c.SessionByScope(ctx, scope.Global())
		require.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestExchange(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	c := newTestClient(srv)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		resp, err := c.Exchange(ctx, ExchangeRequest{Message: "summarize", ScopeType: "content", ContentID: "v1"})
		require.NoError(t, err)
		assert.Equal(t, "answer to: summarize", resp.Answer)
		require.Len(t, resp.Sources, 1)
		assert.Equal(t, "v1", resp.Sources[0].ContentID)
	})

	t.Run("quota shape maps to sentinel", func(t *testing.T) {
		_, err := c.Exchange(ctx, ExchangeRequest{Message: "over limit", ScopeType: "global"})
		assert.ErrorIs(t, err, ErrQuotaExceeded)
	})
}

func TestAppendMessages(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	c := newTestClient(srv)

	id, err := c.AppendMessages(context.Background(), scope.Collection("c1"), []MessagePayload{
		{Role: session.RoleUser, Content: "hi"},
		{Role: session.RoleAssistant, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s-new", id)
}

func TestDeleteSession(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	c := newTestClient(srv)

	require.NoError(t, c.DeleteSession(context.Background(), "s-1"))
	assert.Error(t, c.DeleteSession(context.Background(), "missing"))
}

func TestUsageLimits(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	c := newTestClient(srv)

	usage, err := c.UsageLimits(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Used)
	assert.Equal(t, 5, usage.Limit)
	assert.False(t, usage.Unlimited())
	assert.Equal(t, 3, usage.Remaining())
}

func TestMissingCredentialShortCircuits(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	c := NewHTTPClient(Options{BaseURL: srv.URL, Tokens: StaticToken("")})

	_, err := c.SessionByScope(context.Background(), scope.Global())
	assert.ErrorIs(t, err, ErrNoCredential)
	_, err = c.UsageLimits(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.EqualValues(t, 0, atomic.LoadInt64(&hits), "no request may leave the client without a credential")
}

func TestUnlimitedSentinel(t *testing.T) {
	u := Usage{Used: 10, Limit: UnlimitedLimit}
	assert.True(t, u.Unlimited())
}
