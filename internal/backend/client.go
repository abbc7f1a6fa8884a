package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/recaphq/chatscope/internal/scope"
)

// Options configures an HTTPClient.
type Options struct {
	BaseURL          string
	Tokens           TokenProvider
	RequestTimeoutMs int
	Logger           *log.Logger
}

// HTTPClient implements Client against the product API over HTTP.
type HTTPClient struct {
	options Options
	client  *http.Client
	baseURL string
	logger  *log.Logger
}

// NewHTTPClient creates a client for the given backend.
func NewHTTPClient(options Options) *HTTPClient {
	timeout := 60 * time.Second
	if options.RequestTimeoutMs > 0 {
		timeout = time.Duration(options.RequestTimeoutMs) * time.Millisecond
	}

	logger := options.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &HTTPClient{
		options: options,
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(options.BaseURL, "/"),
		logger:  logger,
	}
}

// SessionByScope looks up the persisted session for a scope. A missing
// session is (nil, nil).
func (c *HTTPClient) SessionByScope(ctx context.Context, sc scope.Scope) (*SessionRecord, error) {
	q := url.Values{"scope_type": {string(sc.Kind)}}
	if sc.ID != "" {
		q.Set("scope_id", sc.ID)
	}

	var out struct {
		Session *SessionRecord `json:"session"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Session, nil
}

// AppendMessages writes a batch of messages to the scope's session, creating
// the session if it does not exist yet, and returns its identifier.
func (c *HTTPClient) AppendMessages(ctx context.Context, sc scope.Scope, msgs []MessagePayload) (string, error) {
	body := struct {
		ScopeType string           `json:"scope_type"`
		ScopeID   string           `json:"scope_id,omitempty"`
		Messages  []MessagePayload `json:"messages"`
	}{
		ScopeType: string(sc.Kind),
		ScopeID:   sc.ID,
		Messages:  msgs,
	}

	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions/messages", body, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// DeleteSession removes a persisted session and its messages.
func (c *HTTPClient) DeleteSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(sessionID), nil, nil)
}

// Exchange submits one user message and returns the assistant's answer.
// A quota rejection surfaces as ErrQuotaExceeded.
func (c *HTTPClient) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	var out ExchangeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/chat/exchange", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UsageLimits fetches the current period's usage pair.
func (c *HTTPClient) UsageLimits(ctx context.Context) (*Usage, error) {
	var out Usage
	if err := c.doJSON(ctx, http.MethodGet, "/api/usage/limits", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON issues one authenticated request and decodes the response into out
// when out is non-nil.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	token, ok := c.options.Tokens.Token()
	if !ok {
		return ErrNoCredential
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		c.logger.Debug("backend request rejected", "method", method, "path", path, "status", resp.StatusCode)
		if resp.StatusCode == http.StatusForbidden && isQuotaError(data) {
			return ErrQuotaExceeded
		}
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// isQuotaError recognizes the backend's distinguished usage-limit shape:
// a 403 whose body carries {"error": "quota_exceeded"}.
func isQuotaError(data []byte) bool {
	var shape struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return false
	}
	return shape.Error == "quota_exceeded"
}
