package chat

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/recaphq/chatscope/internal/backend"
)

// QuotaGate caches the user's periodic exchange allowance so the surface can
// block exhausted sends without a round trip. The cache is advisory: the
// backend independently enforces the limit on every exchange, and this gate
// must never be the sole enforcement point.
type QuotaGate struct {
	mu      sync.Mutex
	client  backend.Client
	logger  *log.Logger
	fetched bool
	usage   backend.Usage
}

// NewQuotaGate creates a gate that reads limits from client.
func NewQuotaGate(client backend.Client, logger *log.Logger) *QuotaGate {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &QuotaGate{client: client, logger: logger}
}

// Refresh re-reads the usage pair from the backend. A failed read keeps the
// previous snapshot; an unauthenticated read degrades to unknown, which
// allows sends.
func (g *QuotaGate) Refresh(ctx context.Context) error {
	usage, err := g.client.UsageLimits(ctx)
	if err != nil {
		g.logger.Warn("usage limit refresh failed", "error", err)
		return fmt.Errorf("refresh usage limits: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetched = true
	g.usage = *usage
	return nil
}

// Fetched reports whether a usage snapshot has been read at all.
func (g *QuotaGate) Fetched() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetched
}

// Allow reports whether another exchange may be issued. An unknown snapshot
// allows the send; the backend still has the final word.
func (g *QuotaGate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.fetched || g.usage.Unlimited() {
		return true
	}
	return g.usage.Remaining() > 0
}

// ConsumeOne optimistically records one successful exchange. The counter is
// never optimistically decremented back; only Refresh can lower it.
func (g *QuotaGate) ConsumeOne() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fetched && !g.usage.Unlimited() {
		g.usage.Used++
	}
}

// Snapshot returns the cached usage pair.
func (g *QuotaGate) Snapshot() backend.Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usage
}
