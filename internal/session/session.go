// Package session implements the at-most-one-client admission gate
// (component C9). It holds no movement state itself; on disconnect it
// asks the facade to reset everything movement-related.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/virtualbrainlab/ephys-link/internal/platform"
)

// Gate admits at most one concurrently connected client.
type Gate struct {
	facade *platform.Facade
	log    *slog.Logger

	mu      sync.Mutex
	current string
}

// New builds a Gate over a facade used for the reset-on-disconnect path.
func New(facade *platform.Facade, log *slog.Logger) *Gate {
	return &Gate{facade: facade, log: log}
}

// Connect admits sid if no client is currently connected. It reports
// whether the connection was accepted. Each accepted connection is
// tagged with a fresh correlation id for log lines spanning its
// lifetime, distinct from the transport's own session id.
func (g *Gate) Connect(sid string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != "" {
		return false
	}
	g.current = sid
	g.log.Info("client connected", "sid", sid, "correlation_id", uuid.New().String())
	return true
}

// Disconnect clears sid if it is the current client and resets the
// facade. Disconnection of a non-current sid is ignored with a warning,
// since it can only arrive from a connection that was already refused.
func (g *Gate) Disconnect(ctx context.Context, sid string) {
	g.mu.Lock()
	if sid != g.current {
		g.mu.Unlock()
		g.log.Warn("disconnect from non-current session ignored", "sid", sid)
		return
	}
	g.current = ""
	g.mu.Unlock()

	g.facade.Reset(ctx)
}

// Current returns the active session id, or "" if none.
func (g *Gate) Current() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}
