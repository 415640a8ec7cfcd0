// Package session keeps one discovery state per signed-in viewer.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blackmichael/discovery/internal/domain"
)

// Gateway is the remote data a discovery session reads and writes.
type Gateway interface {
	domain.ListingRepository
	domain.LikeRepository
}

// GatewayFactory returns the gateway acting on behalf of the holder of
// accessToken.
type GatewayFactory func(accessToken string) Gateway

// Static returns a factory that ignores the token and always uses g.
func Static(g Gateway) GatewayFactory {
	return func(string) Gateway { return g }
}

// Manager maps viewer ids to their live Discovery.
type Manager struct {
	gateway GatewayFactory
	logger  *slog.Logger
	opts    []domain.Option

	mu       sync.Mutex
	sessions map[string]*domain.Discovery
}

// NewManager creates an empty manager. opts are applied to every Discovery
// it creates.
func NewManager(gateway GatewayFactory, logger *slog.Logger, opts ...domain.Option) *Manager {
	return &Manager{
		gateway:  gateway,
		logger:   logger,
		opts:     opts,
		sessions: make(map[string]*domain.Discovery),
	}
}

// Start begins a session for viewerID and performs the initial fetch. An
// existing session for the same viewer is cleared and replaced.
func (m *Manager) Start(ctx context.Context, viewerID, accessToken string) (*domain.Discovery, domain.Notice) {
	gw := m.gateway(accessToken)
	d := domain.NewDiscovery(viewerID, gw, gw, m.logger, m.opts...)

	m.mu.Lock()
	prev := m.sessions[viewerID]
	m.sessions[viewerID] = d
	m.mu.Unlock()

	if prev != nil {
		prev.Clear()
		m.logger.Info("replaced existing session", "viewer_id", viewerID)
	}

	n := d.OnSessionStart(ctx)
	m.logger.Info("session started", "viewer_id", viewerID, "notice", n.Kind)
	return d, n
}

// Get returns the viewer's session or an error wrapping ErrNoSession.
func (m *Manager) Get(viewerID string) (*domain.Discovery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.sessions[viewerID]
	if !ok {
		return nil, fmt.Errorf("viewer %s: %w", viewerID, domain.ErrNoSession)
	}
	return d, nil
}

// End clears and forgets the viewer's session. It reports whether a
// session existed.
func (m *Manager) End(viewerID string) bool {
	m.mu.Lock()
	d, ok := m.sessions[viewerID]
	delete(m.sessions, viewerID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	d.Clear()
	m.logger.Info("session ended", "viewer_id", viewerID)
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close ends every session and waits for their background work.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*domain.Discovery)
	m.mu.Unlock()

	for _, d := range sessions {
		d.Clear()
		d.Wait()
	}
}
