package waclient

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hiktan44/whatsappmini-sub000/internal/model"
)

type handle struct {
	sessionID string
	client    Client
}

// Manager owns the live client handles, at most one per user. Creating a
// handle for a user who already has one destroys the old handle first.
type Manager struct {
	mu      sync.Mutex
	factory Factory
	handles map[string]*handle
	logger  zerolog.Logger
}

func NewManager(factory Factory, logger zerolog.Logger) *Manager {
	return &Manager{
		factory: factory,
		handles: make(map[string]*handle),
		logger:  logger.With().Str("component", "waclient").Logger(),
	}
}

// Create builds and starts a client for the session. The returned error
// is the adapter's ClientInitError condition: the browser instance could
// not be started.
func (m *Manager) Create(ctx context.Context, userID, sessionID string, emit func(model.ClientEvent)) error {
	m.mu.Lock()
	if old, ok := m.handles[userID]; ok {
		delete(m.handles, userID)
		m.mu.Unlock()
		m.logger.Debug().Str("userId", userID).Str("sessionId", old.sessionID).
			Msg("destroying stale client before re-init")
		old.client.Destroy()
		m.mu.Lock()
	}
	m.mu.Unlock()

	client, err := m.factory.New(userID, sessionID, emit)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.handles[userID] = &handle{sessionID: sessionID, client: client}
	m.mu.Unlock()

	if err := client.Start(ctx); err != nil {
		m.remove(userID, sessionID)
		client.Destroy()
		return err
	}
	return nil
}

// SessionID returns the session the user's live handle belongs to.
func (m *Manager) SessionID(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[userID]
	if !ok {
		return "", false
	}
	return h.sessionID, true
}

// Logout asks the user's client to log out of WhatsApp Web. Best-effort;
// absent handle is not an error.
func (m *Manager) Logout(ctx context.Context, userID string) error {
	m.mu.Lock()
	h, ok := m.handles[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return h.client.Logout(ctx)
}

// Destroy tears down the user's handle if present. Idempotent.
func (m *Manager) Destroy(userID string) {
	m.mu.Lock()
	h, ok := m.handles[userID]
	if ok {
		delete(m.handles, userID)
	}
	m.mu.Unlock()
	if ok {
		h.client.Destroy()
	}
}

// DestroyIfSession tears down the user's handle only when it still
// belongs to the given session, so a teardown for a superseded session
// cannot kill its replacement.
func (m *Manager) DestroyIfSession(userID, sessionID string) {
	m.mu.Lock()
	h, ok := m.handles[userID]
	if ok && h.sessionID == sessionID {
		delete(m.handles, userID)
	} else {
		ok = false
	}
	m.mu.Unlock()
	if ok {
		h.client.Destroy()
	}
}

// Count returns the number of live handles.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

func (m *Manager) remove(userID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handles[userID]; ok && h.sessionID == sessionID {
		delete(m.handles, userID)
	}
}
