package waclient

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/hiktan44/whatsappmini-sub000/internal/model"
)

// SimulatedFactory produces clients that walk the WhatsApp Web lifecycle
// without a browser. After Start, each client emits a QRIssued event with
// a random payload once QRDelay has passed. Authentication never happens
// on its own; the orchestrator's simulate-scan hook (or a test feeding
// events directly) drives the rest of the flow.
type SimulatedFactory struct {
	// QRDelay is how long after Start the QR event fires. Zero fires it
	// synchronously from Start.
	QRDelay time.Duration

	// FailInit makes New return an error, modeling a browser instance
	// that cannot boot.
	FailInit bool

	// FailAuth emits AuthFailed instead of a QR code.
	FailAuth bool

	// Hang suppresses all events, modeling a client stuck initializing.
	Hang bool
}

func (f *SimulatedFactory) New(userID, sessionID string, emit func(model.ClientEvent)) (Client, error) {
	if f.FailInit {
		return nil, fmt.Errorf("simulated browser launch failure for user %s", userID)
	}
	return &simulatedClient{
		factory:   f,
		userID:    userID,
		sessionID: sessionID,
		emit:      emit,
		done:      make(chan struct{}),
	}, nil
}

type simulatedClient struct {
	factory   *SimulatedFactory
	userID    string
	sessionID string
	emit      func(model.ClientEvent)

	mu        sync.Mutex
	destroyed bool
	done      chan struct{}
}

func (c *simulatedClient) Start(_ context.Context) error {
	if c.factory.Hang {
		return nil
	}
	if c.factory.QRDelay <= 0 {
		c.fire()
		return nil
	}

	go func() {
		timer := time.NewTimer(c.factory.QRDelay)
		defer timer.Stop()
		select {
		case <-c.done:
		case <-timer.C:
			c.fire()
		}
	}()
	return nil
}

func (c *simulatedClient) fire() {
	c.mu.Lock()
	destroyed := c.destroyed
	c.mu.Unlock()
	if destroyed {
		return
	}

	if c.factory.FailAuth {
		c.emit(model.ClientEvent{
			Type:      model.EventAuthFailed,
			UserID:    c.userID,
			SessionID: c.sessionID,
			Error:     "simulated handshake failure",
		})
		return
	}
	c.emit(model.ClientEvent{
		Type:      model.EventQRIssued,
		UserID:    c.userID,
		SessionID: c.sessionID,
		QRPayload: randomPayload(),
	})
}

func (c *simulatedClient) Logout(_ context.Context) error {
	return nil
}

func (c *simulatedClient) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	close(c.done)
}

func randomPayload() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "2@simulated"
	}
	// Mimics the ref,pub-key,... shape of a real pairing payload loosely
	// enough for a scanner demo.
	return "2@" + base64.StdEncoding.EncodeToString(buf)
}
