// Package waclient wraps the automated-browser WhatsApp client behind a
// small interface and keeps at most one live client handle per user.
//
// The real browser-automation library is an external integration point;
// it plugs in as a Factory. The SimulatedFactory in this package drives
// the same lifecycle without a browser and is what development and test
// deployments use.
package waclient

import (
	"context"

	"github.com/hiktan44/whatsappmini-sub000/internal/model"
)

// Client is one underlying browser-driven WhatsApp client instance.
//
// Start kicks off the asynchronous connect/login flow; lifecycle progress
// is reported through the emit callback passed to the Factory, never
// through return values. Destroy releases the browser resources and stops
// event delivery; it must be safe to call more than once.
type Client interface {
	Start(ctx context.Context) error
	Logout(ctx context.Context) error
	Destroy()
}

// Factory creates a Client bound to a session. Events emitted by the
// client carry the userID/sessionID it was created with.
type Factory interface {
	New(userID, sessionID string, emit func(model.ClientEvent)) (Client, error)
}
