// Package session implements the session lifecycle: the orchestrator that
// owns the per-user state machine, the janitor that sweeps stale records,
// and the remote delegate used when this instance proxies to a peer.
package session

import (
	"context"
	"errors"

	"github.com/hiktan44/whatsappmini-sub000/internal/model"
)

// ErrClientInit is returned when the underlying browser-automation client
// could not be started. It is surfaced to the caller and not retried.
var ErrClientInit = errors.New("client init failed")

// ErrSimulateScanDisabled is returned when the simulate-scan hook is
// invoked on a deployment that has not explicitly enabled it.
var ErrSimulateScanDisabled = errors.New("simulate scan disabled")

// StatusResult is the caller-facing view of a session. Every operation
// returns a well-formed result even on the failure paths: no_session,
// expired and auth_failed are statuses, not errors.
type StatusResult struct {
	SessionID      string              `json:"session_id,omitempty"`
	Status         model.SessionStatus `json:"status"`
	QR             *model.QREntry      `json:"qr,omitempty"`
	ConnectedAt    *int64              `json:"connected_at,omitempty"`
	DisconnectedAt *int64              `json:"disconnected_at,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
}

// Service is the session lifecycle surface consumed by the HTTP facade.
// Orchestrator implements it locally; Delegate forwards to a peer
// instance and falls back to a local Orchestrator when the peer is
// unreachable.
type Service interface {
	Initialize(ctx context.Context, userID string) (StatusResult, error)
	Status(ctx context.Context, userID, sessionID string) (StatusResult, error)
	SimulateScan(ctx context.Context, userID string) (StatusResult, error)
	Disconnect(ctx context.Context, userID string) (StatusResult, error)
}

// Notifier receives a status frame on every state transition. The HTTP
// layer plugs the websocket hub in here.
type Notifier interface {
	SessionUpdated(userID string, result StatusResult)
}
