package model

// SessionStatus is the lifecycle state of a user's WhatsApp Web session.
type SessionStatus string

const (
	StatusNoSession      SessionStatus = "no_session"
	StatusInitializing   SessionStatus = "initializing"
	StatusWaitingForScan SessionStatus = "waiting_for_scan"
	StatusAuthenticated  SessionStatus = "authenticated"
	StatusConnected      SessionStatus = "connected"
	StatusExpired        SessionStatus = "expired"
	StatusAuthFailed     SessionStatus = "auth_failed"
	StatusDisconnected   SessionStatus = "disconnected"
)

// Live reports whether a session in this status still owns a browser
// client handle.
func (s SessionStatus) Live() bool {
	switch s {
	case StatusInitializing, StatusWaitingForScan, StatusAuthenticated, StatusConnected:
		return true
	}
	return false
}

// SessionRecord is the persisted state of one user's session. At most one
// record exists per user at a time.
type SessionRecord struct {
	SessionID      string        `json:"session_id"`
	UserID         string        `json:"user_id"`
	Status         SessionStatus `json:"status"`
	CreatedAt      int64         `json:"created_at"`
	LastActivityAt int64         `json:"last_activity_at"`
	ConnectedAt    *int64        `json:"connected_at,omitempty"`
	DisconnectedAt *int64        `json:"disconnected_at,omitempty"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

// QREntry is the pending scan payload for a session awaiting
// authentication. ExpiresAt is always IssuedAt plus the configured QR TTL.
type QREntry struct {
	SessionID string `json:"session_id"`
	Payload   string `json:"payload"`
	ImagePNG  []byte `json:"image_png"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// EventType identifies a lifecycle event reported by the underlying
// browser-automation client.
type EventType string

const (
	EventQRIssued      EventType = "qr_issued"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventAuthFailed    EventType = "auth_failed"
	EventDisconnected  EventType = "disconnected"
)

// ClientEvent is one inbound event from a browser client, consumed by the
// orchestrator's transition function.
type ClientEvent struct {
	Type      EventType
	UserID    string
	SessionID string
	QRPayload string
	Error     string
}
