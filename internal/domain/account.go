package domain

import "time"

// ConnState is the lifecycle state of an account connection.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// DisconnectReason explains why an account left the connected state.
type DisconnectReason string

const (
	ReasonLoggedOut    DisconnectReason = "logged_out"
	ReasonMaxReconnect DisconnectReason = "max_reconnect_attempts"
	ReasonManual       DisconnectReason = "manual"
)

// AccountSession is the supervisor's view of one connected account.
// At most one live session exists per account ID at any time.
type AccountSession struct {
	AccountID         string    `json:"accountId"`
	State             ConnState `json:"state"`
	ReconnectAttempts int       `json:"reconnectAttempts"`
	LastActivity      time.Time `json:"lastActivity"`
	PhoneIdentity     string    `json:"phoneIdentity,omitempty"` // known once connected
}

// SendResult is returned by a successful outbound send.
type SendResult struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}
