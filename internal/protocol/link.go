// Package protocol defines the chat-protocol link the supervisor drives, and
// a websocket implementation that speaks JSON frames to an account gateway.
package protocol

import (
	"context"

	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/soyeahso/autoreply/internal/session"
)

// EventKind discriminates link events.
type EventKind string

const (
	EventOpen      EventKind = "open"      // connection established
	EventClose     EventKind = "close"     // connection lost or terminated
	EventChallenge EventKind = "challenge" // credential challenge (QR artifact)
	EventMessage   EventKind = "message"   // inbound protocol message
)

// Event is one connection update or inbound message from the link.
type Event struct {
	Kind EventKind

	// EventOpen
	Identity string // phone identity of the connected account

	// EventClose
	Code      int
	LoggedOut bool // close reason was a terminal logout, not transient

	// EventChallenge
	QR string

	// EventMessage
	Message *RawMessage
}

// RawMessage is an inbound payload before normalization.
type RawMessage struct {
	ID       string      `json:"id,omitempty"`
	From     string      `json:"from"`
	FromSelf bool        `json:"fromSelf,omitempty"`
	PushName string      `json:"pushName,omitempty"`
	Epoch    int64       `json:"epoch,omitempty"` // unix seconds, 0 when absent
	Content  *RawContent `json:"content,omitempty"`
}

// RawContent is the protocol's discriminated content union. Kind values the
// pipeline does not recognize normalize to unsupported content.
type RawContent struct {
	Kind      string  `json:"kind"`
	Text      string  `json:"text,omitempty"`
	Caption   string  `json:"caption,omitempty"`
	MediaURL  string  `json:"mediaUrl,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Contact   string  `json:"contact,omitempty"`
}

// PresenceState is an outbound presence announcement.
type PresenceState string

const (
	PresenceSubscribe PresenceState = "subscribe"
	PresenceComposing PresenceState = "composing"
	PresencePaused    PresenceState = "paused"
)

// Outbound is the resolved payload shape for one send.
type Outbound struct {
	To    string
	Text  string
	Media *domain.MediaOptions
}

// Link is one live protocol connection for a single account.
type Link interface {
	// Open establishes the connection. Events flow on Events() afterwards.
	Open(ctx context.Context) error

	// Events returns the event stream. The channel closes when the link dies.
	Events() <-chan Event

	// Send dispatches an outbound payload and returns a delivery identifier.
	Send(ctx context.Context, out Outbound) (string, error)

	// SendPresence announces a presence state toward a recipient.
	SendPresence(ctx context.Context, to string, state PresenceState) error

	// Logout terminates the session server-side. Best effort.
	Logout(ctx context.Context) error

	// Close tears down the connection without logging out.
	Close() error
}

// Dialer constructs a Link for an account from its session material.
type Dialer interface {
	Dial(accountID string, material *session.Material) (Link, error)
}
