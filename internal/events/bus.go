// Package events is the typed outbound event bus. The core publishes here and
// collaborators subscribe, so the supervisor never holds references back to them.
package events

import (
	"encoding/json"
	"sync"

	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/soyeahso/autoreply/internal/logging"
)

// Type names a published event.
type Type string

const (
	TypeQR           Type = "qr"
	TypeConnected    Type = "connected"
	TypeDisconnected Type = "disconnected"
	TypeMessage      Type = "message"
)

// Event is one published core event.
type Event struct {
	Type      Type                     `json:"type"`
	AccountID string                   `json:"accountId"`
	QR        string                   `json:"qr,omitempty"`
	Identity  string                   `json:"identity,omitempty"`
	Reason    domain.DisconnectReason  `json:"reason,omitempty"`
	Message   *domain.CanonicalMessage `json:"message,omitempty"`
	Raw       json.RawMessage          `json:"raw,omitempty"`
}

// Bus fans events out to subscriber channels. Publishing never blocks: a
// subscriber whose buffer is full misses the event and a warning is logged.
type Bus struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
	log    *logging.Logger
}

// NewBus creates an event bus.
func NewBus(log *logging.Logger) *Bus {
	return &Bus{log: log.Sub("events")}
}

// Subscribe returns a channel receiving all future events. The channel is
// closed when the bus closes.
func (b *Bus) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Warn().
				Str("type", string(ev.Type)).
				Str("account", ev.AccountID).
				Msg("subscriber buffer full, dropping event")
		}
	}
}

// Close closes all subscriber channels. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
