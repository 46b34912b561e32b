package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/autoreply/internal/logging"
	"github.com/soyeahso/autoreply/internal/session"
)

// CloseLoggedOut is the gateway close code for a terminal logout. Anything
// else is treated as transient.
const CloseLoggedOut = 4401

// frame is the JSON wire format exchanged with the account gateway.
type frame struct {
	Op       string          `json:"op"` // resume, open, close, qr, message, send, presence, logout
	ID       string          `json:"id,omitempty"`
	To       string          `json:"to,omitempty"`
	Text     string          `json:"text,omitempty"`
	MediaURL string          `json:"mediaUrl,omitempty"`
	MimeType string          `json:"mimeType,omitempty"`
	Caption  string          `json:"caption,omitempty"`
	State    string          `json:"state,omitempty"`
	Identity string          `json:"identity,omitempty"`
	Code     int             `json:"code,omitempty"`
	QR       string          `json:"qr,omitempty"`
	Message  *RawMessage     `json:"message,omitempty"`
	Auth     json.RawMessage `json:"auth,omitempty"`
}

// WSDialer dials websocket links against a single gateway URL.
type WSDialer struct {
	URL    string
	Origin string
	Log    *logging.Logger
}

// Dial creates an unopened link for the account.
func (d *WSDialer) Dial(accountID string, material *session.Material) (Link, error) {
	if d.URL == "" {
		return nil, fmt.Errorf("protocol: gateway url not configured")
	}
	log := d.Log
	if log == nil {
		log = logging.Nop()
	}
	return &wsLink{
		url:       d.URL,
		origin:    d.Origin,
		accountID: accountID,
		material:  material,
		events:    make(chan Event, 64),
		log:       log.Sub("wslink"),
	}, nil
}

// wsLink is one websocket connection to the gateway for one account.
type wsLink struct {
	url       string
	origin    string
	accountID string
	material  *session.Material
	events    chan Event
	log       *logging.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
}

func (l *wsLink) Open(ctx context.Context) error {
	header := http.Header{}
	if l.origin != "" {
		header.Set("Origin", l.origin)
	}
	header.Set("X-Account-ID", l.accountID)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, l.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("protocol: dial gateway (%d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("protocol: dial gateway: %w", err)
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		conn.Close()
		return fmt.Errorf("protocol: link already closed")
	}
	l.conn = conn
	l.mu.Unlock()

	// Resume the session with stored credentials before anything else.
	resume := frame{Op: "resume", ID: l.accountID}
	if l.material != nil {
		resume.Auth = l.material.Credentials
	}
	if err := l.writeFrame(resume); err != nil {
		conn.Close()
		return fmt.Errorf("protocol: resume: %w", err)
	}

	go l.readLoop()
	return nil
}

func (l *wsLink) Events() <-chan Event { return l.events }

func (l *wsLink) Send(ctx context.Context, out Outbound) (string, error) {
	if out.To == "" {
		return "", fmt.Errorf("protocol: no recipient")
	}
	f := frame{Op: "send", ID: uuid.New().String(), To: out.To, Text: out.Text}
	if out.Media != nil {
		f.MediaURL = out.Media.URL
		f.MimeType = out.Media.MimeType
		f.Caption = out.Media.Caption
	}
	if err := l.writeFrame(f); err != nil {
		return "", fmt.Errorf("protocol: send: %w", err)
	}
	return f.ID, nil
}

func (l *wsLink) SendPresence(ctx context.Context, to string, state PresenceState) error {
	return l.writeFrame(frame{Op: "presence", To: to, State: string(state)})
}

func (l *wsLink) Logout(ctx context.Context) error {
	if err := l.writeFrame(frame{Op: "logout"}); err != nil {
		return fmt.Errorf("protocol: logout: %w", err)
	}
	return nil
}

func (l *wsLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.conn != nil {
		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		l.writeMu.Unlock()
		return l.conn.Close()
	}
	return nil
}

// readLoop decodes gateway frames into link events until the socket dies.
func (l *wsLink) readLoop() {
	defer close(l.events)

	for {
		var f frame
		if err := l.conn.ReadJSON(&f); err != nil {
			code := websocket.CloseAbnormalClosure
			if ce, ok := err.(*websocket.CloseError); ok {
				code = ce.Code
			}
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()
			if !closed {
				l.log.Debug().Str("account", l.accountID).Err(err).Msg("read loop ended")
				l.events <- Event{Kind: EventClose, Code: code, LoggedOut: code == CloseLoggedOut}
			}
			return
		}

		switch f.Op {
		case "open":
			l.events <- Event{Kind: EventOpen, Identity: f.Identity}
		case "qr":
			l.events <- Event{Kind: EventChallenge, QR: f.QR}
		case "close":
			l.events <- Event{Kind: EventClose, Code: f.Code, LoggedOut: f.Code == CloseLoggedOut}
			return
		case "message":
			if f.Message != nil {
				l.events <- Event{Kind: EventMessage, Message: f.Message}
			}
		default:
			l.log.Debug().Str("op", f.Op).Msg("ignoring unknown frame")
		}
	}
}

func (l *wsLink) writeFrame(f frame) error {
	l.mu.Lock()
	conn := l.conn
	closed := l.closed
	l.mu.Unlock()
	if conn == nil || closed {
		return fmt.Errorf("protocol: link not open")
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return conn.WriteJSON(f)
}
