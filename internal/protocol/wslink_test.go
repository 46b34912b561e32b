package protocol

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/soyeahso/autoreply/internal/logging"
	"github.com/soyeahso/autoreply/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// gateway is a scripted websocket endpoint standing in for the account gateway.
type gateway struct {
	srv     *httptest.Server
	conns   chan *websocket.Conn
	resumes chan frame
	headers chan http.Header
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	g := &gateway{
		conns:   make(chan *websocket.Conn, 4),
		resumes: make(chan frame, 4),
		headers: make(chan http.Header, 4),
	}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.headers <- r.Header.Clone()
		var first frame
		if err := conn.ReadJSON(&first); err != nil {
			conn.Close()
			return
		}
		g.resumes <- first
		g.conns <- conn
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *gateway) accept(t *testing.T) (*websocket.Conn, frame) {
	t.Helper()
	select {
	case conn := <-g.conns:
		return conn, <-g.resumes
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for gateway connection")
		return nil, frame{}
	}
}

func openLink(t *testing.T, g *gateway, material *session.Material) (Link, *websocket.Conn, frame) {
	t.Helper()
	dialer := &WSDialer{URL: g.url(), Origin: "https://gw.test", Log: logging.Nop()}
	link, err := dialer.Dial("acct1", material)
	require.NoError(t, err)
	require.NoError(t, link.Open(context.Background()))
	conn, resume := g.accept(t)
	t.Cleanup(func() {
		link.Close()
		conn.Close()
	})
	return link, conn, resume
}

func waitLinkEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestDialRequiresURL(t *testing.T) {
	d := &WSDialer{Log: logging.Nop()}
	_, err := d.Dial("acct1", nil)
	assert.Error(t, err)
}

func TestOpenResumesWithCredentials(t *testing.T) {
	g := newGateway(t)
	material := &session.Material{
		AccountID:   "acct1",
		Credentials: json.RawMessage(`{"seed":"abc123"}`),
	}

	_, _, resume := openLink(t, g, material)

	assert.Equal(t, "resume", resume.Op)
	assert.Equal(t, "acct1", resume.ID)
	assert.JSONEq(t, `{"seed":"abc123"}`, string(resume.Auth))

	headers := <-g.headers
	assert.Equal(t, "acct1", headers.Get("X-Account-Id"))
	assert.Equal(t, "https://gw.test", headers.Get("Origin"))
}

func TestGatewayFramesBecomeEvents(t *testing.T) {
	g := newGateway(t)
	link, conn, _ := openLink(t, g, nil)

	require.NoError(t, conn.WriteJSON(frame{Op: "qr", QR: "qr-payload"}))
	ev := waitLinkEvent(t, link.Events(), EventChallenge)
	assert.Equal(t, "qr-payload", ev.QR)

	require.NoError(t, conn.WriteJSON(frame{Op: "open", Identity: "+15550001111"}))
	ev = waitLinkEvent(t, link.Events(), EventOpen)
	assert.Equal(t, "+15550001111", ev.Identity)

	require.NoError(t, conn.WriteJSON(frame{Op: "message", Message: &RawMessage{
		From:    "19995550000@s.net",
		Content: &RawContent{Kind: "text", Text: "hola"},
	}}))
	ev = waitLinkEvent(t, link.Events(), EventMessage)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "hola", ev.Message.Content.Text)

	require.NoError(t, conn.WriteJSON(frame{Op: "close", Code: CloseLoggedOut}))
	ev = waitLinkEvent(t, link.Events(), EventClose)
	assert.Equal(t, CloseLoggedOut, ev.Code)
	assert.True(t, ev.LoggedOut)
}

func TestSendWritesFrames(t *testing.T) {
	g := newGateway(t)
	link, conn, _ := openLink(t, g, nil)

	id, err := link.Send(context.Background(), Outbound{
		To:   "+1999",
		Text: "caption text",
		Media: &domain.MediaOptions{
			URL:      "https://cdn.test/img.png",
			MimeType: "image/png",
			Caption:  "a picture",
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "send", f.Op)
	assert.Equal(t, id, f.ID)
	assert.Equal(t, "+1999", f.To)
	assert.Equal(t, "caption text", f.Text)
	assert.Equal(t, "https://cdn.test/img.png", f.MediaURL)
	assert.Equal(t, "image/png", f.MimeType)
	assert.Equal(t, "a picture", f.Caption)

	require.NoError(t, link.SendPresence(context.Background(), "+1999", PresenceComposing))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "presence", f.Op)
	assert.Equal(t, string(PresenceComposing), f.State)

	require.NoError(t, link.Logout(context.Background()))
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "logout", f.Op)
}

func TestSendRequiresRecipient(t *testing.T) {
	g := newGateway(t)
	link, _, _ := openLink(t, g, nil)

	_, err := link.Send(context.Background(), Outbound{Text: "no recipient"})
	assert.Error(t, err)
}

func TestAbnormalDropIsTransientClose(t *testing.T) {
	g := newGateway(t)
	link, conn, _ := openLink(t, g, nil)

	conn.Close()

	ev := waitLinkEvent(t, link.Events(), EventClose)
	assert.False(t, ev.LoggedOut)
}

func TestLocalCloseEmitsNoEvent(t *testing.T) {
	g := newGateway(t)
	link, _, _ := openLink(t, g, nil)

	require.NoError(t, link.Close())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-link.Events():
			if !ok {
				return
			}
			t.Fatalf("unexpected event after local close: %+v", ev)
		case <-deadline:
			t.Fatal("event channel never closed")
		}
	}
}

func TestSendBeforeOpenFails(t *testing.T) {
	g := newGateway(t)
	dialer := &WSDialer{URL: g.url(), Log: logging.Nop()}
	link, err := dialer.Dial("acct1", nil)
	require.NoError(t, err)

	_, err = link.Send(context.Background(), Outbound{To: "+1999", Text: "hi"})
	assert.Error(t, err)
}
