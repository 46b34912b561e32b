// Package ingest normalizes raw protocol events into canonical messages.
package ingest

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/autoreply/internal/domain"
	"github.com/soyeahso/autoreply/internal/logging"
	"github.com/soyeahso/autoreply/internal/protocol"
)

// groupSuffix marks group-originated sender addresses.
const groupSuffix = "@g.us"

// Pipeline converts raw inbound events into canonical messages.
type Pipeline struct {
	log *logging.Logger
	now func() time.Time
}

// New creates a pipeline.
func New(log *logging.Logger) *Pipeline {
	return &Pipeline{log: log.Sub("ingest"), now: time.Now}
}

// Parse normalizes one raw message for the given account. The second return
// is false when the event is discarded (no content, or an echo of our own
// outbound traffic). Unrecognized content kinds are never discarded; they
// yield an unsupported-content record so unknown payloads stay visible.
func (p *Pipeline) Parse(accountID string, raw *protocol.RawMessage) (*domain.CanonicalMessage, bool) {
	if raw == nil || raw.Content == nil {
		return nil, false
	}
	if raw.FromSelf {
		p.log.Debug().Str("account", accountID).Msg("discarding echo")
		return nil, false
	}

	id := raw.ID
	if id == "" {
		id = uuid.New().String()
	}

	ts := p.now()
	if raw.Epoch > 0 {
		ts = time.Unix(raw.Epoch, 0)
	}

	kind, summary, mediaRef := classify(raw.Content)

	return &domain.CanonicalMessage{
		ID:                 id,
		SenderID:           normalizeSender(raw.From),
		RecipientAccountID: accountID,
		Kind:               kind,
		TextSummary:        summary,
		MediaRef:           mediaRef,
		Timestamp:          ts,
		IsGroupOrigin:      strings.HasSuffix(raw.From, groupSuffix),
		DisplayName:        raw.PushName,
	}, true
}

// classify derives kind, text summary and media reference from the payload's
// discriminated type.
func classify(c *protocol.RawContent) (domain.ContentKind, string, string) {
	switch c.Kind {
	case "text":
		return domain.KindText, c.Text, ""
	case "image":
		return domain.KindImage, captionOr(c, "[image]"), c.MediaURL
	case "video":
		return domain.KindVideo, captionOr(c, "[video]"), c.MediaURL
	case "audio":
		return domain.KindAudio, "[audio]", c.MediaURL
	case "document":
		return domain.KindDocument, captionOr(c, "[document]"), c.MediaURL
	case "sticker":
		return domain.KindSticker, "[sticker]", c.MediaURL
	case "location":
		return domain.KindLocation, "[location]", ""
	case "contact":
		return domain.KindContact, "[contact] " + c.Contact, ""
	default:
		return domain.KindUnsupported, domain.UnsupportedPlaceholder, ""
	}
}

func captionOr(c *protocol.RawContent, fallback string) string {
	if c.Caption != "" {
		return c.Caption
	}
	return fallback
}

// normalizeSender strips any device suffix after a colon, keeping the bare
// address stable across devices.
func normalizeSender(from string) string {
	if at := strings.Index(from, "@"); at > 0 {
		if colon := strings.Index(from[:at], ":"); colon > 0 {
			return from[:colon] + from[at:]
		}
	}
	return from
}
