package domain

import "time"

// ContentKind classifies the payload of an inbound message.
type ContentKind string

const (
	KindText        ContentKind = "text"
	KindImage       ContentKind = "image"
	KindVideo       ContentKind = "video"
	KindAudio       ContentKind = "audio"
	KindDocument    ContentKind = "document"
	KindSticker     ContentKind = "sticker"
	KindLocation    ContentKind = "location"
	KindContact     ContentKind = "contact"
	KindUnsupported ContentKind = "unsupported"
)

// UnsupportedPlaceholder is the fixed text summary attached to payload kinds
// the pipeline does not recognize. Unknown kinds are forwarded, never dropped.
const UnsupportedPlaceholder = "[unsupported content]"

// CanonicalMessage is a normalized inbound message, independent of the
// underlying protocol's payload shape.
type CanonicalMessage struct {
	ID                 string      `json:"id"`
	SenderID           string      `json:"senderId"`
	RecipientAccountID string      `json:"recipientAccountId"`
	Kind               ContentKind `json:"kind"`
	TextSummary        string      `json:"textSummary"`
	MediaRef           string      `json:"mediaRef,omitempty"`
	Timestamp          time.Time   `json:"timestamp"`
	IsGroupOrigin      bool        `json:"isGroupOrigin"`
	DisplayName        string      `json:"displayName,omitempty"`
}

// MediaOptions carries optional media parameters for an outbound send.
type MediaOptions struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Caption  string `json:"caption,omitempty"`
}
