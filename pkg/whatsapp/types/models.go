package types

import (
	"time"
)

// Handlers is the bounded set of event bindings a session accepts. They are
// established once at session start and torn down when the session closes,
// so reconnects never accumulate duplicate subscriptions. Nil handlers are
// skipped.
type Handlers struct {
	OnPairingCode  func(code string)
	OnConnected    func(selfJID string)
	OnDisconnected func(d Disconnect)
	OnMessage      func(m *InboundMessage)
	OnContact      func(u ContactUpdate)
}

// Disconnect describes a close event. Terminal means the account was signed
// out remotely and the credentials are no longer valid; everything else is a
// transient drop the caller may recover from by reconnecting.
type Disconnect struct {
	Terminal bool
	Reason   string
}

// MessageContent carries the text-bearing variants of a message body. At
// most one is set; a message with neither has no extractable text.
type MessageContent struct {
	Conversation string
	ExtendedText string
}

// InboundMessage is a normalized message event. Payload is the opaque
// serialized content blob a ContentSource must return for retransmission.
type InboundMessage struct {
	MessageID string
	ChatJID   string
	SenderJID string
	// SenderAltJID is the sender's alternate-form identifier (the LID when
	// SenderJID is phone-based, or vice versa). Empty if unknown.
	SenderAltJID string
	PushName     string
	FromMe       bool
	IsGroup      bool
	Content      MessageContent
	Payload      []byte
	Timestamp    time.Time
}

// ContactUpdate is a contact-sync event correlating a phone-based JID with
// its LID form and display name. Either side may be empty.
type ContactUpdate struct {
	JID      string
	LID      string
	FullName string
}

// SendResponse is the result of a successful outbound send. ChatJID is the
// fully resolved destination; Payload is the serialized content blob for the
// retransmission store, keyed by (ChatJID, MessageID).
type SendResponse struct {
	MessageID string
	ChatJID   string
	Timestamp time.Time
	Payload   []byte
}

// LookupEntry is one phone number's directory lookup outcome.
type LookupEntry struct {
	Query      string
	JID        string
	IsLID      bool
	Registered bool
}

// MediaKind selects the protocol-level media message variant.
type MediaKind string

const (
	MediaKindImage    MediaKind = "image"
	MediaKindVideo    MediaKind = "video"
	MediaKindAudio    MediaKind = "audio"
	MediaKindDocument MediaKind = "document"
)

// MediaAttachment is an outbound media payload.
type MediaAttachment struct {
	Data     []byte
	MimeType string
	FileName string
	Caption  string
	Kind     MediaKind
}
