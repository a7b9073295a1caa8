package types

import (
	"context"
)

// Session is one live handle to the messaging network. Exactly one exists at
// a time; a reconnect produces a fresh Session through the factory.
type Session interface {
	// Connect opens the transport and begins delivering events to the
	// handlers bound at session start.
	Connect(ctx context.Context) error

	// Disconnect tears down the transport and releases the handler
	// bindings. Safe to call more than once.
	Disconnect()

	// WipeCredentials signs the device out and deletes durable credential
	// storage. Used on terminal close; the session is unusable afterwards.
	WipeCredentials(ctx context.Context) error

	// Connected reports whether the transport is currently open and
	// authenticated.
	Connected() bool

	SendText(ctx context.Context, to, text string) (*SendResponse, error)
	SendMedia(ctx context.Context, to string, media *MediaAttachment) (*SendResponse, error)

	Directory
}

// Directory is the protocol library's contact-identity surface: the locally
// cached LID→phone mapping and the network lookup for phone numbers.
type Directory interface {
	// CachedPhoneForLID consults the library's local contact store for the
	// phone number behind an opaque LID. A miss is normal.
	CachedPhoneForLID(ctx context.Context, lid string) (string, bool)

	// LookupPhones queries the network directory for each phone number and
	// reports the routable JID and whether it is LID-form.
	LookupPhones(ctx context.Context, phones []string) ([]LookupEntry, error)
}

// SessionFactory builds sessions. Credential acquisition, version
// negotiation and event-handler registration all happen inside StartSession;
// the returned session has its handlers bound and is ready for Connect.
type SessionFactory interface {
	StartSession(ctx context.Context, handlers Handlers, content ContentSource) (Session, error)
}

// ContentSource answers the protocol library's retransmission callback:
// previously observed message content by (chat, message-id) key. Absence is
// an expected outcome, not an error.
type ContentSource interface {
	Content(chatJID, messageID string) ([]byte, bool)
}
