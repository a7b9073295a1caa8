package models

// ConnectionState describes the lifecycle state of the single WhatsApp session.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStatePairingReady ConnectionState = "qr_ready"
	ConnectionStateConnected    ConnectionState = "connected"
)

// SessionInfo is the supervisor's snapshot of the session. It is copied out
// under the supervisor's lock, so readers always see a consistent view.
type SessionInfo struct {
	State          ConnectionState `json:"status"`
	ConnectedPhone string          `json:"phone,omitempty"`
	PairingCode    string          `json:"-"`
	LastError      string          `json:"error,omitempty"`
}

// LookupResult is the outcome of a forward directory lookup for one phone
// number. Either JID/IsLID are set or Error is.
type LookupResult struct {
	JID   string `json:"jid,omitempty"`
	IsLID bool   `json:"isLid"`
	Error string `json:"error,omitempty"`
}
