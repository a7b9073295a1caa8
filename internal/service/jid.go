package service

import (
	"strings"
)

const (
	lidServer   = "lid"
	phoneServer = "s.whatsapp.net"
)

// splitJID splits "user@server" into its parts. A missing server comes back
// empty.
func splitJID(jid string) (user, server string) {
	if idx := strings.IndexByte(jid, '@'); idx >= 0 {
		return jid[:idx], jid[idx+1:]
	}
	return jid, ""
}

// isLIDJID reports whether a JID is in opaque-identifier form.
func isLIDJID(jid string) bool {
	_, server := splitJID(jid)
	return server == lidServer
}

// phoneFromSelfJID extracts the phone number from the library's
// self-identifier, which carries a device suffix ("15551234567:3@s.whatsapp.net").
func phoneFromSelfJID(self string) string {
	user, _ := splitJID(self)
	if idx := strings.IndexByte(user, ':'); idx >= 0 {
		user = user[:idx]
	}
	return user
}
