package whatsapp

import (
	"fmt"
	"strings"

	wmtypes "go.mau.fi/whatsmeow/types"
)

// ParseRecipient turns a send-request `to` value into a routable JID. Bare
// phone numbers become user JIDs; anything with a server suffix is parsed
// as-is, so group and LID chats work unchanged.
func ParseRecipient(to string) (wmtypes.JID, error) {
	if strings.Contains(to, "@") {
		jid, err := wmtypes.ParseJID(to)
		if err != nil {
			return wmtypes.EmptyJID, fmt.Errorf("invalid recipient %q: %w", to, err)
		}
		return jid, nil
	}

	return wmtypes.NewJID(strings.TrimPrefix(to, "+"), wmtypes.DefaultUserServer), nil
}

// ParseLID parses a LID in either bare ("123456") or JID ("123456@lid")
// form.
func ParseLID(lid string) (wmtypes.JID, error) {
	if strings.Contains(lid, "@") {
		jid, err := wmtypes.ParseJID(lid)
		if err != nil {
			return wmtypes.EmptyJID, fmt.Errorf("invalid LID %q: %w", lid, err)
		}
		return jid, nil
	}

	return wmtypes.NewJID(lid, wmtypes.HiddenUserServer), nil
}

// normalizePhoneQuery prepares a phone number for the network directory,
// which expects a leading +.
func normalizePhoneQuery(phone string) string {
	return "+" + strings.TrimPrefix(phone, "+")
}

// trimPhoneQuery maps a directory query back to the caller's phone format.
func trimPhoneQuery(query string) string {
	return strings.TrimPrefix(query, "+")
}
