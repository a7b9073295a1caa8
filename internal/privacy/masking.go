package privacy

import (
	"strings"
)

// MaskPhoneNumber masks a phone number showing only the last 4 digits
// Example: "+1234567890" -> "+******7890"
func MaskPhoneNumber(phone string) string {
	if phone == "" {
		return ""
	}

	if strings.HasPrefix(phone, "+") {
		if len(phone) == 1 {
			return phone
		}
		if len(phone) <= 5 {
			return "+" + strings.Repeat("*", len(phone)-1)
		}
		return "+" + strings.Repeat("*", len(phone)-5) + phone[len(phone)-4:]
	}

	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// MaskJID masks a chat or contact JID to show structure but hide the
// identifier part. Example: "1234567890@s.whatsapp.net" -> "****7890@s.whatsapp.net"
func MaskJID(jid string) string {
	if jid == "" {
		return ""
	}

	if strings.Contains(jid, "@") {
		parts := strings.SplitN(jid, "@", 2)
		userPart := parts[0]
		serverPart := "@" + parts[1]

		// Drop the device suffix before masking
		if idx := strings.IndexByte(userPart, ':'); idx >= 0 {
			userPart = userPart[:idx]
		}

		if len(userPart) <= 4 {
			return strings.Repeat("*", len(userPart)) + serverPart
		}
		return strings.Repeat("*", len(userPart)-4) + userPart[len(userPart)-4:] + serverPart
	}

	if len(jid) <= 4 {
		return strings.Repeat("*", len(jid))
	}
	return strings.Repeat("*", len(jid)-4) + jid[len(jid)-4:]
}

// MaskMessageID masks a message ID while preserving the tail for debugging.
func MaskMessageID(messageID string) string {
	return maskString(messageID, 8)
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}
