package models

// WebhookEvent is the normalized inbound-message notification posted to the
// configured webhook endpoint. Ephemeral: constructed, delivered, discarded.
type WebhookEvent struct {
	From      string `json:"from"`
	FromLID   string `json:"from_lid"`
	FromJID   string `json:"from_jid"`
	ChatID    string `json:"chat_id"`
	FromName  string `json:"from_name"`
	Message   string `json:"message"`
	MessageID string `json:"message_id"`
}
