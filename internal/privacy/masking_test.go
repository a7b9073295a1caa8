package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "with plus", input: "+15551234567", expected: "+*******4567"},
		{name: "without plus", input: "15551234567", expected: "*******4567"},
		{name: "short with plus", input: "+123", expected: "+***"},
		{name: "short without plus", input: "123", expected: "***"},
		{name: "only plus", input: "+", expected: "+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskPhoneNumber(tt.input))
		})
	}
}

func TestMaskJID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "user JID", input: "15551234567@s.whatsapp.net", expected: "*******4567@s.whatsapp.net"},
		{name: "device suffix dropped", input: "15551234567:3@s.whatsapp.net", expected: "*******4567@s.whatsapp.net"},
		{name: "lid JID", input: "200300400@lid", expected: "*****0400@lid"},
		{name: "short user part", input: "123@lid", expected: "***@lid"},
		{name: "no server", input: "15551234567", expected: "*******4567"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskJID(tt.input))
		})
	}
}

func TestMaskMessageID(t *testing.T) {
	assert.Equal(t, "", MaskMessageID(""))
	assert.Equal(t, "********", MaskMessageID("ABCD1234"))
	assert.Equal(t, "********97E8F0AB", MaskMessageID("26A1916B97E8F0AB"))
	assert.Equal(t, "***************6B97E8F0", MaskMessageID("3EB0C431C26A1916B97E8F0"))
}
