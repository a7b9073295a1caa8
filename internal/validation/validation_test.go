package validation

import (
	"strings"
	"testing"

	"wabridge/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidatePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		wantErr bool
	}{
		{name: "valid", phone: "15551234567"},
		{name: "with plus", phone: "+15551234567"},
		{name: "with JID suffix", phone: "15551234567@s.whatsapp.net"},
		{name: "minimum length", phone: "12345"},
		{name: "empty", phone: "", wantErr: true},
		{name: "too short", phone: "1234", wantErr: true},
		{name: "too long", phone: strings.Repeat("1", 21), wantErr: true},
		{name: "letters", phone: "555CALLME99", wantErr: true},
		{name: "spaces", phone: "1555 123 4567", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhoneNumber(tt.phone)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRecipient(t *testing.T) {
	assert.NoError(t, ValidateRecipient("15551234567"))
	assert.NoError(t, ValidateRecipient("12036304@g.us"))
	assert.NoError(t, ValidateRecipient("200300400@lid"))

	err := ValidateRecipient("")
	assert.EqualError(t, err, "INVALID_INPUT: Missing 'to' field")

	assert.Error(t, ValidateRecipient("@lid"))
	assert.Error(t, ValidateRecipient("123456@"))
	assert.Error(t, ValidateRecipient("abcd"))
}

func TestValidateMessageText(t *testing.T) {
	assert.NoError(t, ValidateMessageText("hello"))

	err := ValidateMessageText("")
	assert.Error(t, err)
	assert.Equal(t, "Missing message text", errors.UserMessage(err))

	assert.Error(t, ValidateMessageText(strings.Repeat("a", 65537)))
}
