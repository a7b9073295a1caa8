package validation

import (
	"fmt"
	"strings"
	"unicode"

	"wabridge/internal/constants"
	"wabridge/internal/errors"
)

// ValidatePhoneNumber validates phone number format and length. Accepts bare
// digits, a leading +, or a full JID whose user part is numeric.
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "+")
	if idx := strings.IndexByte(cleaned, '@'); idx >= 0 {
		cleaned = cleaned[:idx]
	}

	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}

	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}

	return nil
}

// ValidateRecipient validates the `to` field of a send request. Group and
// LID JIDs are allowed through as-is; anything without a server suffix must
// look like a phone number.
func ValidateRecipient(to string) error {
	if to == "" {
		return errors.New(errors.ErrCodeInvalidInput, "Missing 'to' field")
	}

	if strings.Contains(to, "@") {
		parts := strings.SplitN(to, "@", 2)
		if parts[0] == "" || parts[1] == "" {
			return errors.New(errors.ErrCodeInvalidInput, "invalid recipient JID")
		}
		return nil
	}

	return ValidatePhoneNumber(to)
}

// ValidateMessageText validates the text body of a send request.
func ValidateMessageText(text string) error {
	if text == "" {
		return errors.New(errors.ErrCodeInvalidInput, "Missing message text")
	}

	if len(text) > constants.MaxMessageLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("message too long (max %d bytes)", constants.MaxMessageLength))
	}

	return nil
}
