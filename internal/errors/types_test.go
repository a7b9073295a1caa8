package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorFormatting(t *testing.T) {
	plain := New(ErrCodeNotConnected, "Not connected to WhatsApp")
	assert.Equal(t, "NOT_CONNECTED: Not connected to WhatsApp", plain.Error())

	wrapped := Wrap(fmt.Errorf("dial tcp: refused"), ErrCodeSendFailed, "Failed to send message")
	assert.Equal(t, "SEND_FAILED: Failed to send message: dial tcp: refused", wrapped.Error())
	assert.Equal(t, "dial tcp: refused", wrapped.Unwrap().Error())
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeNotConnected, GetCode(New(ErrCodeNotConnected, "x")))
	assert.Equal(t, ErrCodeSendFailed, GetCode(fmt.Errorf("outer: %w", New(ErrCodeSendFailed, "x"))))
	assert.Equal(t, ErrCodeInternalError, GetCode(fmt.Errorf("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(WrapRetryable(fmt.Errorf("x"), ErrCodeTransientDisconnect, "drop")))
	assert.False(t, IsRetryable(New(ErrCodeSignedOut, "logged out")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Not connected to WhatsApp",
		UserMessage(New(ErrCodeNotConnected, "Not connected to WhatsApp")))

	assert.Equal(t, "Failed to send message: server closed stream",
		UserMessage(Wrap(fmt.Errorf("server closed stream"), ErrCodeSendFailed, "Failed to send message")))

	assert.Equal(t, "plain failure", UserMessage(fmt.Errorf("plain failure")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest,
		HTTPStatus(New(ErrCodeInvalidInput, "bad"), http.StatusInternalServerError))

	// The caller decides what a disconnected session means for its route.
	notConnected := New(ErrCodeNotConnected, "Not connected to WhatsApp")
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(notConnected, http.StatusInternalServerError))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(notConnected, http.StatusServiceUnavailable))

	assert.Equal(t, http.StatusInternalServerError,
		HTTPStatus(New(ErrCodeSendFailed, "failed"), http.StatusServiceUnavailable))
	assert.Equal(t, http.StatusInternalServerError,
		HTTPStatus(fmt.Errorf("plain"), http.StatusServiceUnavailable))
}
