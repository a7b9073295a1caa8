package constants

// Default server configuration values
const (
	DefaultServerPort            = 3001
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Connection lifecycle values
const (
	DefaultReconnectDelayMs        = 3000
	DefaultCredentialInitAttempts  = 3
	DefaultCredentialInitBackoffMs = 500
	DefaultCredentialInitMaxMs     = 5000
	DefaultMaxMessageRetries       = 5
)

// Store configuration values
const (
	DefaultRetransmissionCacheSize = 5000
	DefaultMappingFlushDebounceMs  = 2000
	DefaultPushNameCacheSize       = 1024
)

// Webhook delivery values
const (
	DefaultWebhookTimeoutSec = 10
	WebhookSecretHeader      = "X-Webhook-Secret"
)

// Media send values
const (
	DefaultMediaDownloadTimeoutSec = 30
	DefaultMaxMediaDownloadMB      = 50
)

// QR rendering values
const (
	DefaultQRCodeSizePx = 256
)

// Validation limits
const (
	MinPhoneNumberLength = 5
	MaxPhoneNumberLength = 20
	MaxResolveBatchSize  = 50
	MaxMessageLength     = 65536
)

// Encryption settings for the mapping document
const (
	EncryptionSalt            = "wabridge-lidmap-salt-v1"
	EncryptionIterations      = 100000
	EncryptionKeySize         = 32
	EncryptionNonceSize       = 12
	MinEncryptionSecretLength = 32
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)
