package models

// Config holds all environment-driven configuration for the bridge process.
// Parsed by internal/config via env struct tags.
type Config struct {
	Port       int    `env:"PORT" envDefault:"3001"`
	WebhookURL string `env:"WEBHOOK_URL"`
	APIKey     string `env:"API_KEY"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	SessionDir string `env:"SESSION_DIR" envDefault:"./session"`
	BridgeURL  string `env:"BRIDGE_URL"`

	Tracing TracingConfig `envPrefix:"WABRIDGE_TRACING_"`
}

// TracingConfig controls the OpenTelemetry exporter. Disabled by default.
type TracingConfig struct {
	Enabled      bool    `env:"ENABLED" envDefault:"false"`
	UseStdout    bool    `env:"STDOUT" envDefault:"false"`
	OTLPEndpoint string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	SampleRate   float64 `env:"SAMPLE_RATE" envDefault:"0.1"`
	Environment  string  `env:"ENVIRONMENT" envDefault:"development"`
}

// ConfigError indicates invalid or missing configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
