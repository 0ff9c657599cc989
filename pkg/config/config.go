package config

import "time"

// Config is the root configuration structure for dispatchd.
type Config struct {
	// Server contains the HTTP boundary configuration.
	Server ServerConfig `yaml:"server"`

	// Providers is the ordered upstream provider list.
	Providers []ProviderConfig `yaml:"providers"`

	// Breaker contains circuit-breaker tunables shared by all providers.
	Breaker BreakerConfig `yaml:"breaker"`

	// Dispatch contains dispatch-loop tunables.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Pricing contains the cost estimation table and its optional
	// hot-reload source.
	Pricing PricingConfig `yaml:"pricing"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Audit contains the optional persistent attempt trail configuration.
	Audit AuditConfig `yaml:"audit"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response
	// writes. It must exceed the dispatch overall deadline or in-flight
	// dispatches are cut off at the transport. Default: 90s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout. Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the graceful shutdown budget. Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProviderConfig describes one upstream provider.
type ProviderConfig struct {
	// ID uniquely identifies the provider.
	ID string `yaml:"id"`

	// Priority is the rank used for candidate ordering; lower is tried
	// earlier. Ties are broken by live health statistics.
	Priority int `yaml:"priority"`

	// BaseURL is the provider's API endpoint.
	BaseURL string `yaml:"base_url"`

	// CompletionPath is appended to BaseURL for completion calls.
	// Default: "/v1/completions"
	CompletionPath string `yaml:"completion_path"`

	// Model is the model identifier sent with each request.
	Model string `yaml:"model"`

	// CredentialRef names the credential resolved through the injected
	// credential source (an environment variable name by default). The
	// configuration never holds the raw secret.
	CredentialRef string `yaml:"credential_ref"`

	// Timeout is the per-attempt wall-clock budget. Default: 30s
	Timeout time.Duration `yaml:"timeout"`
}

// BreakerConfig contains circuit-breaker tunables.
type BreakerConfig struct {
	// FailureThreshold opens a circuit after this many consecutive
	// failures. Default: 3
	FailureThreshold int `yaml:"failure_threshold"`

	// WindowSize is the per-provider rolling window capacity. Default: 20
	WindowSize int `yaml:"window_size"`

	// MinSamples gates failure-rate evaluation until the window holds at
	// least this many outcomes. Default: 5
	MinSamples int `yaml:"min_samples"`

	// FailureRateThreshold opens a circuit when the window failure rate
	// exceeds this ratio. Default: 0.5
	FailureRateThreshold float64 `yaml:"failure_rate_threshold"`

	// CoolDown is how long an open circuit sheds traffic before a trial
	// attempt is allowed. Default: 30s
	CoolDown time.Duration `yaml:"cool_down"`
}

// DispatchConfig contains dispatch-loop tunables.
type DispatchConfig struct {
	// MaxAttempts is the hard cap on providers tried per dispatch.
	// Default: 4
	MaxAttempts int `yaml:"max_attempts"`

	// OverallDeadline caps the total wall-clock budget of one dispatch.
	// Default: 60s
	OverallDeadline time.Duration `yaml:"overall_deadline"`
}

// RateConfig is the pricing for one provider in USD per 1000 characters.
type RateConfig struct {
	// PromptPer1K is the cost per 1000 prompt characters.
	PromptPer1K float64 `yaml:"prompt_per_1k"`

	// CompletionPer1K is the cost per 1000 completion characters.
	CompletionPer1K float64 `yaml:"completion_per_1k"`
}

// PricingConfig contains the cost table configuration.
type PricingConfig struct {
	// Rates maps provider ID (or "default") to its rate.
	Rates map[string]RateConfig `yaml:"rates"`

	// Path optionally names a pricing file that overrides Rates and can be
	// hot-reloaded.
	Path string `yaml:"path"`

	// Watch enables fsnotify-based hot reload of Path.
	Watch bool `yaml:"watch"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json", "text"). Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is exposed.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path. Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name. Default: "dispatch"
	Namespace string `yaml:"namespace"`
}

// TelemetryConfig groups the observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AuditRetentionConfig controls pruning of persisted attempt records.
type AuditRetentionConfig struct {
	// Days is how long records are kept. Default: 30
	Days int `yaml:"days"`

	// Schedule is a cron expression for pruning runs.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// MaxRecords additionally caps the table size; 0 means unbounded.
	MaxRecords int64 `yaml:"max_records"`
}

// AuditConfig contains the optional persistent attempt-trail settings.
// When disabled (the default), the core keeps statistics in memory only.
type AuditConfig struct {
	// Enabled turns on persistent audit recording.
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file path. Default: "data/audit.db"
	Path string `yaml:"path"`

	// Driver selects the SQLite driver: "sqlite" (pure Go, default) or
	// "sqlite3" (cgo).
	Driver string `yaml:"driver"`

	// AsyncBuffer is the async writer channel size. Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// Retention controls automatic pruning.
	Retention AuditRetentionConfig `yaml:"retention"`
}
