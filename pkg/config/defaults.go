package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 90 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Provider defaults
	DefaultProviderTimeout = 30 * time.Second
	DefaultCompletionPath  = "/v1/completions"

	// Breaker defaults
	DefaultFailureThreshold     = 3
	DefaultWindowSize           = 20
	DefaultMinSamples           = 5
	DefaultFailureRateThreshold = 0.5
	DefaultCoolDown             = 30 * time.Second

	// Dispatch defaults
	DefaultMaxAttempts     = 4
	DefaultOverallDeadline = 60 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsEnabled   = true
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "dispatch"

	// Audit defaults
	DefaultAuditPath        = "data/audit.db"
	DefaultAuditDriver      = "sqlite"
	DefaultAuditAsyncBuffer = 1000
	DefaultAuditRetention   = 30
	DefaultAuditPruneCron   = "0 3 * * *"
)

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Provider defaults
	for i := range cfg.Providers {
		if cfg.Providers[i].Timeout == 0 {
			cfg.Providers[i].Timeout = DefaultProviderTimeout
		}
		if cfg.Providers[i].CompletionPath == "" {
			cfg.Providers[i].CompletionPath = DefaultCompletionPath
		}
	}

	// Breaker defaults
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Breaker.WindowSize == 0 {
		cfg.Breaker.WindowSize = DefaultWindowSize
	}
	if cfg.Breaker.MinSamples == 0 {
		cfg.Breaker.MinSamples = DefaultMinSamples
	}
	if cfg.Breaker.FailureRateThreshold == 0 {
		cfg.Breaker.FailureRateThreshold = DefaultFailureRateThreshold
	}
	if cfg.Breaker.CoolDown == 0 {
		cfg.Breaker.CoolDown = DefaultCoolDown
	}

	// Dispatch defaults
	if cfg.Dispatch.MaxAttempts == 0 {
		cfg.Dispatch.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Dispatch.OverallDeadline == 0 {
		cfg.Dispatch.OverallDeadline = DefaultOverallDeadline
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Audit defaults
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = DefaultAuditPath
	}
	if cfg.Audit.Driver == "" {
		cfg.Audit.Driver = DefaultAuditDriver
	}
	if cfg.Audit.AsyncBuffer == 0 {
		cfg.Audit.AsyncBuffer = DefaultAuditAsyncBuffer
	}
	if cfg.Audit.Retention.Days == 0 {
		cfg.Audit.Retention.Days = DefaultAuditRetention
	}
	if cfg.Audit.Retention.Schedule == "" {
		cfg.Audit.Retention.Schedule = DefaultAuditPruneCron
	}
}

// NewDefault returns a configuration populated entirely from defaults,
// with no providers. Useful as a starting point in tests.
func NewDefault() *Config {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
