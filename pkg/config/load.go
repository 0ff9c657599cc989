package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Variables follow the naming
// convention DISPATCH_SECTION_FIELD (e.g., DISPATCH_SERVER_LISTEN_ADDRESS);
// per-provider overrides use DISPATCH_PROVIDER_<ID>_<FIELD> with the
// uppercased provider ID. Environment variables always take precedence over
// file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies DISPATCH_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("DISPATCH_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	overrideDuration("DISPATCH_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	overrideDuration("DISPATCH_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	overrideDuration("DISPATCH_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	overrideDuration("DISPATCH_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	for i := range cfg.Providers {
		applyProviderEnvOverrides(&cfg.Providers[i])
	}

	overrideInt("DISPATCH_BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	overrideInt("DISPATCH_BREAKER_WINDOW_SIZE", &cfg.Breaker.WindowSize)
	overrideInt("DISPATCH_BREAKER_MIN_SAMPLES", &cfg.Breaker.MinSamples)
	overrideDuration("DISPATCH_BREAKER_COOL_DOWN", &cfg.Breaker.CoolDown)
	if val := os.Getenv("DISPATCH_BREAKER_FAILURE_RATE_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Breaker.FailureRateThreshold = f
		}
	}

	overrideInt("DISPATCH_MAX_ATTEMPTS", &cfg.Dispatch.MaxAttempts)
	overrideDuration("DISPATCH_OVERALL_DEADLINE", &cfg.Dispatch.OverallDeadline)

	if val := os.Getenv("DISPATCH_PRICING_PATH"); val != "" {
		cfg.Pricing.Path = val
	}
	overrideBool("DISPATCH_PRICING_WATCH", &cfg.Pricing.Watch)

	if val := os.Getenv("DISPATCH_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("DISPATCH_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	overrideBool("DISPATCH_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	if val := os.Getenv("DISPATCH_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}

	overrideBool("DISPATCH_AUDIT_ENABLED", &cfg.Audit.Enabled)
	if val := os.Getenv("DISPATCH_AUDIT_PATH"); val != "" {
		cfg.Audit.Path = val
	}
	if val := os.Getenv("DISPATCH_AUDIT_DRIVER"); val != "" {
		cfg.Audit.Driver = val
	}
	overrideInt("DISPATCH_AUDIT_RETENTION_DAYS", &cfg.Audit.Retention.Days)
	if val := os.Getenv("DISPATCH_AUDIT_RETENTION_SCHEDULE"); val != "" {
		cfg.Audit.Retention.Schedule = val
	}
}

// applyProviderEnvOverrides applies overrides for one provider using the
// DISPATCH_PROVIDER_<ID>_<FIELD> convention. Dashes in the ID map to
// underscores.
func applyProviderEnvOverrides(p *ProviderConfig) {
	prefix := "DISPATCH_PROVIDER_" + strings.ToUpper(strings.ReplaceAll(p.ID, "-", "_")) + "_"

	if val := os.Getenv(prefix + "BASE_URL"); val != "" {
		p.BaseURL = val
	}
	if val := os.Getenv(prefix + "MODEL"); val != "" {
		p.Model = val
	}
	if val := os.Getenv(prefix + "CREDENTIAL_REF"); val != "" {
		p.CredentialRef = val
	}
	overrideDuration(prefix+"TIMEOUT", &p.Timeout)
	overrideInt(prefix+"PRIORITY", &p.Priority)
}

func overrideDuration(key string, target *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*target = d
		}
	}
}

func overrideInt(key string, target *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*target = i
		}
	}
}

func overrideBool(key string, target *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*target = b
		}
	}
}
