package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for errors. It assumes defaults have
// already been applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address must not be empty")
	}
	if cfg.Server.WriteTimeout <= cfg.Dispatch.OverallDeadline {
		return fmt.Errorf("server.write_timeout (%s) must exceed dispatch.overall_deadline (%s)",
			cfg.Server.WriteTimeout, cfg.Dispatch.OverallDeadline)
	}

	if err := validateProviders(cfg.Providers); err != nil {
		return err
	}
	if err := validateBreaker(&cfg.Breaker); err != nil {
		return err
	}
	if err := validateDispatch(&cfg.Dispatch); err != nil {
		return err
	}
	if err := validatePricing(&cfg.Pricing); err != nil {
		return err
	}
	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return err
	}
	if err := validateAudit(&cfg.Audit); err != nil {
		return err
	}

	return nil
}

func validateProviders(providers []ProviderConfig) error {
	seen := make(map[string]bool, len(providers))
	for i, p := range providers {
		if p.ID == "" {
			return fmt.Errorf("providers[%d]: id must not be empty", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("providers[%d]: duplicate provider id %q", i, p.ID)
		}
		seen[p.ID] = true

		if p.BaseURL == "" {
			return fmt.Errorf("provider %q: base_url must not be empty", p.ID)
		}
		if !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
			return fmt.Errorf("provider %q: base_url must start with http:// or https://", p.ID)
		}
		if p.CredentialRef == "" {
			return fmt.Errorf("provider %q: credential_ref must not be empty", p.ID)
		}
		if p.Model == "" {
			return fmt.Errorf("provider %q: model must not be empty", p.ID)
		}
		if p.Timeout <= 0 {
			return fmt.Errorf("provider %q: timeout must be positive", p.ID)
		}
		if p.Priority < 0 {
			return fmt.Errorf("provider %q: priority must not be negative", p.ID)
		}
	}
	return nil
}

func validateBreaker(b *BreakerConfig) error {
	if b.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be at least 1, got %d", b.FailureThreshold)
	}
	if b.WindowSize < 1 {
		return fmt.Errorf("breaker.window_size must be at least 1, got %d", b.WindowSize)
	}
	if b.MinSamples < 1 {
		return fmt.Errorf("breaker.min_samples must be at least 1, got %d", b.MinSamples)
	}
	if b.MinSamples > b.WindowSize {
		return fmt.Errorf("breaker.min_samples (%d) must not exceed breaker.window_size (%d)",
			b.MinSamples, b.WindowSize)
	}
	if b.FailureRateThreshold <= 0 || b.FailureRateThreshold > 1 {
		return fmt.Errorf("breaker.failure_rate_threshold must be in (0, 1], got %g", b.FailureRateThreshold)
	}
	if b.CoolDown <= 0 {
		return fmt.Errorf("breaker.cool_down must be positive, got %s", b.CoolDown)
	}
	return nil
}

func validateDispatch(d *DispatchConfig) error {
	if d.MaxAttempts < 1 {
		return fmt.Errorf("dispatch.max_attempts must be at least 1, got %d", d.MaxAttempts)
	}
	if d.OverallDeadline <= 0 {
		return fmt.Errorf("dispatch.overall_deadline must be positive, got %s", d.OverallDeadline)
	}
	return nil
}

func validatePricing(p *PricingConfig) error {
	for id, rate := range p.Rates {
		if rate.PromptPer1K < 0 || rate.CompletionPer1K < 0 {
			return fmt.Errorf("pricing.rates[%q]: rates must not be negative", id)
		}
	}
	if p.Watch && p.Path == "" {
		return fmt.Errorf("pricing.watch requires pricing.path to be set")
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) error {
	switch t.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level must be one of debug, info, warn, error; got %q", t.Logging.Level)
	}
	switch t.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format must be json or text, got %q", t.Logging.Format)
	}
	if t.Metrics.Enabled {
		if t.Metrics.Path == "" || !strings.HasPrefix(t.Metrics.Path, "/") {
			return fmt.Errorf("telemetry.metrics.path must start with /, got %q", t.Metrics.Path)
		}
		if t.Metrics.Namespace == "" {
			return fmt.Errorf("telemetry.metrics.namespace must not be empty")
		}
	}
	return nil
}

func validateAudit(a *AuditConfig) error {
	if !a.Enabled {
		return nil
	}
	if a.Path == "" {
		return fmt.Errorf("audit.path must not be empty when audit is enabled")
	}
	switch a.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("audit.driver must be sqlite or sqlite3, got %q", a.Driver)
	}
	if a.AsyncBuffer < 1 {
		return fmt.Errorf("audit.async_buffer must be at least 1, got %d", a.AsyncBuffer)
	}
	if a.Retention.Days < 1 {
		return fmt.Errorf("audit.retention.days must be at least 1, got %d", a.Retention.Days)
	}
	if _, err := cron.ParseStandard(a.Retention.Schedule); err != nil {
		return fmt.Errorf("audit.retention.schedule is not a valid cron expression: %w", err)
	}
	if a.Retention.MaxRecords < 0 {
		return fmt.Errorf("audit.retention.max_records must not be negative, got %d", a.Retention.MaxRecords)
	}
	return nil
}
