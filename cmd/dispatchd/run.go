package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/colmeta/copilot-dispatch/pkg/audit"
	"github.com/colmeta/copilot-dispatch/pkg/config"
	"github.com/colmeta/copilot-dispatch/pkg/costs"
	"github.com/colmeta/copilot-dispatch/pkg/dispatch"
	"github.com/colmeta/copilot-dispatch/pkg/health"
	"github.com/colmeta/copilot-dispatch/pkg/metrics"
	"github.com/colmeta/copilot-dispatch/pkg/providers"
	"github.com/colmeta/copilot-dispatch/pkg/server"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the dispatch server",
	Long: `Start the dispatch server with the specified configuration.

The server listens on the configured address and shepherds completion
requests through the provider pool with health-aware failover.

Examples:
  # Start with default config
  dispatchd run

  # Start with custom config
  dispatchd run --config /etc/dispatchd/config.yaml

  # Override listen address
  dispatchd run --listen 0.0.0.0:8080

  # Validate config without starting server
  dispatchd run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	setupLogging(cfg.Telemetry.Logging)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("dispatchd v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cost table, optionally file-backed with hot reload.
	table, err := buildCostTable(cfg.Pricing)
	if err != nil {
		return fmt.Errorf("failed to build cost table: %w", err)
	}
	if cfg.Pricing.Watch {
		watcher, err := costs.NewWatcher(table, costs.WatcherConfig{Path: cfg.Pricing.Path})
		if err != nil {
			return fmt.Errorf("failed to create pricing watcher: %w", err)
		}
		defer watcher.Stop()
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Error("pricing watcher stopped", "error", err)
			}
		}()
		fmt.Printf("✓ Pricing hot reload enabled (%s)\n", cfg.Pricing.Path)
	}

	// Active provider set. A provider whose credential cannot be resolved
	// is excluded rather than failing startup; it is only fatal when the
	// active set ends up empty.
	creds := providers.EnvCredentialSource{}
	invokers, providerIDs, err := buildInvokers(cfg.Providers, creds, table)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Providers initialized (%d of %d configured)\n", len(invokers), len(cfg.Providers))

	trackers := health.NewSet(providerIDs, health.Config{
		WindowSize:           cfg.Breaker.WindowSize,
		FailureThreshold:     cfg.Breaker.FailureThreshold,
		FailureRateThreshold: cfg.Breaker.FailureRateThreshold,
		MinSamples:           cfg.Breaker.MinSamples,
		CoolDown:             cfg.Breaker.CoolDown,
	})

	aggregator := metrics.NewAggregator(trackers, cfg.Telemetry.Metrics.Namespace, nil)
	recorders := []dispatch.AttemptRecorder{aggregator}

	// Persistent audit trail (optional).
	var auditStore audit.Store
	if cfg.Audit.Enabled {
		sqliteCfg := audit.DefaultSQLiteConfig()
		sqliteCfg.Path = cfg.Audit.Path
		sqliteCfg.Driver = cfg.Audit.Driver

		store, err := audit.NewSQLiteStore(sqliteCfg)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer store.Close()
		auditStore = store

		recorderCfg := audit.DefaultRecorderConfig()
		recorderCfg.AsyncBuffer = cfg.Audit.AsyncBuffer
		auditRecorder := audit.NewRecorder(store, recorderCfg)
		defer auditRecorder.Close()
		recorders = append(recorders, auditRecorder)

		scheduler := audit.NewScheduler(store, audit.RetentionConfig{
			Days:       cfg.Audit.Retention.Days,
			Schedule:   cfg.Audit.Retention.Schedule,
			MaxRecords: cfg.Audit.Retention.MaxRecords,
		})
		if err := scheduler.Start(ctx); err != nil {
			slog.Warn("failed to start audit retention scheduler", "error", err)
		} else {
			defer scheduler.Stop()
		}

		fmt.Printf("✓ Audit trail enabled (%s)\n", cfg.Audit.Path)
	}

	dispatcher, err := dispatch.NewDispatcher(invokers, trackers, dispatch.Config{
		MaxAttempts:     cfg.Dispatch.MaxAttempts,
		OverallDeadline: cfg.Dispatch.OverallDeadline,
	}, recorders...)
	if err != nil {
		if errors.Is(err, providers.ErrNoProvidersConfigured) {
			return fmt.Errorf("no usable providers: every configured provider was excluded or none were configured")
		}
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	defer dispatcher.Close()

	srv := server.NewServer(cfg.Server, cfg.Telemetry.Metrics, dispatcher, aggregator, auditStore)

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Start(ctx)
}

// setupLogging installs the process-wide slog default per configuration.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildCostTable builds the pricing table from inline rates, overridden by
// the pricing file when one is configured.
func buildCostTable(cfg config.PricingConfig) (*costs.Table, error) {
	rates := make(map[string]costs.Rate, len(cfg.Rates))
	for id, r := range cfg.Rates {
		rates[id] = costs.Rate{
			PromptPer1K:     r.PromptPer1K,
			CompletionPer1K: r.CompletionPer1K,
		}
	}

	if cfg.Path != "" {
		fileRates, err := costs.LoadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load pricing file %q: %w", cfg.Path, err)
		}
		rates = fileRates
	}

	return costs.NewTable(rates), nil
}

// buildInvokers constructs HTTP invokers for every provider whose
// credential resolves. Excluded providers are logged and skipped.
func buildInvokers(configs []config.ProviderConfig, creds providers.CredentialSource, estimator providers.CostEstimator) ([]providers.Invoker, []string, error) {
	invokers := make([]providers.Invoker, 0, len(configs))
	ids := make([]string, 0, len(configs))

	for _, pc := range configs {
		desc := &providers.Descriptor{
			ID:             pc.ID,
			Priority:       pc.Priority,
			BaseURL:        pc.BaseURL,
			CompletionPath: pc.CompletionPath,
			Model:          pc.Model,
			CredentialRef:  pc.CredentialRef,
			Timeout:        pc.Timeout,
		}

		invoker, err := providers.NewHTTPInvoker(desc, creds, estimator, providers.DefaultHTTPInvokerConfig())
		if err != nil {
			if errors.Is(err, providers.ErrCredentialNotFound) {
				slog.Warn("excluding provider: credential not resolvable",
					"provider", pc.ID, "credential_ref", pc.CredentialRef)
				continue
			}
			return nil, nil, fmt.Errorf("failed to initialize provider %q: %w", pc.ID, err)
		}

		invokers = append(invokers, invoker)
		ids = append(ids, pc.ID)
	}

	if len(invokers) == 0 {
		return nil, nil, providers.ErrNoProvidersConfigured
	}

	return invokers, ids, nil
}
