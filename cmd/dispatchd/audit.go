package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/colmeta/copilot-dispatch/pkg/audit"
	"github.com/colmeta/copilot-dispatch/pkg/config"
)

var auditFlags struct {
	provider  string
	timeRange string
	limit     int
	format    string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the persisted audit trail",
	Long: `Query persisted attempt records from the audit database.

Requires audit to be enabled in the configuration; the command opens the
same database the server writes to.

Examples:
  # Show the most recent attempts
  dispatchd audit

  # Attempts against one provider
  dispatchd audit --provider openai-primary --limit 50

  # Attempts in a time range
  dispatchd audit --time-range "2026-08-01T00:00:00Z/2026-08-02T00:00:00Z"

  # Machine-readable output
  dispatchd audit --format json`,
	RunE: queryAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditFlags.provider, "provider", "", "restrict to one provider")
	auditCmd.Flags().StringVar(&auditFlags.timeRange, "time-range", "", "RFC3339 interval start/end")
	auditCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "maximum records returned")
	auditCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json")
}

func queryAudit(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Audit.Enabled {
		return fmt.Errorf("audit is not enabled in %s", cfgFile)
	}

	sqliteCfg := audit.DefaultSQLiteConfig()
	sqliteCfg.Path = cfg.Audit.Path
	sqliteCfg.Driver = cfg.Audit.Driver

	store, err := audit.NewSQLiteStore(sqliteCfg)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer store.Close()

	filter := audit.Filter{
		ProviderID: auditFlags.provider,
		Limit:      auditFlags.limit,
	}
	if auditFlags.timeRange != "" {
		since, until, err := parseTimeRange(auditFlags.timeRange)
		if err != nil {
			return err
		}
		filter.Since = since
		filter.Until = until
	}

	records, err := store.Query(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("audit query failed: %w", err)
	}

	if auditFlags.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Println("No records found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tDISPATCH\tPROVIDER\tOUTCOME\tLATENCY\tSTATUS\tCOST")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%d\t$%.6f\n",
			r.CreatedAt.Format(time.RFC3339),
			shortID(r.DispatchID),
			r.ProviderID,
			r.Outcome,
			r.LatencyMS,
			r.StatusCode,
			r.EstimatedCost,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d record(s)\n", len(records))

	return nil
}

// parseTimeRange parses an RFC3339 interval of the form "start/end".
func parseTimeRange(s string) (time.Time, time.Time, error) {
	var since, until time.Time

	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return since, until, fmt.Errorf("time range must be of the form start/end, got %q", s)
	}

	since, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return since, until, fmt.Errorf("invalid interval start: %w", err)
	}
	until, err = time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return since, until, fmt.Errorf("invalid interval end: %w", err)
	}
	if !until.After(since) {
		return since, until, fmt.Errorf("interval end must be after start")
	}

	return since, until, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
