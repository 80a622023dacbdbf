package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FranksOps/magpie/internal/serp"
	"github.com/spf13/cobra"
)

// NewOverviewCmd creates the overview command.
func NewOverviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Collect only the Google AI Overview for each query",
		Long: `Overview runs each query against the vendor and captures the AI Overview
block (or the nearest answer surface the vendor returns instead), without
fetching or extracting any result pages.

Examples:
  magpie overview --vendor serpapi -q "what is example-store known for"

  # Several queries, slower cadence, custom output file
  magpie overview --vendor searchapi -q "query one" -q "query two" \
    --delay 10s -o overviews.json`,
		RunE: runOverviewCmd,
	}

	cmd.Flags().String("vendor", "", "Search vendor: serpapi, searchapi, scraperapi, browser")
	cmd.Flags().StringArrayP("query", "q", nil, "Query to collect the overview for (repeatable)")
	cmd.Flags().Duration("delay", 5*time.Second, "Pause between vendor calls")
	cmd.Flags().StringP("output", "o", "magpie_overviews.json", "Path for the overview dump (JSON)")
	cmd.Flags().Duration("timeout", 0, "Per-request timeout")

	return cmd
}

// runOverviewCmd executes the overview command.
func runOverviewCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("vendor") {
		cfg.Vendor, _ = f.GetString("vendor")
	}
	if f.Changed("query") {
		cfg.Queries, _ = f.GetStringArray("query")
	}
	if f.Changed("timeout") {
		cfg.Timeout, _ = f.GetDuration("timeout")
	}
	delay, _ := f.GetDuration("delay")
	output, _ := f.GetString("output")

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(getVerboseFlag(cmd))
	slog.SetDefault(logger)

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	op, ok := provider.(serp.OverviewProvider)
	if !ok {
		return fmt.Errorf("vendor %q cannot return AI Overviews", provider.Name())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	overviews, runErr := collectOverviews(ctx, op, cfg.Queries, delay, logger)

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(overviews); err != nil {
		return fmt.Errorf("encode overviews: %w", err)
	}

	fmt.Printf("\nWrote %d overviews to %s\n", len(overviews), output)

	if runErr != nil {
		// Whatever was collected is already on disk; fail the run only when
		// there is nothing to show for it.
		if len(overviews) == 0 {
			return runErr
		}
		fmt.Fprintf(os.Stderr, "\nWarning: run ended early: %v\n", runErr)
	}

	return nil
}

// collectOverviews runs each query through the vendor with a pause between
// calls. Rejected credentials abort the remaining queries; any other failure
// skips just its query.
func collectOverviews(ctx context.Context, op serp.OverviewProvider, queries []string, delay time.Duration, logger *slog.Logger) ([]*serp.Overview, error) {
	overviews := make([]*serp.Overview, 0, len(queries))
	for i, query := range queries {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return overviews, ctx.Err()
			}
		}

		fmt.Printf("[%d/%d] %s\n", i+1, len(queries), query)

		o, err := op.Overview(ctx, query)
		if err != nil {
			var authErr *serp.AuthError
			if errors.As(err, &authErr) {
				logger.Error("vendor rejected credentials, aborting",
					"vendor", authErr.Vendor, "query", query)
				return overviews, err
			}
			logger.Warn("overview fetch failed", "query", query, "err", err)
			continue
		}
		if o == nil {
			fmt.Println("  no overview shown")
			continue
		}
		fmt.Printf("  captured %d chars, %d links\n", len(o.Content), len(o.Links))
		overviews = append(overviews, o)
	}
	return overviews, nil
}
