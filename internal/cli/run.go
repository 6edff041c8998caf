package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/corroborate/internal/runner"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the polling loop",
	Long: `Run processes a cycle every timing.scrape_interval_minutes until the
kill switch file appears or the process receives SIGINT/SIGTERM.

A failed cycle raises an alert and waits timing.error_cooldown before
retrying.

Example:
  corroborate run
  corroborate run --sources ./sources.yaml --data-dir ./data
  CORROBORATE_LLM_PROVIDER=ollama CORROBORATE_LLM_MODEL=llama3.1 corroborate run`,
	Args: cobra.NoArgs,
	RunE: runLoop,
}

// cycleCmd represents the cycle command
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run a single processing cycle",
	Long: `Cycle archives finished days, scrapes every source once, processes the
headlines and exits with a summary.`,
	Args: cobra.NoArgs,
	RunE: runOneCycle,
}

var skipCheck bool

func init() {
	runCmd.Flags().BoolVar(&skipCheck, "skip-check", false, "start without checking that the LLM provider is reachable")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cycleCmd)
}

func runLoop(cmd *cobra.Command, args []string) error {
	a, err := setupPipeline()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !skipCheck && !a.provider.IsAvailable(ctx) {
		return fmt.Errorf("LLM provider %s is not available (use --skip-check to start anyway)", a.provider.Name())
	}

	if addr := a.cfg.Metrics.Addr; addr != "" {
		go func() {
			if err := a.metrics.Serve(ctx, addr); err != nil {
				a.logger.Error("metrics listener failed", "addr", addr, "err", err)
			}
		}()
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Corroborate\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Sources:      %d\n", a.sources.Len())
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", a.cfg.LLM.Provider, a.cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  Interval:     %v\n", a.cfg.Timing.ScrapeInterval())
	fmt.Fprintf(os.Stderr, "  Store:        %s (%s)\n", a.cfg.Store.Backend, a.cfg.Store.DataDir)
	fmt.Fprintf(os.Stderr, "  Kill switch:  %s\n", a.cfg.KillSwitch)
	fmt.Fprintf(os.Stderr, "\n")

	return a.runner.Run(ctx)
}

func runOneCycle(cmd *cobra.Command, args []string) error {
	a, err := setupPipeline()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	stats, err := a.runner.RunCycle(ctx)
	printCycleSummary(cmd.OutOrStdout(), stats, time.Since(start))
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}
	return nil
}

func setupPipeline() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := ensureSourcesFile(cfg.SourcesFile); err != nil {
		return nil, err
	}
	return newApp(cfg)
}

func printCycleSummary(w io.Writer, stats runner.CycleStats, elapsed time.Duration) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Cycle Complete\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Headlines:    %d (%d already processed)\n", stats.Headlines, stats.Cached)
	fmt.Fprintf(w, "  Rejected:     %d\n", stats.Rejected)
	fmt.Fprintf(w, "  Errors:       %d\n", stats.ExtractErrors)
	fmt.Fprintf(w, "  Duplicates:   %d\n", stats.Duplicates)
	fmt.Fprintf(w, "  Queued:       %d\n", stats.Queued)
	fmt.Fprintf(w, "  Published:    %d\n", stats.Published)
	fmt.Fprintf(w, "  Expired:      %d\n", stats.Expired)
	fmt.Fprintf(w, "  Queue size:   %d\n", stats.QueueSize)
	for _, path := range stats.Archived {
		fmt.Fprintf(w, "  Archived:     %s\n", path)
	}
	fmt.Fprintf(w, "  Elapsed:      %v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "\n")
}
