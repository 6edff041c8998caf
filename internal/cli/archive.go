package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/runner"
	"github.com/spf13/cobra"
)

var archiveDay string

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Compress finished daily logs",
	Long: `Archive gzips every daily log older than today into
<archive_dir>/<year>/<date>.txt.gz and removes the day's live state.
The run loop does this automatically at the first cycle after midnight UTC.

Example:
  corroborate archive
  corroborate archive --day 2026-05-03`,
	Args: cobra.NoArgs,
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.Flags().StringVar(&archiveDay, "day", "", "archive this day (YYYY-MM-DD) only")
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if archiveDay != "" {
		if _, err := time.Parse("2006-01-02", archiveDay); err != nil {
			return fmt.Errorf("invalid --day %q: expected YYYY-MM-DD", archiveDay)
		}
		path, err := st.Archive(ctx, archiveDay)
		if err != nil {
			return fmt.Errorf("archive %s: %w", archiveDay, err)
		}
		if path == "" {
			fmt.Fprintf(out, "No daily log for %s (live state cleared)\n", archiveDay)
			return nil
		}
		fmt.Fprintf(out, "✓ Archived %s\n", path)
		return nil
	}

	r := runner.New(runner.OptionsFromConfig(cfg), runner.Deps{Store: st})
	archived, err := r.ArchivePending(ctx, model.Day(time.Now()))
	for _, path := range archived {
		fmt.Fprintf(out, "✓ Archived %s\n", path)
	}
	if err != nil {
		return err
	}
	if len(archived) == 0 {
		fmt.Fprintln(out, "Nothing to archive")
	}
	return nil
}
