package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/spf13/cobra"
)

// queueCmd represents the queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the pending queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List facts waiting for a second source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		items, err := st.LoadQueue(context.Background())
		if err != nil {
			return fmt.Errorf("load queue: %w", err)
		}
		return printQueue(cmd.OutOrStdout(), items, time.Now().UTC(), cfg.Thresholds.QueueTimeout())
	},
}

func printQueue(w io.Writer, items []model.QueueItem, now time.Time, timeout time.Duration) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "Queue is empty")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGE\tEXPIRES IN\tSOURCE\tCONF\tFACT")
	for _, it := range items {
		age := now.Sub(it.Timestamp)
		left := timeout - age
		if left < 0 {
			left = 0
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\n",
			age.Round(time.Minute), left.Round(time.Minute), it.SourceName, it.Confidence, logging.Short(it.Fact, 70))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d pending\n", len(items))
	return err
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
}
