package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ppiankov/corroborate/internal/fetch"
	"github.com/ppiankov/corroborate/internal/logging"
	"github.com/ppiankov/corroborate/internal/model"
	"github.com/ppiankov/corroborate/internal/registry"
	"github.com/spf13/cobra"
)

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect the source registry",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, err := loadRegistry()
		if err != nil {
			return err
		}
		return printSources(cmd.OutOrStdout(), reg)
	},
}

var sourcesPairCmd = &cobra.Command{
	Use:   "pair <id> <id>",
	Short: "Show whether two sources may corroborate each other",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, _, err := loadRegistry()
		if err != nil {
			return err
		}
		return printPair(cmd.OutOrStdout(), reg, args[0], args[1])
	},
}

var sourcesCheckCmd = &cobra.Command{
	Use:   "check [id...]",
	Short: "Fetch headlines from sources without processing them",
	Long: `Check fetches each source (feed first, HTML fallback) and prints the
headlines it would feed into the pipeline. No oracle calls are made and no
state is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, cfg, err := loadRegistry()
		if err != nil {
			return err
		}

		var selected []model.SourceRecord
		if len(args) == 0 {
			selected = reg.Sources()
		}
		for _, id := range args {
			src, ok := reg.Get(id)
			if !ok {
				return fmt.Errorf("unknown source id: %s", id)
			}
			selected = append(selected, src)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		scraper := fetch.NewScraper(scraperOptions(cfg), logging.New(cfg.Log, nil))
		out := cmd.OutOrStdout()
		failed := 0
		for _, src := range selected {
			headlines, err := scraper.Scrape(ctx, src)
			if err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s: %v\n", src.Name, err)
				continue
			}
			fmt.Fprintf(out, "✓ %s (%d headlines)\n", src.Name, len(headlines))
			for _, h := range headlines {
				fmt.Fprintf(out, "    %s\n", h.Text)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d sources failed", failed, len(selected))
		}
		return nil
	},
}

func loadRegistry() (*registry.Registry, *model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := ensureSourcesFile(cfg.SourcesFile); err != nil {
		return nil, nil, err
	}
	reg, err := registry.Load(cfg.SourcesFile, cfg.UnrelatedRules.MaxSharedTopHolders)
	if err != nil {
		return nil, nil, err
	}
	return reg, cfg, nil
}

func printSources(w io.Writer, reg *registry.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tOWNER\tRATING\tFETCH")
	for _, src := range reg.Sources() {
		via := "html"
		if src.RSS != "" {
			via = "rss"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", src.ID, src.Name, src.Owner, model.FormatRating(src.Ratings.Accuracy), via)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d sources\n", reg.Len())
	return err
}

func printPair(w io.Writer, reg *registry.Registry, a, b string) error {
	for _, id := range []string{a, b} {
		if _, ok := reg.Get(id); !ok {
			return fmt.Errorf("unknown source id: %s", id)
		}
	}
	s1, _ := reg.Get(a)
	s2, _ := reg.Get(b)

	shared := reg.SharedHolders(a, b)
	fmt.Fprintf(w, "%s (%s) / %s (%s)\n", s1.Name, s1.Owner, s2.Name, s2.Owner)
	if len(shared) > 0 {
		fmt.Fprintf(w, "  Shared holders: %s\n", strings.Join(shared, ", "))
	}
	if reg.Unrelated(a, b) {
		fmt.Fprintln(w, "  ✓ independent: may corroborate each other")
	} else {
		fmt.Fprintln(w, "  ✗ related: cannot corroborate each other")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesPairCmd)
	sourcesCmd.AddCommand(sourcesCheckCmd)
}
