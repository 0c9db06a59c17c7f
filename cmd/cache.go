package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deepbiz/directory/internal/model"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the company analysis cache",
}

// -- cache stats --

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache totals and the most requested companies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		top, _ := cmd.Flags().GetInt("top")
		stats, err := newAnalysisService(st).Stats(ctx, top)
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}
		formatCacheStats(os.Stdout, stats)
		return nil
	},
}

// -- cache sweep --

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired analyses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := newAnalysisService(st).Sweep(ctx)
		if err != nil {
			return eris.Wrap(err, "cache sweep")
		}
		_, _ = fmt.Fprintf(os.Stdout, "Deleted %d expired entries.\n", n)
		return nil
	},
}

// formatCacheStats writes cache totals and the top entries to w.
func formatCacheStats(out io.Writer, s *model.CacheStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total entries:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Active:\t%d\n", s.Active)
	_, _ = fmt.Fprintf(w, "Expired:\t%d\n", s.Expired)
	_ = w.Flush()

	if len(s.Top) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DOMAIN\tHITS\tANALYZED\tLAST_ACCESSED")
	_, _ = fmt.Fprintln(w, "------\t----\t--------\t-------------")
	for _, e := range s.Top {
		last := "-"
		if !e.LastAccessedAt.IsZero() {
			last = e.LastAccessedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			e.Domain,
			e.HitCount,
			e.AnalyzedAt.Format("2006-01-02 15:04"),
			last,
		)
	}
	_ = w.Flush()
}

func init() {
	cacheStatsCmd.Flags().Int("top", 10, "number of most requested entries to list")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
	rootCmd.AddCommand(cacheCmd)
}
