package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/deepbiz/directory/internal/business"
	"github.com/deepbiz/directory/internal/resolve"
	"github.com/deepbiz/directory/internal/store"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge listing-only businesses into matching map businesses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("merge"); err != nil {
			return err
		}
		return withIngest(cmd.Context(), func(ctx context.Context, st store.Store, m *resolve.Matcher) error {
			_, err := newMergePass(st, m).Run(ctx)
			return err
		})
	},
}

func newDetailsUpdater(st store.Store, d business.ListingDetailer, m *resolve.Matcher) *business.DetailsUpdater {
	// The listing adapter paces its own requests.
	return business.NewDetailsUpdater(st, d, newMergePass(st, m), nil)
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
