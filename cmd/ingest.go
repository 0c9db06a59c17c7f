package main

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/deepbiz/directory/internal/business"
	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/resolve"
	"github.com/deepbiz/directory/internal/store"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Discover businesses and merge them into the directory",
}

// -- ingest places --

var ingestPlacesCmd = &cobra.Command{
	Use:   "places",
	Short: "Search the map provider and ingest the results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest-places"); err != nil {
			return err
		}
		keywords, _ := cmd.Flags().GetStringSlice("keyword")
		category, _ := cmd.Flags().GetString("category")

		return withIngest(cmd.Context(), func(ctx context.Context, st store.Store, m *resolve.Matcher) error {
			return ingestKeywords(ctx, newPlacesAdapter(), newIngestor(st, m), keywords, category)
		})
	},
}

type placesSearcher interface {
	Search(ctx context.Context, keyword, category string) ([]model.Observation, error)
}

// ingestKeywords runs one ingestion run per keyword. A failed keyword keeps
// its partial results and does not stop the remaining keywords.
func ingestKeywords(ctx context.Context, places placesSearcher, ingestor *business.Ingestor, keywords []string, category string) error {
	var failed []string
	for _, kw := range keywords {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "ingest places: cancelled")
		}
		obs, searchErr := places.Search(ctx, kw, category)
		if _, err := ingestor.IngestCollected(ctx, model.RunKindPlaces, kw, obs, searchErr); err != nil {
			zap.L().Error("ingest places: keyword failed", zap.String("keyword", kw), zap.Error(err))
			failed = append(failed, kw)
		}
	}
	if len(failed) > 0 {
		return eris.Errorf("ingest places: %d of %d keywords failed: %s",
			len(failed), len(keywords), strings.Join(failed, ", "))
	}
	return nil
}

// -- ingest listing --

var ingestListingCmd = &cobra.Command{
	Use:   "listing",
	Short: "Scan listing pages and ingest every listing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest-listing"); err != nil {
			return err
		}
		startURL, _ := cmd.Flags().GetString("url")
		category, _ := cmd.Flags().GetString("category")

		return withIngest(cmd.Context(), func(ctx context.Context, st store.Store, m *resolve.Matcher) error {
			listing := newListingAdapter()
			defer listing.Close() //nolint:errcheck

			obs, scanErr := listing.ScanListing(ctx, startURL, category)
			_, err := newIngestor(st, m).IngestCollected(ctx, model.RunKindListing, startURL, obs, scanErr)
			return err
		})
	},
}

// -- ingest details --

var ingestDetailsCmd = &cobra.Command{
	Use:   "details",
	Short: "Fill addresses and ratings of listing-only businesses, then merge them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest-details"); err != nil {
			return err
		}

		return withIngest(cmd.Context(), func(ctx context.Context, st store.Store, m *resolve.Matcher) error {
			listing := newListingAdapter()
			defer listing.Close() //nolint:errcheck

			_, err := newDetailsUpdater(st, listing, m).Run(ctx)
			return err
		})
	},
}

// -- ingest import --

var ingestImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Ingest observations from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ingest-import"); err != nil {
			return err
		}
		obs, err := readObservations(args[0])
		if err != nil {
			return err
		}

		return withIngest(cmd.Context(), func(ctx context.Context, st store.Store, m *resolve.Matcher) error {
			_, err := newIngestor(st, m).IngestAll(ctx, model.RunKindImport, args[0], obs)
			return err
		})
	},
}

// observationFile is the layout of an import file.
type observationFile struct {
	Observations []model.Observation `yaml:"observations"`
}

func readObservations(path string) ([]model.Observation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest import: open")
	}
	defer f.Close() //nolint:errcheck

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var file observationFile
	if err := dec.Decode(&file); err != nil {
		return nil, eris.Wrapf(err, "ingest import: decode %s", path)
	}
	if len(file.Observations) == 0 {
		return nil, eris.Errorf("ingest import: %s has no observations", path)
	}
	return file.Observations, nil
}

func withIngest(ctx context.Context, fn func(context.Context, store.Store, *resolve.Matcher) error) error {
	m, err := newMatcher()
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(ctx, st, m)
}

func init() {
	ingestPlacesCmd.Flags().StringSlice("keyword", nil, "search keyword, repeatable (required)")
	ingestPlacesCmd.Flags().String("category", "", "category attached to every result")
	_ = ingestPlacesCmd.MarkFlagRequired("keyword")

	ingestListingCmd.Flags().String("url", "", "first listing page URL (required)")
	ingestListingCmd.Flags().String("category", "", "category attached to every listing")
	_ = ingestListingCmd.MarkFlagRequired("url")

	ingestCmd.AddCommand(ingestPlacesCmd)
	ingestCmd.AddCommand(ingestListingCmd)
	ingestCmd.AddCommand(ingestDetailsCmd)
	ingestCmd.AddCommand(ingestImportCmd)
	rootCmd.AddCommand(ingestCmd)
}
