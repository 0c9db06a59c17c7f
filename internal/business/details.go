package business

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/store"
)

// ListingDetailer reads a listing's detail and review pages.
type ListingDetailer interface {
	Details(ctx context.Context, listingURL string) (*model.ListingDetails, error)
}

// DetailsUpdater enriches listing entities that lack an address or a
// listing rating, then tries to merge them.
type DetailsUpdater struct {
	store    store.Store
	detailer ListingDetailer
	pass     *MergePass
	limiter  *rate.Limiter
}

// NewDetailsUpdater creates a DetailsUpdater. A nil limiter does not pace
// requests.
func NewDetailsUpdater(st store.Store, d ListingDetailer, pass *MergePass, limiter *rate.Limiter) *DetailsUpdater {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &DetailsUpdater{store: st, detailer: d, pass: pass, limiter: limiter}
}

// Run processes every listing entity missing an address or a rated listing
// review summary.
func (u *DetailsUpdater) Run(ctx context.Context) (*model.IngestRun, error) {
	tr, err := StartRun(ctx, u.store, model.RunKindDetails, "listing entities missing details")
	if err != nil {
		return nil, err
	}

	runErr := u.pass.each(ctx, model.EntityFilter{
		HasSource:      model.SourceListing,
		MissingReview:  model.ReviewSourceHotPepper,
		MissingAddress: true,
	}, func(e *model.Entity) {
		tr.Record(u.UpdateOne(ctx, e))
	})

	if err := tr.Finish(context.WithoutCancel(ctx), runErr); err != nil {
		return tr.Run(), err
	}
	return tr.Run(), runErr
}

// UpdateOne fetches details for one listing entity, fills its address when
// absent, upserts its listing review summary, and attempts a merge when the
// entity is still single-source.
func (u *DetailsUpdater) UpdateOne(ctx context.Context, e *model.Entity) (model.Outcome, error) {
	if err := u.limiter.Wait(ctx); err != nil {
		return model.OutcomeFailed, eris.Wrap(err, "business: wait for rate limiter")
	}

	d, err := u.detailer.Details(ctx, e.ListingURL)
	if err != nil {
		return model.OutcomeFailed, eris.Wrapf(err, "business: fetch details for %s", e.ListingURL)
	}

	err = u.store.InTx(ctx, func(tx store.Store) error {
		if e.Address == "" && d.Address != "" {
			e.Address = d.Address
			if err := tx.UpdateEntity(ctx, e); err != nil {
				return err
			}
		}
		if d.Rating != nil || d.ReviewCount != nil {
			return tx.UpsertReviewSummary(ctx, model.ReviewSummary{
				EntityID:    e.ID,
				Source:      model.ReviewSourceHotPepper,
				Rating:      d.Rating,
				ReviewCount: d.ReviewCount,
			})
		}
		return nil
	})
	if err != nil {
		return model.OutcomeFailed, eris.Wrapf(err, "business: apply details to entity %d", e.ID)
	}

	zap.L().Debug("business: details applied",
		zap.Int64("entity_id", e.ID),
		zap.String("listing_url", e.ListingURL),
		zap.Bool("has_address", e.Address != ""),
		zap.Bool("has_rating", d.Rating != nil),
	)

	if e.HasSource(model.SourcePlaces) || e.Address == "" {
		return model.OutcomeRefreshed, nil
	}
	outcome, err := u.pass.MergeOne(ctx, e)
	if err != nil {
		return model.OutcomeFailed, err
	}
	if outcome == model.OutcomeMerged {
		return outcome, nil
	}
	return model.OutcomeRefreshed, nil
}
