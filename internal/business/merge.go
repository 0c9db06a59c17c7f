// Package business reconciles observations from the places provider and the
// listing directory into canonical directory entities.
package business

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/store"
)

// ErrAlreadyMerged is returned when a merge has nothing left to do: the
// redundant record is gone, the canonical entity already carries the
// identifier, or a concurrent writer claimed it first.
var ErrAlreadyMerged = eris.New("business: already merged")

// Merger folds single-source records into canonical entities. Every merge
// runs in one store transaction.
type Merger struct {
	store store.Store
}

// NewMerger creates a Merger backed by st.
func NewMerger(st store.Store) *Merger {
	return &Merger{store: st}
}

// MergeRecord folds the single-source record redundantID into canonicalID:
// the redundant record's identifiers, and any fields the canonical entity
// lacks, are copied over, its review summaries and categories move, and the
// redundant record is deleted. Returns the updated canonical entity.
func (m *Merger) MergeRecord(ctx context.Context, redundantID, canonicalID int64) (*model.Entity, error) {
	if redundantID == canonicalID {
		return nil, eris.Wrapf(ErrAlreadyMerged, "business: entity %d merged into itself", redundantID)
	}

	var merged *model.Entity
	err := m.store.InTx(ctx, func(tx store.Store) error {
		redundant, err := tx.GetEntity(ctx, redundantID)
		if store.IsNotFound(err) {
			return eris.Wrapf(ErrAlreadyMerged, "business: entity %d no longer exists", redundantID)
		}
		if err != nil {
			return err
		}
		canonical, err := tx.GetEntity(ctx, canonicalID)
		if err != nil {
			return err
		}

		src, ok := mergeSource(redundant, canonical)
		if !ok {
			return eris.Wrapf(ErrAlreadyMerged, "business: entity %d already identifies entity %d's source", canonicalID, redundantID)
		}

		if err := tx.MoveReviewSummaries(ctx, redundant.ID, canonical.ID); err != nil {
			return err
		}
		if err := tx.MoveCategories(ctx, redundant.ID, canonical.ID); err != nil {
			return err
		}
		// The redundant row holds the unique identifiers, so it goes first.
		if err := tx.DeleteEntity(ctx, redundant.ID); err != nil {
			return err
		}

		switch src {
		case model.SourcePlaces:
			canonical.PlaceID = redundant.PlaceID
			if canonical.CID == "" {
				canonical.CID = redundant.CID
			}
		case model.SourceListing:
			canonical.ListingURL = redundant.ListingURL
		}
		fillFromEntity(canonical, redundant)
		if err := releaseContestedCID(ctx, tx, canonical); err != nil {
			return err
		}

		if err := tx.UpdateEntity(ctx, canonical); err != nil {
			if store.IsConflict(err) {
				return eris.Wrapf(ErrAlreadyMerged, "business: merge %d into %d: %v", redundantID, canonicalID, err)
			}
			return err
		}
		merged = canonical
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "business: merge %d into %d", redundantID, canonicalID)
	}

	zap.L().Info("business: merged record",
		zap.Int64("redundant_id", redundantID),
		zap.Int64("canonical_id", canonicalID),
		zap.String("place_id", merged.PlaceID),
		zap.String("listing_url", merged.ListingURL),
	)
	return merged, nil
}

// Absorb folds an observation that matched canonicalID directly into it,
// without ever persisting the observation as its own record. Category and
// review summary are applied in the same transaction.
func (m *Merger) Absorb(ctx context.Context, canonicalID int64, o *model.Observation) (*model.Entity, error) {
	var merged *model.Entity
	err := m.store.InTx(ctx, func(tx store.Store) error {
		canonical, err := tx.GetEntity(ctx, canonicalID)
		if err != nil {
			return err
		}
		if canonical.HasSource(o.Source) {
			return eris.Wrapf(ErrAlreadyMerged, "business: entity %d already has a %s identifier", canonicalID, o.Source)
		}
		owner, err := tx.FindEntity(ctx, o.Source, o.Identifier())
		if err != nil {
			return err
		}
		if owner != nil {
			return eris.Wrapf(ErrAlreadyMerged, "business: %s identifier owned by entity %d", o.Source, owner.ID)
		}

		setIdentity(canonical, o)
		fillFromObservation(canonical, o)
		if err := releaseContestedCID(ctx, tx, canonical); err != nil {
			return err
		}
		if err := tx.UpdateEntity(ctx, canonical); err != nil {
			return err
		}
		if err := applyAssociations(ctx, tx, canonical.ID, o); err != nil {
			return err
		}
		merged = canonical
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "business: absorb %s observation into %d", o.Source, canonicalID)
	}
	return merged, nil
}

// mergeSource returns the source whose identifier redundant carries and
// canonical lacks.
func mergeSource(redundant, canonical *model.Entity) (model.Source, bool) {
	for _, src := range []model.Source{model.SourceListing, model.SourcePlaces} {
		if redundant.HasSource(src) && !canonical.HasSource(src) && !redundant.HasSource(src.Other()) {
			return src, true
		}
	}
	return "", false
}

// applyAssociations ensures the category link and upserts the source rating.
func applyAssociations(ctx context.Context, tx store.Store, entityID int64, o *model.Observation) error {
	if err := tx.EnsureCategory(ctx, entityID, o.Category); err != nil {
		return err
	}
	if o.HasRating() {
		if err := tx.UpsertReviewSummary(ctx, o.ReviewSummary(entityID)); err != nil {
			return err
		}
	}
	return nil
}

// releaseContestedCID clears e.CID when another entity already carries it.
// The customer id is secondary to the place id, so the place id still lands.
func releaseContestedCID(ctx context.Context, st store.Store, e *model.Entity) error {
	if e.CID == "" {
		return nil
	}
	owners, err := st.ListEntities(ctx, model.EntityFilter{CID: e.CID, Limit: 1})
	if err != nil {
		return eris.Wrap(err, "business: look up cid owner")
	}
	if len(owners) == 0 || owners[0].ID == e.ID {
		return nil
	}
	zap.L().Warn("business: cid already held by another entity",
		zap.String("cid", e.CID),
		zap.Int64("entity_id", e.ID),
		zap.Int64("owner_id", owners[0].ID),
		zap.String("place_id", e.PlaceID),
	)
	e.CID = ""
	return nil
}
