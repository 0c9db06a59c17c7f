package business

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/resolve"
	"github.com/deepbiz/directory/internal/store"
)

const defaultBatchSize = 100

// MergePass reconciles listing-only entities already in the store against
// place-only candidates.
type MergePass struct {
	store          store.Store
	matcher        *resolve.Matcher
	merger         *Merger
	batchSize      int
	candidateLimit int
}

// NewMergePass creates a MergePass. A nil matcher uses the combined policy.
func NewMergePass(st store.Store, m *resolve.Matcher, candidateLimit int) *MergePass {
	if m == nil {
		m = resolve.NewMatcher(nil)
	}
	if candidateLimit <= 0 {
		candidateLimit = resolve.DefaultCandidateLimit
	}
	return &MergePass{
		store:          st,
		matcher:        m,
		merger:         NewMerger(st),
		batchSize:      defaultBatchSize,
		candidateLimit: candidateLimit,
	}
}

// Run walks every listing-only entity with an address and merges it into
// its best place-only match. No match and ErrAlreadyMerged count as skipped.
func (p *MergePass) Run(ctx context.Context) (*model.IngestRun, error) {
	tr, err := StartRun(ctx, p.store, model.RunKindMerge, "listing-only entities")
	if err != nil {
		return nil, err
	}

	runErr := p.each(ctx, model.EntityFilter{
		HasSource:   model.SourceListing,
		LacksSource: model.SourcePlaces,
		HasAddress:  true,
	}, func(e *model.Entity) {
		tr.Record(p.MergeOne(ctx, e))
	})

	if err := tr.Finish(context.WithoutCancel(ctx), runErr); err != nil {
		return tr.Run(), err
	}
	return tr.Run(), runErr
}

// MergeOne matches a single-source entity against unmerged entities of the
// other source and folds it into the best match.
func (p *MergePass) MergeOne(ctx context.Context, e *model.Entity) (model.Outcome, error) {
	src := model.SourceListing
	if !e.HasSource(src) {
		src = model.SourcePlaces
	}
	if !e.HasSource(src) || e.HasSource(src.Other()) {
		return model.OutcomeSkipped, nil
	}

	candidates, err := p.store.ListEntities(ctx, model.EntityFilter{
		HasSource:   src.Other(),
		LacksSource: src,
		HasAddress:  true,
		Limit:       p.candidateLimit,
	})
	if err != nil {
		return model.OutcomeFailed, eris.Wrap(err, "business: list candidates")
	}

	match, ok := p.matcher.Best(e.DisplayName(), e.Address, candidates)
	if !ok {
		return model.OutcomeSkipped, nil
	}

	_, err = p.merger.MergeRecord(ctx, e.ID, match.Entity.ID)
	if eris.Is(err, ErrAlreadyMerged) {
		zap.L().Info("business: merge skipped", zap.Int64("entity_id", e.ID), zap.Error(err))
		return model.OutcomeSkipped, nil
	}
	if err != nil {
		return model.OutcomeFailed, err
	}
	return model.OutcomeMerged, nil
}

// each pages through entities matching f by id and calls fn for each one.
func (p *MergePass) each(ctx context.Context, f model.EntityFilter, fn func(*model.Entity)) error {
	f.Limit = p.batchSize
	for {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "business: batch cancelled")
		}
		page, err := p.store.ListEntities(ctx, f)
		if err != nil {
			return eris.Wrap(err, "business: list batch")
		}
		for idx := range page {
			if err := ctx.Err(); err != nil {
				return eris.Wrap(err, "business: batch cancelled")
			}
			fn(&page[idx])
		}
		if len(page) < f.Limit {
			return nil
		}
		f.AfterID = page[len(page)-1].ID
	}
}
