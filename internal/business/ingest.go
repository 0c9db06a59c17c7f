package business

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/resolve"
	"github.com/deepbiz/directory/internal/store"
)

// Result describes what Ingest did with one observation.
type Result struct {
	Outcome  model.Outcome
	EntityID int64
	// Scores is set when the observation was merged into a match.
	Scores *resolve.Scores
}

// Ingestor drives one observation through lookup, matching, merge or
// creation.
type Ingestor struct {
	store          store.Store
	matcher        *resolve.Matcher
	merger         *Merger
	mode           UpdateMode
	candidateLimit int
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithMode sets how re-discovered entities are treated. Defaults to ModeSkip.
func WithMode(m UpdateMode) IngestorOption {
	return func(i *Ingestor) { i.mode = m }
}

// WithCandidateLimit bounds the number of merge candidates scored per
// observation.
func WithCandidateLimit(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.candidateLimit = n
		}
	}
}

// NewIngestor creates an Ingestor. A nil matcher uses the combined policy.
func NewIngestor(st store.Store, m *resolve.Matcher, opts ...IngestorOption) *Ingestor {
	if m == nil {
		m = resolve.NewMatcher(nil)
	}
	i := &Ingestor{
		store:          st,
		matcher:        m,
		merger:         NewMerger(st),
		mode:           ModeSkip,
		candidateLimit: resolve.DefaultCandidateLimit,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Ingest applies one source observation to the directory.
func (i *Ingestor) Ingest(ctx context.Context, o *model.Observation) (*Result, error) {
	if err := validateObservation(o); err != nil {
		return nil, err
	}

	existing, err := i.store.FindEntity(ctx, o.Source, o.Identifier())
	if err != nil {
		return nil, eris.Wrap(err, "business: find existing")
	}
	if existing != nil {
		return i.rediscover(ctx, existing, o)
	}

	if resolve.NormalizeAddress(o.Address) != "" {
		res, matched, err := i.mergeIntoMatch(ctx, o)
		if err != nil || matched {
			return res, err
		}
	}

	return i.create(ctx, o, true)
}

// rediscover handles an observation whose identifier is already known.
func (i *Ingestor) rediscover(ctx context.Context, e *model.Entity, o *model.Observation) (*Result, error) {
	outcome := model.OutcomeSkipped
	err := i.store.InTx(ctx, func(tx store.Store) error {
		if i.mode == ModeOverwrite {
			if overwriteFromObservation(e, o) {
				if err := tx.UpdateEntity(ctx, e); err != nil {
					return err
				}
			}
			outcome = model.OutcomeRefreshed
		}
		return applyAssociations(ctx, tx, e.ID, o)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "business: refresh entity %d", e.ID)
	}

	zap.L().Debug("business: rediscovered entity",
		zap.Int64("entity_id", e.ID),
		zap.String("source", string(o.Source)),
		zap.String("outcome", string(outcome)),
	)
	return &Result{Outcome: outcome, EntityID: e.ID}, nil
}

// mergeIntoMatch scores unmerged candidates of the other source and absorbs
// the observation into the best one. matched is false when nothing cleared
// the policy.
func (i *Ingestor) mergeIntoMatch(ctx context.Context, o *model.Observation) (*Result, bool, error) {
	candidates, err := i.store.ListEntities(ctx, model.EntityFilter{
		HasSource:   o.Source.Other(),
		LacksSource: o.Source,
		HasAddress:  true,
		Limit:       i.candidateLimit,
	})
	if err != nil {
		return nil, false, eris.Wrap(err, "business: list candidates")
	}

	match, ok := i.matcher.Best(o.Name, o.Address, candidates)
	if !ok {
		return nil, false, nil
	}

	merged, err := i.merger.Absorb(ctx, match.Entity.ID, o)
	if eris.Is(err, ErrAlreadyMerged) {
		zap.L().Info("business: candidate already merged",
			zap.Int64("entity_id", match.Entity.ID),
			zap.String("identifier", o.Identifier()),
		)
		return &Result{Outcome: model.OutcomeSkipped, EntityID: match.Entity.ID, Scores: &match.Scores}, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	zap.L().Info("business: merged observation",
		zap.Int64("entity_id", merged.ID),
		zap.String("source", string(o.Source)),
		zap.String("identifier", o.Identifier()),
		zap.Float64("address_score", match.Scores.Address),
		zap.Float64("name_score", match.Scores.Name),
		zap.Float64("combined_score", match.Scores.Combined),
	)
	return &Result{Outcome: model.OutcomeMerged, EntityID: merged.ID, Scores: &match.Scores}, true, nil
}

// create stores the observation as a new single-source entity. A concurrent
// insert of the same identifier is re-read once and treated as rediscovery.
func (i *Ingestor) create(ctx context.Context, o *model.Observation, retry bool) (*Result, error) {
	e := entityFromObservation(o)
	err := i.store.InTx(ctx, func(tx store.Store) error {
		if err := releaseContestedCID(ctx, tx, e); err != nil {
			return err
		}
		if err := tx.CreateEntity(ctx, e); err != nil {
			return err
		}
		return applyAssociations(ctx, tx, e.ID, o)
	})
	if store.IsConflict(err) && retry {
		existing, ferr := i.store.FindEntity(ctx, o.Source, o.Identifier())
		if ferr != nil {
			return nil, eris.Wrap(ferr, "business: re-read after conflict")
		}
		if existing != nil {
			return i.rediscover(ctx, existing, o)
		}
		return i.create(ctx, o, false)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "business: create %s entity", o.Source)
	}

	zap.L().Info("business: created entity",
		zap.Int64("entity_id", e.ID),
		zap.String("source", string(o.Source)),
		zap.String("name", o.Name),
	)
	return &Result{Outcome: model.OutcomeCreated, EntityID: e.ID}, nil
}

func validateObservation(o *model.Observation) error {
	if o == nil {
		return eris.New("business: nil observation")
	}
	if !o.Source.Valid() {
		return eris.Errorf("business: unknown source %q", o.Source)
	}
	if o.Identifier() == "" {
		return eris.Errorf("business: %s observation has no identifier", o.Source)
	}
	return nil
}
