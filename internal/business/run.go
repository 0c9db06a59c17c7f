package business

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/store"
)

// Tracker persists the progress of one ingestion run.
type Tracker struct {
	store store.Store
	run   *model.IngestRun
}

// StartRun creates a run record and marks it running.
func StartRun(ctx context.Context, st store.Store, kind model.RunKind, input string) (*Tracker, error) {
	run, err := st.CreateRun(ctx, kind, input)
	if err != nil {
		return nil, eris.Wrap(err, "business: create run")
	}
	run.Status = model.RunStatusRunning
	if err := st.UpdateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "business: start run")
	}
	zap.L().Info("business: run started",
		zap.String("run_id", run.ID),
		zap.String("kind", string(kind)),
		zap.String("input", input),
	)
	return &Tracker{store: st, run: run}, nil
}

// Run returns the tracked run.
func (t *Tracker) Run() *model.IngestRun { return t.run }

// Record counts one outcome. A non-nil err counts as failed and is logged;
// it never stops the run.
func (t *Tracker) Record(o model.Outcome, err error) {
	if err != nil {
		zap.L().Warn("business: record failed",
			zap.String("run_id", t.run.ID),
			zap.Error(err),
		)
		o = model.OutcomeFailed
	}
	t.run.Counts.Add(o)
}

// Finish marks the run complete, or failed when runErr is non-nil, and
// persists the final counts.
func (t *Tracker) Finish(ctx context.Context, runErr error) error {
	t.run.Status = model.RunStatusComplete
	if runErr != nil {
		t.run.Status = model.RunStatusFailed
		t.run.Error = runErr.Error()
	}
	if err := t.store.UpdateRun(ctx, t.run); err != nil {
		return eris.Wrapf(err, "business: finish run %s", t.run.ID)
	}
	zap.L().Info("business: run finished",
		zap.String("run_id", t.run.ID),
		zap.String("status", string(t.run.Status)),
		zap.Int("created", t.run.Counts.Created),
		zap.Int("merged", t.run.Counts.Merged),
		zap.Int("refreshed", t.run.Counts.Refreshed),
		zap.Int("skipped", t.run.Counts.Skipped),
		zap.Int("failed", t.run.Counts.Failed),
	)
	return nil
}

// IngestAll ingests every observation under one run. Individual failures
// are counted; only a cancelled context or a store failure on the run record
// itself aborts the batch.
func (i *Ingestor) IngestAll(ctx context.Context, kind model.RunKind, input string, obs []model.Observation) (*model.IngestRun, error) {
	return i.IngestCollected(ctx, kind, input, obs, nil)
}

// IngestCollected is IngestAll for a source that failed part way through:
// obs holds what arrived before collectErr. Those observations are ingested,
// then a non-nil collectErr marks the run failed and is returned.
func (i *Ingestor) IngestCollected(ctx context.Context, kind model.RunKind, input string, obs []model.Observation, collectErr error) (*model.IngestRun, error) {
	tr, err := StartRun(ctx, i.store, kind, input)
	if err != nil {
		return nil, err
	}

	var runErr error
	for idx := range obs {
		if err := ctx.Err(); err != nil {
			runErr = eris.Wrap(err, "business: ingest cancelled")
			break
		}
		res, err := i.Ingest(ctx, &obs[idx])
		if err != nil {
			tr.Record(model.OutcomeFailed, err)
			continue
		}
		tr.Record(res.Outcome, nil)
	}
	if runErr == nil && collectErr != nil {
		runErr = eris.Wrapf(collectErr, "business: collect %s observations", kind)
	}

	// Persist the run state even when ctx was cancelled.
	if err := tr.Finish(context.WithoutCancel(ctx), runErr); err != nil {
		return tr.Run(), err
	}
	return tr.Run(), runErr
}
