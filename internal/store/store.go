package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deepbiz/directory/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = eris.New("store: unique constraint violated")
)

// DefaultListLimit bounds listings that do not set a limit.
const DefaultListLimit = 100

// Store defines the persistence interface for the directory and the
// company analysis cache.
type Store interface {
	// Entities
	CreateEntity(ctx context.Context, e *model.Entity) error
	GetEntity(ctx context.Context, id int64) (*model.Entity, error)
	FindEntity(ctx context.Context, src model.Source, identifier string) (*model.Entity, error)
	UpdateEntity(ctx context.Context, e *model.Entity) error
	DeleteEntity(ctx context.Context, id int64) error
	ListEntities(ctx context.Context, filter model.EntityFilter) ([]model.Entity, error)

	// Review summaries
	UpsertReviewSummary(ctx context.Context, rs model.ReviewSummary) error
	ListReviewSummaries(ctx context.Context, entityID int64) ([]model.ReviewSummary, error)
	MoveReviewSummaries(ctx context.Context, fromID, toID int64) error

	// Categories
	EnsureCategory(ctx context.Context, entityID int64, name string) error
	ListCategories(ctx context.Context, entityID int64) ([]model.Category, error)
	MoveCategories(ctx context.Context, fromID, toID int64) error

	// Company analysis cache
	GetAnalysis(ctx context.Context, domain string) (*model.CompanyAnalysis, error)
	UpsertAnalysis(ctx context.Context, a *model.CompanyAnalysis) error
	RecordAnalysisHit(ctx context.Context, domain string, at time.Time) (*model.CompanyAnalysis, error)
	// DeleteExpiredAnalysis removes domain's entry only if it is expired at
	// now, and reports whether a row was removed.
	DeleteExpiredAnalysis(ctx context.Context, domain string, now time.Time) (bool, error)
	DeleteExpiredAnalyses(ctx context.Context, now time.Time) (int, error)
	AnalysisStats(ctx context.Context, now time.Time, top int) (*model.CacheStats, error)

	// Ingestion runs
	CreateRun(ctx context.Context, kind model.RunKind, input string) (*model.IngestRun, error)
	UpdateRun(ctx context.Context, run *model.IngestRun) error
	GetRun(ctx context.Context, id string) (*model.IngestRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error)

	// InTx runs fn against a Store bound to one transaction. The transaction
	// commits when fn returns nil and rolls back otherwise. Calling InTx on a
	// transaction-bound Store joins the open transaction.
	InTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// IsConflict reports whether err carries ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err carries ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
