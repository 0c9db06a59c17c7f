package store

import (
	"context"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/deepbiz/directory/internal/db"
	"github.com/deepbiz/directory/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	q       db.Querier
	inTx    bool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// Names of statements prepared on every pooled connection. pgx runs a
// prepared statement when the query text equals its name.
const (
	stmtFindEntityPlace   = "find_entity_place"
	stmtFindEntityListing = "find_entity_listing"
	stmtGetAnalysis       = "get_analysis"
	stmtRecordAnalysisHit = "record_analysis_hit"
)

// preparedStatements lists queries to prepare on each new connection for
// the hottest read paths (cache lookups and identifier lookups).
var preparedStatements = map[string]string{
	stmtFindEntityPlace:   `SELECT ` + entityColumns + ` FROM entities WHERE place_id = $1`,
	stmtFindEntityListing: `SELECT ` + entityColumns + ` FROM entities WHERE listing_url = $1`,
	stmtGetAnalysis:       `SELECT ` + analysisColumns + ` FROM company_analyses WHERE company_domain = $1`,
	stmtRecordAnalysisHit: `UPDATE company_analyses SET cache_hit_count = cache_hit_count + 1, last_accessed_at = $1 WHERE company_domain = $2 AND expires_at > $3 RETURNING ` + analysisColumns,
}

// findEntityStmt names the prepared lookup for src.
func findEntityStmt(src model.Source) (string, error) {
	switch src {
	case model.SourcePlaces:
		return stmtFindEntityPlace, nil
	case model.SourceListing:
		return stmtFindEntityListing, nil
	}
	return "", eris.Errorf("store: unknown source %q", src)
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, q: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool, e.g. a pgxmock pool in tests.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, q: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id           BIGSERIAL PRIMARY KEY,
	name         TEXT,
	listing_name TEXT,
	address      TEXT,
	place_id     TEXT UNIQUE,
	cid          TEXT UNIQUE,
	listing_url  TEXT UNIQUE,
	website_url  TEXT,
	inquiry_url  TEXT,
	email        TEXT,
	phone        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS review_summaries (
	entity_id    BIGINT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	source_name  TEXT NOT NULL,
	rating       DOUBLE PRECISION,
	review_count INTEGER,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_id, source_name)
);

CREATE TABLE IF NOT EXISTS categories (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS entity_categories (
	entity_id   BIGINT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	category_id BIGINT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	PRIMARY KEY (entity_id, category_id)
);

CREATE TABLE IF NOT EXISTS company_analyses (
	company_domain       TEXT PRIMARY KEY,
	company_url          TEXT NOT NULL,
	business_description TEXT NOT NULL,
	industry             TEXT NOT NULL,
	strengths            JSONB NOT NULL,
	target_customers     TEXT NOT NULL,
	key_topics           JSONB NOT NULL,
	company_size         TEXT NOT NULL,
	pain_points          JSONB NOT NULL,
	analyzed_at          TIMESTAMPTZ NOT NULL,
	expires_at           TIMESTAMPTZ NOT NULL,
	cache_hit_count      INTEGER NOT NULL DEFAULT 0,
	last_accessed_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	kind       TEXT NOT NULL,
	input      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'queued',
	created    INTEGER NOT NULL DEFAULT 0,
	merged     INTEGER NOT NULL DEFAULT 0,
	refreshed  INTEGER NOT NULL DEFAULT 0,
	skipped    INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_entities_unmerged_places ON entities(id) WHERE listing_url IS NULL AND place_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_entities_unmerged_listing ON entities(id) WHERE place_id IS NULL AND listing_url IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_entity_categories_category ON entity_categories(category_id);
CREATE INDEX IF NOT EXISTS idx_company_analyses_expires_at ON company_analyses(expires_at);
CREATE INDEX IF NOT EXISTS idx_company_analyses_hits ON company_analyses(cache_hit_count DESC);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_created_at ON ingest_runs(created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.q.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.q.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil && !s.inTx {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&PostgresStore{pool: s.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

// --- Entities ---

func (s *PostgresStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	err := s.q.QueryRow(ctx,
		`INSERT INTO entities (name, listing_name, address, place_id, cid, listing_url, website_url, inquiry_url, email, phone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
		nullable(e.Name), nullable(e.ListingName), nullable(e.Address), nullable(e.PlaceID), nullable(e.CID),
		nullable(e.ListingURL), nullable(e.WebsiteURL), nullable(e.InquiryURL), nullable(e.Email), nullable(e.Phone),
		now, now,
	).Scan(&e.ID)
	if err != nil {
		return pgWriteErr(err, "postgres: insert entity")
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetEntity(ctx context.Context, id int64) (*model.Entity, error) {
	row := s.q.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	e, err := scanPgEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: entity %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %d", id)
	}
	return e, nil
}

func (s *PostgresStore) FindEntity(ctx context.Context, src model.Source, identifier string) (*model.Entity, error) {
	stmt, err := findEntityStmt(src)
	if err != nil {
		return nil, err
	}
	if identifier == "" {
		return nil, nil
	}
	row := s.q.QueryRow(ctx, stmt, identifier)
	e, err := scanPgEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find entity by %s", src)
	}
	return e, nil
}

func (s *PostgresStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE entities SET name = $1, listing_name = $2, address = $3, place_id = $4, cid = $5, listing_url = $6,
		 website_url = $7, inquiry_url = $8, email = $9, phone = $10, updated_at = $11 WHERE id = $12`,
		nullable(e.Name), nullable(e.ListingName), nullable(e.Address), nullable(e.PlaceID), nullable(e.CID),
		nullable(e.ListingURL), nullable(e.WebsiteURL), nullable(e.InquiryURL), nullable(e.Email), nullable(e.Phone),
		now, e.ID,
	)
	if err != nil {
		return pgWriteErr(err, "postgres: update entity")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "entity %d", e.ID)
	}
	e.UpdatedAt = now
	return nil
}

func (s *PostgresStore) DeleteEntity(ctx context.Context, id int64) error {
	for _, q := range []string{
		`DELETE FROM review_summaries WHERE entity_id = $1`,
		`DELETE FROM entity_categories WHERE entity_id = $1`,
	} {
		if _, err := s.q.Exec(ctx, q, id); err != nil {
			return eris.Wrapf(err, "postgres: delete entity %d dependents", id)
		}
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete entity %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "entity %d", id)
	}
	return nil
}

func (s *PostgresStore) ListEntities(ctx context.Context, filter model.EntityFilter) ([]model.Entity, error) {
	query, args, err := entityListQuery(filter, sq.Dollar)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanPgEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

// --- Review summaries ---

func (s *PostgresStore) UpsertReviewSummary(ctx context.Context, rs model.ReviewSummary) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO review_summaries (entity_id, source_name, rating, review_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (entity_id, source_name) DO UPDATE SET
			rating = COALESCE(EXCLUDED.rating, review_summaries.rating),
			review_count = COALESCE(EXCLUDED.review_count, review_summaries.review_count),
			updated_at = EXCLUDED.updated_at`,
		rs.EntityID, rs.Source, rs.Rating, rs.ReviewCount, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert review summary %d/%s", rs.EntityID, rs.Source)
}

func (s *PostgresStore) ListReviewSummaries(ctx context.Context, entityID int64) ([]model.ReviewSummary, error) {
	rows, err := s.q.Query(ctx,
		`SELECT entity_id, source_name, rating, review_count, updated_at FROM review_summaries
		 WHERE entity_id = $1 ORDER BY source_name`, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list review summaries")
	}
	defer rows.Close()

	var out []model.ReviewSummary
	for rows.Next() {
		var rs model.ReviewSummary
		if err := rows.Scan(&rs.EntityID, &rs.Source, &rs.Rating, &rs.ReviewCount, &rs.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review summary")
		}
		out = append(out, rs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list review summaries iterate")
}

func (s *PostgresStore) MoveReviewSummaries(ctx context.Context, fromID, toID int64) error {
	if _, err := s.q.Exec(ctx,
		`UPDATE review_summaries SET entity_id = $1
		 WHERE entity_id = $2 AND source_name NOT IN (SELECT source_name FROM review_summaries WHERE entity_id = $1)`,
		toID, fromID,
	); err != nil {
		return eris.Wrapf(err, "postgres: move review summaries %d -> %d", fromID, toID)
	}
	_, err := s.q.Exec(ctx, `DELETE FROM review_summaries WHERE entity_id = $1`, fromID)
	return eris.Wrapf(err, "postgres: drop review summaries %d", fromID)
}

// --- Categories ---

func (s *PostgresStore) EnsureCategory(ctx context.Context, entityID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var categoryID int64
	err := s.q.QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, name,
	).Scan(&categoryID)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert category %s", name)
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO entity_categories (entity_id, category_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		entityID, categoryID,
	)
	return eris.Wrapf(err, "postgres: associate category %s with entity %d", name, entityID)
}

func (s *PostgresStore) ListCategories(ctx context.Context, entityID int64) ([]model.Category, error) {
	rows, err := s.q.Query(ctx,
		`SELECT c.id, c.name FROM categories c JOIN entity_categories ec ON ec.category_id = c.id
		 WHERE ec.entity_id = $1 ORDER BY c.name`, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list categories")
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list categories iterate")
}

func (s *PostgresStore) MoveCategories(ctx context.Context, fromID, toID int64) error {
	if _, err := s.q.Exec(ctx,
		`INSERT INTO entity_categories (entity_id, category_id)
		 SELECT $1, category_id FROM entity_categories WHERE entity_id = $2
		 ON CONFLICT DO NOTHING`,
		toID, fromID,
	); err != nil {
		return eris.Wrapf(err, "postgres: move categories %d -> %d", fromID, toID)
	}
	_, err := s.q.Exec(ctx, `DELETE FROM entity_categories WHERE entity_id = $1`, fromID)
	return eris.Wrapf(err, "postgres: drop categories %d", fromID)
}

// --- Company analysis cache ---

func (s *PostgresStore) GetAnalysis(ctx context.Context, domain string) (*model.CompanyAnalysis, error) {
	row := s.q.QueryRow(ctx, stmtGetAnalysis, domain)
	a, err := scanPgAnalysis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get analysis %s", domain)
	}
	return a, nil
}

func (s *PostgresStore) UpsertAnalysis(ctx context.Context, a *model.CompanyAnalysis) error {
	strengths, topics, pains, err := marshalAnalysisLists(&a.Analysis)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO company_analyses (`+analysisColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (company_domain) DO UPDATE SET
			company_url = EXCLUDED.company_url,
			business_description = EXCLUDED.business_description,
			industry = EXCLUDED.industry,
			strengths = EXCLUDED.strengths,
			target_customers = EXCLUDED.target_customers,
			key_topics = EXCLUDED.key_topics,
			company_size = EXCLUDED.company_size,
			pain_points = EXCLUDED.pain_points,
			analyzed_at = EXCLUDED.analyzed_at,
			expires_at = EXCLUDED.expires_at,
			cache_hit_count = EXCLUDED.cache_hit_count,
			last_accessed_at = EXCLUDED.last_accessed_at`,
		a.Domain, a.URL, a.Analysis.BusinessDescription, a.Analysis.Industry, strengths,
		a.Analysis.TargetCustomers, topics, a.Analysis.CompanySize, pains,
		a.AnalyzedAt, a.ExpiresAt, a.HitCount, a.LastAccessedAt,
	)
	return eris.Wrapf(err, "postgres: upsert analysis %s", a.Domain)
}

func (s *PostgresStore) RecordAnalysisHit(ctx context.Context, domain string, at time.Time) (*model.CompanyAnalysis, error) {
	row := s.q.QueryRow(ctx, stmtRecordAnalysisHit, at, domain, at)
	a, err := scanPgAnalysis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record analysis hit %s", domain)
	}
	return a, nil
}

func (s *PostgresStore) DeleteExpiredAnalysis(ctx context.Context, domain string, now time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM company_analyses WHERE company_domain = $1 AND expires_at <= $2`, domain, now)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: delete expired analysis %s", domain)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteExpiredAnalyses(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM company_analyses WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired analyses")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) AnalysisStats(ctx context.Context, now time.Time, top int) (*model.CacheStats, error) {
	var st model.CacheStats
	if err := s.q.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at > $1) FROM company_analyses`, now,
	).Scan(&st.Total, &st.Active); err != nil {
		return nil, eris.Wrap(err, "postgres: count analyses")
	}
	st.Expired = st.Total - st.Active

	if top <= 0 {
		return &st, nil
	}
	rows, err := s.q.Query(ctx,
		`SELECT `+analysisColumns+` FROM company_analyses
		 ORDER BY cache_hit_count DESC, company_domain LIMIT $1`, top)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: top analyses")
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanPgAnalysis(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		st.Top = append(st.Top, *a)
	}
	return &st, eris.Wrap(rows.Err(), "postgres: top analyses iterate")
}

// --- Ingestion runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind, input string) (*model.IngestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.q.Exec(ctx,
		`INSERT INTO ingest_runs (id, kind, input, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, string(kind), input, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.IngestRun{
		ID:        id,
		Kind:      kind,
		Input:     input,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *model.IngestRun) error {
	now := time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, created = $2, merged = $3, refreshed = $4, skipped = $5, failed = $6,
		 error = $7, updated_at = $8 WHERE id = $9`,
		string(run.Status), run.Counts.Created, run.Counts.Merged, run.Counts.Refreshed, run.Counts.Skipped,
		run.Counts.Failed, nullable(run.Error), now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}
	run.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.IngestRun, error) {
	row := s.q.QueryRow(ctx, `SELECT `+runColumns+` FROM ingest_runs WHERE id = $1`, id)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.q.Query(ctx, `SELECT `+runColumns+` FROM ingest_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// helpers

// pgWriteErr maps unique_violation to ErrConflict.
func pgWriteErr(err error, msg string) error {
	if db.IsUniqueViolation(err) {
		return eris.Wrapf(ErrConflict, "%s: %s", msg, db.ConstraintName(err))
	}
	return eris.Wrap(err, msg)
}

func scanPgEntity(row pgx.Row) (*model.Entity, error) {
	var e model.Entity
	var name, listingName, address, placeID, cid, listingURL, website, inquiry, email, phone *string

	if err := row.Scan(&e.ID, &name, &listingName, &address, &placeID, &cid, &listingURL,
		&website, &inquiry, &email, &phone, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Name = deref(name)
	e.ListingName = deref(listingName)
	e.Address = deref(address)
	e.PlaceID = deref(placeID)
	e.CID = deref(cid)
	e.ListingURL = deref(listingURL)
	e.WebsiteURL = deref(website)
	e.InquiryURL = deref(inquiry)
	e.Email = deref(email)
	e.Phone = deref(phone)
	return &e, nil
}

func scanPgAnalysis(row pgx.Row) (*model.CompanyAnalysis, error) {
	var a model.CompanyAnalysis
	var strengths, topics, pains []byte

	if err := row.Scan(&a.Domain, &a.URL, &a.Analysis.BusinessDescription, &a.Analysis.Industry, &strengths,
		&a.Analysis.TargetCustomers, &topics, &a.Analysis.CompanySize, &pains,
		&a.AnalyzedAt, &a.ExpiresAt, &a.HitCount, &a.LastAccessedAt); err != nil {
		return nil, err
	}
	if err := unmarshalAnalysisLists(&a.Analysis, strengths, topics, pains); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanPgRun(row pgx.Row) (*model.IngestRun, error) {
	var r model.IngestRun
	var kind, status string
	var runErr *string

	if err := row.Scan(&r.ID, &kind, &r.Input, &status, &r.Counts.Created, &r.Counts.Merged,
		&r.Counts.Refreshed, &r.Counts.Skipped, &r.Counts.Failed, &runErr, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Kind = model.RunKind(kind)
	r.Status = model.RunStatus(status)
	r.Error = deref(runErr)
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
