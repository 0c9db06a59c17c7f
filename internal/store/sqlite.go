package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/deepbiz/directory/internal/model"
)

// sqliteTimeLayout is fixed-width so stored timestamps compare correctly as text.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

type sqlQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	q    sqlQueryer
	inTx bool
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The pool is limited to one connection so per-connection pragmas hold and
// writers never contend inside the process.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
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
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS review_summaries (
	entity_id    INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	source_name  TEXT NOT NULL,
	rating       REAL,
	review_count INTEGER,
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (entity_id, source_name)
);

CREATE TABLE IF NOT EXISTS categories (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS entity_categories (
	entity_id   INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
	category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
	PRIMARY KEY (entity_id, category_id)
);

CREATE TABLE IF NOT EXISTS company_analyses (
	company_domain       TEXT PRIMARY KEY,
	company_url          TEXT NOT NULL,
	business_description TEXT NOT NULL,
	industry             TEXT NOT NULL,
	strengths            TEXT NOT NULL,
	target_customers     TEXT NOT NULL,
	key_topics           TEXT NOT NULL,
	company_size         TEXT NOT NULL,
	pain_points          TEXT NOT NULL,
	analyzed_at          TEXT NOT NULL,
	expires_at           TEXT NOT NULL,
	cache_hit_count      INTEGER NOT NULL DEFAULT 0,
	last_accessed_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	input      TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'queued',
	created    INTEGER NOT NULL DEFAULT 0,
	merged     INTEGER NOT NULL DEFAULT 0,
	refreshed  INTEGER NOT NULL DEFAULT 0,
	skipped    INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	error      TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entity_categories_category ON entity_categories(category_id);
CREATE INDEX IF NOT EXISTS idx_company_analyses_expires_at ON company_analyses(expires_at);
CREATE INDEX IF NOT EXISTS idx_company_analyses_hits ON company_analyses(cache_hit_count DESC);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_created_at ON ingest_runs(created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	if s.inTx {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

// --- Entities ---

func (s *SQLiteStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO entities (name, listing_name, address, place_id, cid, listing_url, website_url, inquiry_url, email, phone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullable(e.Name), nullable(e.ListingName), nullable(e.Address), nullable(e.PlaceID), nullable(e.CID),
		nullable(e.ListingURL), nullable(e.WebsiteURL), nullable(e.InquiryURL), nullable(e.Email), nullable(e.Phone),
		sqliteTime(now), sqliteTime(now),
	)
	if err != nil {
		return sqliteWriteErr(err, "sqlite: insert entity")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: entity id")
	}
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id int64) (*model.Entity, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanSQLiteEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: entity %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %d", id)
	}
	return e, nil
}

func (s *SQLiteStore) FindEntity(ctx context.Context, src model.Source, identifier string) (*model.Entity, error) {
	col, err := identifierColumn(src)
	if err != nil {
		return nil, err
	}
	if identifier == "" {
		return nil, nil
	}
	row := s.q.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE `+col+` = ?`, identifier)
	e, err := scanSQLiteEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find entity by %s", col)
	}
	return e, nil
}

func (s *SQLiteStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE entities SET name = ?, listing_name = ?, address = ?, place_id = ?, cid = ?, listing_url = ?,
		 website_url = ?, inquiry_url = ?, email = ?, phone = ?, updated_at = ? WHERE id = ?`,
		nullable(e.Name), nullable(e.ListingName), nullable(e.Address), nullable(e.PlaceID), nullable(e.CID),
		nullable(e.ListingURL), nullable(e.WebsiteURL), nullable(e.InquiryURL), nullable(e.Email), nullable(e.Phone),
		sqliteTime(now), e.ID,
	)
	if err != nil {
		return sqliteWriteErr(err, "sqlite: update entity")
	}
	if err := checkRowsAffected(res, "entity", e.ID); err != nil {
		return err
	}
	e.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) DeleteEntity(ctx context.Context, id int64) error {
	for _, q := range []string{
		`DELETE FROM review_summaries WHERE entity_id = ?`,
		`DELETE FROM entity_categories WHERE entity_id = ?`,
	} {
		if _, err := s.q.ExecContext(ctx, q, id); err != nil {
			return eris.Wrapf(err, "sqlite: delete entity %d dependents", id)
		}
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete entity %d", id)
	}
	return checkRowsAffected(res, "entity", id)
}

func (s *SQLiteStore) ListEntities(ctx context.Context, filter model.EntityFilter) ([]model.Entity, error) {
	query, args, err := entityListQuery(filter, sq.Question)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanSQLiteEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

// --- Review summaries ---

func (s *SQLiteStore) UpsertReviewSummary(ctx context.Context, rs model.ReviewSummary) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO review_summaries (entity_id, source_name, rating, review_count, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (entity_id, source_name) DO UPDATE SET
			rating = COALESCE(excluded.rating, review_summaries.rating),
			review_count = COALESCE(excluded.review_count, review_summaries.review_count),
			updated_at = excluded.updated_at`,
		rs.EntityID, rs.Source, rs.Rating, rs.ReviewCount, sqliteTime(time.Now().UTC()),
	)
	return eris.Wrapf(err, "sqlite: upsert review summary %d/%s", rs.EntityID, rs.Source)
}

func (s *SQLiteStore) ListReviewSummaries(ctx context.Context, entityID int64) ([]model.ReviewSummary, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT entity_id, source_name, rating, review_count, updated_at FROM review_summaries
		 WHERE entity_id = ? ORDER BY source_name`, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list review summaries")
	}
	defer rows.Close()

	var out []model.ReviewSummary
	for rows.Next() {
		var rs model.ReviewSummary
		var rating sql.NullFloat64
		var count sql.NullInt64
		var updated string
		if err := rows.Scan(&rs.EntityID, &rs.Source, &rating, &count, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review summary")
		}
		if rating.Valid {
			rs.Rating = &rating.Float64
		}
		if count.Valid {
			n := int(count.Int64)
			rs.ReviewCount = &n
		}
		rs.UpdatedAt = parseSQLiteTime(updated)
		out = append(out, rs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list review summaries iterate")
}

func (s *SQLiteStore) MoveReviewSummaries(ctx context.Context, fromID, toID int64) error {
	if _, err := s.q.ExecContext(ctx,
		`UPDATE review_summaries SET entity_id = ?
		 WHERE entity_id = ? AND source_name NOT IN (SELECT source_name FROM review_summaries WHERE entity_id = ?)`,
		toID, fromID, toID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: move review summaries %d -> %d", fromID, toID)
	}
	_, err := s.q.ExecContext(ctx, `DELETE FROM review_summaries WHERE entity_id = ?`, fromID)
	return eris.Wrapf(err, "sqlite: drop review summaries %d", fromID)
}

// --- Categories ---

func (s *SQLiteStore) EnsureCategory(ctx context.Context, entityID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	if _, err := s.q.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return eris.Wrapf(err, "sqlite: insert category %s", name)
	}
	var categoryID int64
	if err := s.q.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&categoryID); err != nil {
		return eris.Wrapf(err, "sqlite: get category %s", name)
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO entity_categories (entity_id, category_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		entityID, categoryID,
	)
	return eris.Wrapf(err, "sqlite: associate category %s with entity %d", name, entityID)
}

func (s *SQLiteStore) ListCategories(ctx context.Context, entityID int64) ([]model.Category, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT c.id, c.name FROM categories c JOIN entity_categories ec ON ec.category_id = c.id
		 WHERE ec.entity_id = ? ORDER BY c.name`, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list categories")
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan category")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list categories iterate")
}

func (s *SQLiteStore) MoveCategories(ctx context.Context, fromID, toID int64) error {
	if _, err := s.q.ExecContext(ctx,
		`INSERT INTO entity_categories (entity_id, category_id)
		 SELECT ?, category_id FROM entity_categories WHERE entity_id = ?
		 ON CONFLICT DO NOTHING`,
		toID, fromID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: move categories %d -> %d", fromID, toID)
	}
	_, err := s.q.ExecContext(ctx, `DELETE FROM entity_categories WHERE entity_id = ?`, fromID)
	return eris.Wrapf(err, "sqlite: drop categories %d", fromID)
}

// --- Company analysis cache ---

func (s *SQLiteStore) GetAnalysis(ctx context.Context, domain string) (*model.CompanyAnalysis, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM company_analyses WHERE company_domain = ?`, domain)
	a, err := scanSQLiteAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get analysis %s", domain)
	}
	return a, nil
}

func (s *SQLiteStore) UpsertAnalysis(ctx context.Context, a *model.CompanyAnalysis) error {
	strengths, topics, pains, err := marshalAnalysisLists(&a.Analysis)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO company_analyses (`+analysisColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (company_domain) DO UPDATE SET
			company_url = excluded.company_url,
			business_description = excluded.business_description,
			industry = excluded.industry,
			strengths = excluded.strengths,
			target_customers = excluded.target_customers,
			key_topics = excluded.key_topics,
			company_size = excluded.company_size,
			pain_points = excluded.pain_points,
			analyzed_at = excluded.analyzed_at,
			expires_at = excluded.expires_at,
			cache_hit_count = excluded.cache_hit_count,
			last_accessed_at = excluded.last_accessed_at`,
		a.Domain, a.URL, a.Analysis.BusinessDescription, a.Analysis.Industry, string(strengths),
		a.Analysis.TargetCustomers, string(topics), a.Analysis.CompanySize, string(pains),
		sqliteTime(a.AnalyzedAt), sqliteTime(a.ExpiresAt), a.HitCount, sqliteTime(a.LastAccessedAt),
	)
	return eris.Wrapf(err, "sqlite: upsert analysis %s", a.Domain)
}

func (s *SQLiteStore) RecordAnalysisHit(ctx context.Context, domain string, at time.Time) (*model.CompanyAnalysis, error) {
	row := s.q.QueryRowContext(ctx,
		`UPDATE company_analyses SET cache_hit_count = cache_hit_count + 1, last_accessed_at = ?
		 WHERE company_domain = ? AND expires_at > ?
		 RETURNING `+analysisColumns,
		sqliteTime(at), domain, sqliteTime(at),
	)
	a, err := scanSQLiteAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record analysis hit %s", domain)
	}
	return a, nil
}

func (s *SQLiteStore) DeleteExpiredAnalysis(ctx context.Context, domain string, now time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM company_analyses WHERE company_domain = ? AND expires_at <= ?`, domain, sqliteTime(now))
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: delete expired analysis %s", domain)
	}
	n, err := res.RowsAffected()
	return n > 0, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) DeleteExpiredAnalyses(ctx context.Context, now time.Time) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM company_analyses WHERE expires_at <= ?`, sqliteTime(now))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired analyses")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) AnalysisStats(ctx context.Context, now time.Time, top int) (*model.CacheStats, error) {
	var st model.CacheStats
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0) FROM company_analyses`,
		sqliteTime(now),
	).Scan(&st.Total, &st.Active); err != nil {
		return nil, eris.Wrap(err, "sqlite: count analyses")
	}
	st.Expired = st.Total - st.Active

	if top <= 0 {
		return &st, nil
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM company_analyses
		 ORDER BY cache_hit_count DESC, company_domain LIMIT ?`, top)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: top analyses")
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanSQLiteAnalysis(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		st.Top = append(st.Top, *a)
	}
	return &st, eris.Wrap(rows.Err(), "sqlite: top analyses iterate")
}

// --- Ingestion runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind, input string) (*model.IngestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, kind, input, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), input, string(model.RunStatusQueued), sqliteTime(now), sqliteTime(now),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.IngestRun) error {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, created = ?, merged = ?, refreshed = ?, skipped = ?, failed = ?,
		 error = ?, updated_at = ? WHERE id = ?`,
		string(run.Status), run.Counts.Created, run.Counts.Merged, run.Counts.Refreshed, run.Counts.Skipped,
		run.Counts.Failed, nullable(run.Error), sqliteTime(now), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run %s", run.ID)
	}
	if err := checkRowsAffected(res, "run", run.ID); err != nil {
		return err
	}
	run.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.IngestRun, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+runColumns+` FROM ingest_runs WHERE id = ?`, id)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.IngestRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+runColumns+` FROM ingest_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.IngestRun
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %v", entity, id)
	}
	return nil
}

// sqliteWriteErr maps uniqueness violations to ErrConflict.
func sqliteWriteErr(err error, msg string) error {
	if isSQLiteUnique(err) {
		return eris.Wrapf(ErrConflict, "%s: %v", msg, err)
	}
	return eris.Wrap(err, msg)
}

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteEntity(row scannable) (*model.Entity, error) {
	var e model.Entity
	var name, listingName, address, placeID, cid, listingURL, website, inquiry, email, phone sql.NullString
	var created, updated string

	if err := row.Scan(&e.ID, &name, &listingName, &address, &placeID, &cid, &listingURL,
		&website, &inquiry, &email, &phone, &created, &updated); err != nil {
		return nil, err
	}
	e.Name = name.String
	e.ListingName = listingName.String
	e.Address = address.String
	e.PlaceID = placeID.String
	e.CID = cid.String
	e.ListingURL = listingURL.String
	e.WebsiteURL = website.String
	e.InquiryURL = inquiry.String
	e.Email = email.String
	e.Phone = phone.String
	e.CreatedAt = parseSQLiteTime(created)
	e.UpdatedAt = parseSQLiteTime(updated)
	return &e, nil
}

func scanSQLiteAnalysis(row scannable) (*model.CompanyAnalysis, error) {
	var a model.CompanyAnalysis
	var strengths, topics, pains, analyzed, expires, accessed string

	if err := row.Scan(&a.Domain, &a.URL, &a.Analysis.BusinessDescription, &a.Analysis.Industry, &strengths,
		&a.Analysis.TargetCustomers, &topics, &a.Analysis.CompanySize, &pains,
		&analyzed, &expires, &a.HitCount, &accessed); err != nil {
		return nil, err
	}
	if err := unmarshalAnalysisLists(&a.Analysis, []byte(strengths), []byte(topics), []byte(pains)); err != nil {
		return nil, err
	}
	a.AnalyzedAt = parseSQLiteTime(analyzed)
	a.ExpiresAt = parseSQLiteTime(expires)
	a.LastAccessedAt = parseSQLiteTime(accessed)
	return &a, nil
}

func scanSQLiteRun(row scannable) (*model.IngestRun, error) {
	var r model.IngestRun
	var runErr sql.NullString
	var created, updated string

	if err := row.Scan(&r.ID, &r.Kind, &r.Input, &r.Status, &r.Counts.Created, &r.Counts.Merged,
		&r.Counts.Refreshed, &r.Counts.Skipped, &r.Counts.Failed, &runErr, &created, &updated); err != nil {
		return nil, err
	}
	r.Error = runErr.String
	r.CreatedAt = parseSQLiteTime(created)
	r.UpdatedAt = parseSQLiteTime(updated)
	return &r, nil
}

func marshalAnalysisLists(a *model.Analysis) (strengths, topics, pains []byte, err error) {
	if strengths, err = json.Marshal(a.Strengths); err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal strengths")
	}
	if topics, err = json.Marshal(a.KeyTopics); err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal key topics")
	}
	if pains, err = json.Marshal(a.PainPoints); err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal pain points")
	}
	return strengths, topics, pains, nil
}

func unmarshalAnalysisLists(a *model.Analysis, strengths, topics, pains []byte) error {
	if err := json.Unmarshal(strengths, &a.Strengths); err != nil {
		return eris.Wrap(err, "store: unmarshal strengths")
	}
	if err := json.Unmarshal(topics, &a.KeyTopics); err != nil {
		return eris.Wrap(err, "store: unmarshal key topics")
	}
	if err := json.Unmarshal(pains, &a.PainPoints); err != nil {
		return eris.Wrap(err, "store: unmarshal pain points")
	}
	return nil
}
