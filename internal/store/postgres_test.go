package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepbiz/directory/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_GetEntity_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, listing_name, .* FROM entities WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetEntity(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindEntity_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`^find_entity_listing$`).
		WithArgs("https://x/1/").
		WillReturnError(pgx.ErrNoRows)

	e, err := s.FindEntity(context.Background(), model.SourceListing, "https://x/1/")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HotPathsUsePreparedStatements(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectQuery(`^find_entity_place$`).WithArgs("P1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`^get_analysis$`).WithArgs("example.co.jp").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`^record_analysis_hit$`).WithArgs(now, "example.co.jp", now).WillReturnError(pgx.ErrNoRows)

	e, err := s.FindEntity(ctx, model.SourcePlaces, "P1")
	require.NoError(t, err)
	assert.Nil(t, e)
	a, err := s.GetAnalysis(ctx, "example.co.jp")
	require.NoError(t, err)
	assert.Nil(t, a)
	a, err = s.RecordAnalysisHit(ctx, "example.co.jp", now)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())

	for _, name := range []string{stmtFindEntityPlace, stmtFindEntityListing, stmtGetAnalysis, stmtRecordAnalysisHit} {
		assert.NotEmpty(t, preparedStatements[name], name)
	}
	_, err = findEntityStmt("fax")
	assert.Error(t, err)
}

func TestPostgresStore_CreateEntity(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO entities .* RETURNING id`).
		WithArgs("Shibuya Clinic", nil, "渋谷区神南1-1-1", "P1", nil, nil, nil, nil, nil, nil, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	e := &model.Entity{Name: "Shibuya Clinic", Address: "渋谷区神南1-1-1", PlaceID: "P1"}
	require.NoError(t, s.CreateEntity(context.Background(), e))
	assert.Equal(t, int64(7), e.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateEntity_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO entities`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "entities_place_id_key"})

	err := s.CreateEntity(context.Background(), &model.Entity{Name: "dup", PlaceID: "P1"})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Contains(t, err.Error(), "entities_place_id_key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateEntity_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE entities SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateEntity(context.Background(), &model.Entity{ID: 9, Name: "ghost"})
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_Commit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM review_summaries WHERE entity_id = \$1`).WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM entity_categories WHERE entity_id = \$1`).WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM entities WHERE id = \$1`).WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(tx Store) error {
		return tx.DeleteEntity(context.Background(), 2)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_Rollback(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE entities SET`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "entities_listing_url_key"})
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx Store) error {
		return tx.UpdateEntity(context.Background(), &model.Entity{ID: 1, ListingURL: "https://x/1/"})
	})
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InTx_BeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	called := false
	err := s.InTx(context.Background(), func(Store) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestPostgresStore_RecordAnalysisHit(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"company_domain", "company_url", "business_description", "industry", "strengths",
		"target_customers", "key_topics", "company_size", "pain_points",
		"analyzed_at", "expires_at", "cache_hit_count", "last_accessed_at",
	}).AddRow(
		"example.co.jp", "https://example.co.jp", "desc", "美容医療", []byte(`["駅近"]`),
		"女性", []byte(`["脱毛"]`), "小規模", []byte(`[]`),
		now.Add(-time.Hour), now.Add(90*24*time.Hour), 3, now,
	)
	mock.ExpectQuery(`^record_analysis_hit$`).
		WithArgs(now, "example.co.jp", now).
		WillReturnRows(rows)

	a, err := s.RecordAnalysisHit(context.Background(), "example.co.jp", now)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 3, a.HitCount)
	assert.Equal(t, []string{"駅近"}, a.Analysis.Strengths)
	assert.Equal(t, []string{}, a.Analysis.PainPoints)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordAnalysisHit_ExpiredOrMissing(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`^record_analysis_hit$`).
		WithArgs(now, "gone.jp", now).
		WillReturnError(pgx.ErrNoRows)

	a, err := s.RecordAnalysisHit(context.Background(), "gone.jp", now)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredAnalyses(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM company_analyses WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteExpiredAnalyses(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM company_analyses WHERE company_domain = \$1 AND expires_at <= \$2`).
		WithArgs("a.jp", now).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := s.DeleteExpiredAnalysis(context.Background(), "a.jp", now)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AnalysisStats_CountsOnly(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\), COUNT\(\*\) FILTER`).
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"total", "active"}).AddRow(5, 3))

	st, err := s.AnalysisStats(context.Background(), now, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Total)
	assert.Equal(t, 3, st.Active)
	assert.Equal(t, 2, st.Expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureCategory(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO categories .* RETURNING id`).
		WithArgs("脱毛").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec(`INSERT INTO entity_categories`).
		WithArgs(int64(1), int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.EnsureCategory(context.Background(), 1, " 脱毛 "))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEntities_UsesDollarPlaceholders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM entities WHERE place_id IS NOT NULL AND listing_url IS NULL .* ORDER BY id LIMIT 100`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "listing_name", "address", "place_id", "cid", "listing_url",
			"website_url", "inquiry_url", "email", "phone", "created_at", "updated_at",
		}))

	out, err := s.ListEntities(context.Background(), model.EntityFilter{
		LacksSource: model.SourceListing,
		HasSource:   model.SourcePlaces,
		HasAddress:  true,
	})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE ingest_runs SET status = \$1`).
		WithArgs("complete", 2, 1, 0, 0, 1, "partial", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	run := &model.IngestRun{
		ID:     "run-1",
		Status: model.RunStatusComplete,
		Counts: model.RunCounts{Created: 2, Merged: 1, Failed: 1},
		Error:  "partial",
	}
	require.NoError(t, s.UpdateRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}
