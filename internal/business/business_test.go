package business

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "business.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func ptr[T any](v T) *T { return &v }

func seedEntity(t *testing.T, st store.Store, e *model.Entity) *model.Entity {
	t.Helper()
	require.NoError(t, st.CreateEntity(context.Background(), e))
	return e
}

func allEntities(t *testing.T, st store.Store) []model.Entity {
	t.Helper()
	list, err := st.ListEntities(context.Background(), model.EntityFilter{})
	require.NoError(t, err)
	return list
}

func categoryNames(t *testing.T, st store.Store, id int64) []string {
	t.Helper()
	cats, err := st.ListCategories(context.Background(), id)
	require.NoError(t, err)
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	return names
}

type mockDetailer struct {
	mock.Mock
}

func (m *mockDetailer) Details(ctx context.Context, listingURL string) (*model.ListingDetails, error) {
	args := m.Called(ctx, listingURL)
	if d := args.Get(0); d != nil {
		return d.(*model.ListingDetails), args.Error(1)
	}
	return nil, args.Error(1)
}

// racyStore simulates a concurrent writer: it hides the first hideFinds
// FindEntity results and fails UpdateEntity with a uniqueness conflict
// while failUpdates is positive. Transaction-bound stores share the counters.
type racyStore struct {
	store.Store
	state *racyState
}

type racyState struct {
	hideFinds   int
	failUpdates int
	creates     int
}

func newRacyStore(st store.Store, s *racyState) *racyStore {
	return &racyStore{Store: st, state: s}
}

func (r *racyStore) FindEntity(ctx context.Context, src model.Source, identifier string) (*model.Entity, error) {
	if r.state.hideFinds > 0 {
		r.state.hideFinds--
		return nil, nil
	}
	return r.Store.FindEntity(ctx, src, identifier)
}

func (r *racyStore) CreateEntity(ctx context.Context, e *model.Entity) error {
	r.state.creates++
	return r.Store.CreateEntity(ctx, e)
}

func (r *racyStore) UpdateEntity(ctx context.Context, e *model.Entity) error {
	if r.state.failUpdates > 0 {
		r.state.failUpdates--
		return eris.Wrap(store.ErrConflict, "racy: update entity")
	}
	return r.Store.UpdateEntity(ctx, e)
}

func (r *racyStore) InTx(ctx context.Context, fn func(store.Store) error) error {
	return r.Store.InTx(ctx, func(tx store.Store) error {
		return fn(&racyStore{Store: tx, state: r.state})
	})
}
