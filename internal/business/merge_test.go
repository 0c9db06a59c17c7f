package business

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/store"
)

func TestMergeRecord_FoldsListingIntoPlace(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	place := seedEntity(t, st, &model.Entity{Name: "Shibuya Clinic", Address: "渋谷区神南1-1-1", PlaceID: "P1", CID: "42"})
	listing := seedEntity(t, st, &model.Entity{
		ListingName: "渋谷クリニック",
		Address:     "渋谷区神南１－１－１",
		ListingURL:  "https://clinic.beauty.hotpepper.jp/kr/slnH000001/",
		Email:       "info@example.jp",
	})

	require.NoError(t, st.UpsertReviewSummary(ctx, model.ReviewSummary{EntityID: place.ID, Source: model.ReviewSourceGoogle, Rating: ptr(4.1)}))
	require.NoError(t, st.UpsertReviewSummary(ctx, model.ReviewSummary{EntityID: listing.ID, Source: model.ReviewSourceHotPepper, Rating: ptr(4.6), ReviewCount: ptr(88)}))
	require.NoError(t, st.EnsureCategory(ctx, place.ID, "美容皮膚科"))
	require.NoError(t, st.EnsureCategory(ctx, listing.ID, "医療脱毛"))

	merged, err := NewMerger(st).MergeRecord(ctx, listing.ID, place.ID)
	require.NoError(t, err)

	assert.Equal(t, place.ID, merged.ID)
	assert.Equal(t, "P1", merged.PlaceID)
	assert.Equal(t, listing.ListingURL, merged.ListingURL)
	assert.Equal(t, "渋谷クリニック", merged.ListingName)
	assert.Equal(t, "Shibuya Clinic", merged.Name)
	assert.Equal(t, "渋谷区神南1-1-1", merged.Address, "existing address is kept")
	assert.Equal(t, "info@example.jp", merged.Email, "missing field is filled")

	_, err = st.GetEntity(ctx, listing.ID)
	assert.True(t, store.IsNotFound(err))

	entities := allEntities(t, st)
	require.Len(t, entities, 1)
	assert.Equal(t, listing.ListingURL, entities[0].ListingURL)

	summaries, err := st.ListReviewSummaries(ctx, place.ID)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	assert.ElementsMatch(t, []string{"美容皮膚科", "医療脱毛"}, categoryNames(t, st, place.ID))
}

func TestMergeRecord_PlaceIntoListing(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	listing := seedEntity(t, st, &model.Entity{ListingName: "Salon", Address: "a", ListingURL: "U1"})
	place := seedEntity(t, st, &model.Entity{Name: "Salon Tokyo", Address: "a", PlaceID: "P1", CID: "7"})

	merged, err := NewMerger(st).MergeRecord(ctx, place.ID, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "P1", merged.PlaceID)
	assert.Equal(t, "7", merged.CID)
	assert.Equal(t, "U1", merged.ListingURL)
	assert.Equal(t, "Salon Tokyo", merged.Name)
}

func TestMergeRecord_AlreadyMerged(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	m := NewMerger(st)

	place := seedEntity(t, st, &model.Entity{Name: "A", Address: "a", PlaceID: "P1"})
	listing := seedEntity(t, st, &model.Entity{ListingName: "A", Address: "a", ListingURL: "U1"})

	_, err := m.MergeRecord(ctx, listing.ID, place.ID)
	require.NoError(t, err)

	_, err = m.MergeRecord(ctx, listing.ID, place.ID)
	assert.True(t, eris.Is(err, ErrAlreadyMerged), "redundant record is gone")

	other := seedEntity(t, st, &model.Entity{ListingName: "B", Address: "b", ListingURL: "U2"})
	_, err = m.MergeRecord(ctx, other.ID, place.ID)
	assert.True(t, eris.Is(err, ErrAlreadyMerged), "canonical already has a listing")

	_, err = st.GetEntity(ctx, other.ID)
	require.NoError(t, err, "failed merge leaves the record in place")
}

func TestMergeRecord_Self(t *testing.T) {
	st := newTestStore(t)
	e := seedEntity(t, st, &model.Entity{Name: "A", PlaceID: "P1"})

	_, err := NewMerger(st).MergeRecord(context.Background(), e.ID, e.ID)
	assert.True(t, eris.Is(err, ErrAlreadyMerged))
}

func TestMergeRecord_CanonicalMissing(t *testing.T) {
	st := newTestStore(t)
	listing := seedEntity(t, st, &model.Entity{ListingName: "A", ListingURL: "U1"})

	_, err := NewMerger(st).MergeRecord(context.Background(), listing.ID, 9999)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))

	_, err = st.GetEntity(context.Background(), listing.ID)
	require.NoError(t, err, "rollback keeps the redundant record")
}

func TestAbsorb_RejectsOwnedIdentifier(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	place := seedEntity(t, st, &model.Entity{Name: "A", Address: "a", PlaceID: "P1"})
	seedEntity(t, st, &model.Entity{ListingName: "A", Address: "a", ListingURL: "U1"})

	_, err := NewMerger(st).Absorb(ctx, place.ID, &model.Observation{
		Source:     model.SourceListing,
		ListingURL: "U1",
		Name:       "A",
	})
	assert.True(t, eris.Is(err, ErrAlreadyMerged))

	got, err := st.GetEntity(ctx, place.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ListingURL)
}

func TestMergeRecord_UpdateConflictIsAlreadyMerged(t *testing.T) {
	base := newTestStore(t)
	ctx := context.Background()

	place := seedEntity(t, base, &model.Entity{Name: "A", Address: "a", PlaceID: "P1"})
	listing := seedEntity(t, base, &model.Entity{ListingName: "A", Address: "a", ListingURL: "U1"})
	st := newRacyStore(base, &racyState{failUpdates: 1})

	_, err := NewMerger(st).MergeRecord(ctx, listing.ID, place.ID)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAlreadyMerged))

	// The transaction rolled back, so the redundant record survives.
	_, err = base.GetEntity(ctx, listing.ID)
	require.NoError(t, err)
}
