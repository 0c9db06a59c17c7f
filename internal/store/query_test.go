package store

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepbiz/directory/internal/model"
)

func TestEntityListQuery_Candidates(t *testing.T) {
	t.Parallel()

	query, args, err := entityListQuery(model.EntityFilter{
		HasSource:   model.SourcePlaces,
		LacksSource: model.SourceListing,
		HasAddress:  true,
		Limit:       50,
	}, sq.Question)
	require.NoError(t, err)
	assert.Contains(t, query, "place_id IS NOT NULL")
	assert.Contains(t, query, "listing_url IS NULL")
	assert.Contains(t, query, "address IS NOT NULL")
	assert.Contains(t, query, "LIMIT 50")
	assert.Equal(t, []any{""}, args)
}

func TestEntityListQuery_DefaultLimitAndDollar(t *testing.T) {
	t.Parallel()

	query, args, err := entityListQuery(model.EntityFilter{Category: "脱毛", Offset: 20}, sq.Dollar)
	require.NoError(t, err)
	assert.Contains(t, query, "c.name = $1")
	assert.Contains(t, query, "LIMIT 100")
	assert.Contains(t, query, "OFFSET 20")
	assert.Equal(t, []any{"脱毛"}, args)
}

func TestEntityListQuery_NeedsDetailsIsDisjunction(t *testing.T) {
	t.Parallel()

	query, args, err := entityListQuery(model.EntityFilter{
		HasSource:      model.SourceListing,
		MissingReview:  model.ReviewSourceHotPepper,
		MissingAddress: true,
	}, sq.Question)
	require.NoError(t, err)
	assert.Contains(t, query, "NOT EXISTS")
	assert.Contains(t, query, " OR ")
	assert.Equal(t, []any{model.ReviewSourceHotPepper, ""}, args)
}

func TestEntityListQuery_CID(t *testing.T) {
	t.Parallel()

	query, args, err := entityListQuery(model.EntityFilter{CID: "42", Limit: 1}, sq.Dollar)
	require.NoError(t, err)
	assert.Contains(t, query, "cid = $1")
	assert.Contains(t, query, "LIMIT 1")
	assert.Equal(t, []any{"42"}, args)
}

func TestEntityListQuery_UnknownSource(t *testing.T) {
	t.Parallel()

	_, _, err := entityListQuery(model.EntityFilter{HasSource: "fax"}, sq.Question)
	assert.Error(t, err)
}
