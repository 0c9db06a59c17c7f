package store

import (
	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/deepbiz/directory/internal/model"
)

const entityColumns = `id, name, listing_name, address, place_id, cid, listing_url, website_url, inquiry_url, email, phone, created_at, updated_at`

const analysisColumns = `company_domain, company_url, business_description, industry, strengths, target_customers, key_topics, company_size, pain_points, analyzed_at, expires_at, cache_hit_count, last_accessed_at`

const runColumns = `id, kind, input, status, created, merged, refreshed, skipped, failed, error, created_at, updated_at`

// identifierColumn maps a source to the entity column holding its identifier.
func identifierColumn(src model.Source) (string, error) {
	switch src {
	case model.SourcePlaces:
		return "place_id", nil
	case model.SourceListing:
		return "listing_url", nil
	}
	return "", eris.Errorf("store: unknown source %q", src)
}

// entityListQuery builds the SELECT for ListEntities. MissingReview and
// MissingAddress are combined with OR; all other criteria with AND.
func entityListQuery(f model.EntityFilter, ph sq.PlaceholderFormat) (string, []any, error) {
	q := sq.Select(entityColumns).From("entities").OrderBy("id").PlaceholderFormat(ph)

	if f.HasSource != "" {
		col, err := identifierColumn(f.HasSource)
		if err != nil {
			return "", nil, err
		}
		q = q.Where(sq.NotEq{col: nil})
	}
	if f.LacksSource != "" {
		col, err := identifierColumn(f.LacksSource)
		if err != nil {
			return "", nil, err
		}
		q = q.Where(sq.Eq{col: nil})
	}
	if f.HasAddress {
		q = q.Where(sq.And{sq.NotEq{"address": nil}, sq.NotEq{"address": ""}})
	}
	if f.CID != "" {
		q = q.Where(sq.Eq{"cid": f.CID})
	}
	if f.AfterID > 0 {
		q = q.Where(sq.Gt{"id": f.AfterID})
	}
	if f.NameLike != "" {
		pattern := "%" + f.NameLike + "%"
		q = q.Where(sq.Or{sq.Like{"name": pattern}, sq.Like{"listing_name": pattern}})
	}
	if f.Category != "" {
		q = q.Where(sq.Expr(`id IN (SELECT ec.entity_id FROM entity_categories ec
			JOIN categories c ON c.id = ec.category_id WHERE c.name = ?)`, f.Category))
	}

	var needs sq.Or
	if f.MissingReview != "" {
		needs = append(needs, sq.Expr(`NOT EXISTS (SELECT 1 FROM review_summaries r
			WHERE r.entity_id = entities.id AND r.source_name = ? AND r.rating IS NOT NULL)`, f.MissingReview))
	}
	if f.MissingAddress {
		needs = append(needs, sq.Or{sq.Eq{"address": nil}, sq.Eq{"address": ""}})
	}
	if len(needs) > 0 {
		q = q.Where(needs)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q = q.Limit(uint64(limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	query, args, err := q.ToSql()
	return query, args, eris.Wrap(err, "store: build entity query")
}

// nullable returns nil for the empty string so optional columns store NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
