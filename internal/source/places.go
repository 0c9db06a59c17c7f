// Package source turns discovery channels into observations: the places
// provider's text search and the beauty listing site's list and detail
// pages.
package source

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/pkg/google"
)

// DefaultPlacesPages caps how many result pages one keyword search follows.
const DefaultPlacesPages = 3

// PlacesAdapter searches the places provider by keyword.
type PlacesAdapter struct {
	client   google.Client
	maxPages int
}

// NewPlacesAdapter creates a PlacesAdapter. maxPages <= 0 uses
// DefaultPlacesPages.
func NewPlacesAdapter(client google.Client, maxPages int) *PlacesAdapter {
	if maxPages <= 0 {
		maxPages = DefaultPlacesPages
	}
	return &PlacesAdapter{client: client, maxPages: maxPages}
}

// Search runs a text search for keyword and returns one observation per
// place, tagged with category. Places without an id are dropped.
func (a *PlacesAdapter) Search(ctx context.Context, keyword, category string) ([]model.Observation, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, eris.New("source: places keyword is empty")
	}

	var (
		out   []model.Observation
		seen  = make(map[string]bool)
		token string
	)
	for page := 0; page < a.maxPages; page++ {
		resp, err := a.client.TextSearch(ctx, google.TextSearchRequest{TextQuery: keyword, PageToken: token})
		if err != nil {
			return out, eris.Wrapf(err, "source: places search %q page %d", keyword, page+1)
		}
		for i := range resp.Places {
			p := &resp.Places[i]
			if p.ID == "" || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, observationFromPlace(p, category))
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}

	zap.L().Info("source: places search complete",
		zap.String("keyword", keyword),
		zap.Int("places", len(out)),
	)
	return out, nil
}

func observationFromPlace(p *google.Place, category string) model.Observation {
	return model.Observation{
		Source:      model.SourcePlaces,
		PlaceID:     p.ID,
		CID:         p.CID(),
		Name:        strings.TrimSpace(p.DisplayName.Text),
		Address:     strings.TrimSpace(p.FormattedAddress),
		WebsiteURL:  p.WebsiteURI,
		Phone:       p.NationalPhoneNumber,
		Rating:      p.Rating,
		ReviewCount: p.UserRatingCount,
		Category:    category,
	}
}
