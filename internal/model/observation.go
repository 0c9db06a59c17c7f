package model

// Observation is one business record as reported by a source, before it is
// matched against the directory.
type Observation struct {
	Source      Source   `json:"source" yaml:"source"`
	PlaceID     string   `json:"place_id,omitempty" yaml:"place_id"`
	CID         string   `json:"cid,omitempty" yaml:"cid"`
	ListingURL  string   `json:"listing_url,omitempty" yaml:"listing_url"`
	Name        string   `json:"name" yaml:"name"`
	Address     string   `json:"address,omitempty" yaml:"address"`
	WebsiteURL  string   `json:"website_url,omitempty" yaml:"website_url"`
	Phone       string   `json:"phone,omitempty" yaml:"phone"`
	Rating      *float64 `json:"rating,omitempty" yaml:"rating"`
	ReviewCount *int     `json:"review_count,omitempty" yaml:"review_count"`
	Category    string   `json:"category,omitempty" yaml:"category"`
}

// Identifier returns the observation's source-specific key.
func (o *Observation) Identifier() string {
	switch o.Source {
	case SourcePlaces:
		return o.PlaceID
	case SourceListing:
		return o.ListingURL
	}
	return ""
}

// HasRating reports whether the observation carries a rating or a count.
func (o *Observation) HasRating() bool {
	return o.Rating != nil || o.ReviewCount != nil
}

// ReviewSummary builds the summary row for entityID from the observation.
func (o *Observation) ReviewSummary(entityID int64) ReviewSummary {
	return ReviewSummary{
		EntityID:    entityID,
		Source:      o.Source.ReviewSource(),
		Rating:      o.Rating,
		ReviewCount: o.ReviewCount,
	}
}

// ListingDetails is the detail-page data of one listing.
type ListingDetails struct {
	Address     string   `json:"address,omitempty"`
	Rating      *float64 `json:"rating,omitempty"`
	ReviewCount *int     `json:"review_count,omitempty"`
}
