package model

import "time"

// Source identifies one of the independent discovery channels.
type Source string

const (
	// SourcePlaces is the map/places provider (Google Places).
	SourcePlaces Source = "places"
	// SourceListing is the beauty directory listing site (Hot Pepper Beauty).
	SourceListing Source = "listing"
)

// Review source names as stored in review_summaries.source_name.
const (
	ReviewSourceGoogle    = "Google"
	ReviewSourceHotPepper = "Hot Pepper"
)

// ReviewSource returns the review summary source name for s.
func (s Source) ReviewSource() string {
	switch s {
	case SourcePlaces:
		return ReviewSourceGoogle
	case SourceListing:
		return ReviewSourceHotPepper
	}
	return ""
}

// Other returns the opposite discovery channel.
func (s Source) Other() Source {
	if s == SourcePlaces {
		return SourceListing
	}
	return SourcePlaces
}

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourcePlaces || s == SourceListing
}

// Entity is the canonical record for one physical business. Empty strings
// are stored as NULL so the unique identifier columns only constrain values
// that are actually present.
type Entity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name,omitempty"`
	ListingName string    `json:"listing_name,omitempty"`
	Address     string    `json:"address,omitempty"`
	PlaceID     string    `json:"place_id,omitempty"`
	CID         string    `json:"cid,omitempty"`
	ListingURL  string    `json:"listing_url,omitempty"`
	WebsiteURL  string    `json:"website_url,omitempty"`
	InquiryURL  string    `json:"inquiry_url,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Identifier returns the entity's identifier for the given source.
func (e *Entity) Identifier(src Source) string {
	switch src {
	case SourcePlaces:
		return e.PlaceID
	case SourceListing:
		return e.ListingURL
	}
	return ""
}

// HasSource reports whether the entity carries an identifier from src.
func (e *Entity) HasSource(src Source) bool {
	return e.Identifier(src) != ""
}

// DisplayName returns the name used for matching against the other source.
func (e *Entity) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ListingName
}

// ReviewSummary is the aggregate rating of one entity on one source.
type ReviewSummary struct {
	EntityID    int64     `json:"entity_id"`
	Source      string    `json:"source"`
	Rating      *float64  `json:"rating,omitempty"`
	ReviewCount *int      `json:"review_count,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Category is a discovery category (e.g. a treatment keyword).
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// EntityFilter narrows entity listings.
type EntityFilter struct {
	// HasSource keeps entities carrying an identifier from this source.
	HasSource Source `json:"has_source,omitempty"`
	// LacksSource keeps entities without an identifier from this source.
	LacksSource Source `json:"lacks_source,omitempty"`
	// HasAddress keeps entities with a non-null address.
	HasAddress bool   `json:"has_address,omitempty"`
	NameLike   string `json:"name_like,omitempty"`
	Category   string `json:"category,omitempty"`
	// MissingReview keeps entities with no rated summary for this review source.
	MissingReview string `json:"missing_review,omitempty"`
	// MissingAddress keeps entities without an address.
	MissingAddress bool `json:"missing_address,omitempty"`
	// CID keeps the entity carrying this places customer id.
	CID string `json:"cid,omitempty"`
	// AfterID keeps entities with an id greater than AfterID (keyset paging).
	AfterID int64 `json:"after_id,omitempty"`
	Limit   int   `json:"limit,omitempty"`
	Offset  int   `json:"offset,omitempty"`
}
