package source

import (
	"net/url"
	"strings"
)

// Variant is one flavor of the listing site. Clinic and salon pages differ
// in markup and in where the review summary lives.
type Variant struct {
	Name string
	// CardSelectors are tried in order until one matches listing cards.
	CardSelectors []string
	// NameSelector finds the linked name inside a card.
	NameSelector string
	NextSelector string
	// ReviewPath is appended to the listing URL to reach the review page.
	ReviewPath     string
	RatingSelector string
	CountSelector  string
}

// VariantClinic covers clinic.beauty.hotpepper.jp.
var VariantClinic = Variant{
	Name:           "clinic",
	CardSelectors:  []string{"div.clinic", "li.searchListCassette", "div.slnCassetteBody"},
	NameSelector:   "p.clinic__name a, h3.slnName a, h3.slcHead a",
	NextSelector:   "a.iS.arrowR",
	ReviewPath:     "reviews/",
	RatingSelector: "span.clinic-review-rating__total-score",
	CountSelector:  "span.c-search-result-heading__count",
}

// VariantSalon covers the hair, nail and esthetic salon listings.
var VariantSalon = Variant{
	Name:           "salon",
	CardSelectors:  []string{"li.searchListCassette", "div.slnCassetteBody"},
	NameSelector:   "h3.slnName a, h3.slcHead a",
	NextSelector:   "a.iS.arrowR",
	ReviewPath:     "review/",
	RatingSelector: "dd.reviewRatingMeanScore",
	CountSelector:  "span.numberOfResult",
}

const clinicHost = "clinic.beauty.hotpepper.jp"

// VariantFor picks the variant for a listing or start URL by host.
func VariantFor(rawURL string) Variant {
	u, err := url.Parse(rawURL)
	if err == nil && strings.EqualFold(u.Hostname(), clinicHost) {
		return VariantClinic
	}
	return VariantSalon
}

// reviewURL returns the review page of a listing.
func (v Variant) reviewURL(listingURL string) string {
	return strings.TrimRight(stripQuery(listingURL), "/") + "/" + v.ReviewPath
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}
