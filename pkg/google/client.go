// Package google provides a client for Google Places API (New) text search.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deepbiz/directory/internal/resilience"
)

const defaultBaseURL = "https://places.googleapis.com/v1"

// searchFieldMask lists the place fields the directory stores.
const searchFieldMask = "places.id,places.displayName,places.formattedAddress,places.websiteUri," +
	"places.nationalPhoneNumber,places.googleMapsUri,places.rating,places.userRatingCount,nextPageToken"

// Client performs Google Places API operations.
type Client interface {
	TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error)
}

// TextSearchRequest is the body of a Places Text Search call. LanguageCode
// and RegionCode default to the client's values when empty.
type TextSearchRequest struct {
	TextQuery    string `json:"textQuery"`
	LanguageCode string `json:"languageCode,omitempty"`
	RegionCode   string `json:"regionCode,omitempty"`
	PageSize     int    `json:"pageSize,omitempty"`
	PageToken    string `json:"pageToken,omitempty"`
}

// TextSearchResponse is the response from Places Text Search.
type TextSearchResponse struct {
	Places        []Place `json:"places"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// Place represents a place returned by the API.
type Place struct {
	ID                  string      `json:"id"`
	DisplayName         DisplayName `json:"displayName"`
	FormattedAddress    string      `json:"formattedAddress,omitempty"`
	WebsiteURI          string      `json:"websiteUri,omitempty"`
	NationalPhoneNumber string      `json:"nationalPhoneNumber,omitempty"`
	GoogleMapsURI       string      `json:"googleMapsUri,omitempty"`
	Rating              *float64    `json:"rating,omitempty"`
	UserRatingCount     *int        `json:"userRatingCount,omitempty"`
}

// DisplayName holds the place's display name.
type DisplayName struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

var hexCIDPattern = regexp.MustCompile(`0x[0-9a-f]+:0x([0-9a-f]+)`)

// CID returns the numeric customer id of the place's Maps listing, taken
// from the cid query parameter of its Maps URI or, failing that, from the
// feature id embedded in the URI.
func (p *Place) CID() string {
	if p.GoogleMapsURI == "" {
		return ""
	}
	if u, err := url.Parse(p.GoogleMapsURI); err == nil {
		if cid := u.Query().Get("cid"); cid != "" {
			return cid
		}
	}
	m := hexCIDPattern.FindStringSubmatch(strings.ToLower(p.GoogleMapsURI))
	if m == nil {
		return ""
	}
	n, err := strconv.ParseUint(m[1], 16, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatUint(n, 10)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLocale sets the default language and region codes.
func WithLocale(language, region string) Option {
	return func(c *httpClient) {
		c.language = language
		c.region = region
	}
}

// WithBackoff overrides the retry policy for transient failures.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *httpClient) {
		c.backoff = b
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	language string
	region   string
	backoff  resilience.Backoff
	http     *http.Client
}

// NewClient creates a Google Places API client searching in Japanese within
// Japan unless WithLocale says otherwise.
func NewClient(apiKey string, opts ...Option) Client {
	b := resilience.DefaultBackoff()
	b.OnRetry = resilience.LogRetry("google", "text_search")
	c := &httpClient{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		language: "ja",
		region:   "jp",
		backoff:  b,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) TextSearch(ctx context.Context, req TextSearchRequest) (*TextSearchResponse, error) {
	if req.LanguageCode == "" {
		req.LanguageCode = c.language
	}
	if req.RegionCode == "" {
		req.RegionCode = c.region
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: marshal request")
	}

	respBody, err := resilience.RetryVal(ctx, c.backoff, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, body)
	})
	if err != nil {
		return nil, err
	}

	var result TextSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}

func (c *httpClient) do(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/places:searchText", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", searchFieldMask)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("google: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return respBody, nil
}
