package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/resilience"
	"github.com/deepbiz/directory/internal/scrape"
)

const (
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"
	maxPageBytes    = 4 << 20
	nextLabel       = "次へ"
	addressLabel    = "住所"
	defaultMaxPages = 200
)

// ErrPageNotFound is returned for a listing page that no longer exists. It
// is never retried.
var ErrPageNotFound = eris.New("source: page not found")

var countPattern = regexp.MustCompile(`\d+`)

// ListingAdapter reads the listing site through a scoped HTTP session that
// is recycled after failures and every few pages.
type ListingAdapter struct {
	sessions *resilience.Recycler[*http.Client]
	limiter  *rate.Limiter
	maxPages int
}

type listingConfig struct {
	timeout      time.Duration
	backoff      resilience.Backoff
	recycleEvery int
	limiter      *rate.Limiter
	maxPages     int
	transport    http.RoundTripper
}

// ListingOption configures a ListingAdapter.
type ListingOption func(*listingConfig)

// WithRequestTimeout bounds each page request.
func WithRequestTimeout(d time.Duration) ListingOption {
	return func(c *listingConfig) { c.timeout = d }
}

// WithRetry sets the attempts and backoff for each page fetch.
func WithRetry(b resilience.Backoff) ListingOption {
	return func(c *listingConfig) { c.backoff = b }
}

// WithRecycleEvery replaces the session after n successful fetches.
func WithRecycleEvery(n int) ListingOption {
	return func(c *listingConfig) { c.recycleEvery = n }
}

// WithLimiter paces page requests.
func WithLimiter(l *rate.Limiter) ListingOption {
	return func(c *listingConfig) { c.limiter = l }
}

// WithMaxPages caps how many listing pages one scan follows.
func WithMaxPages(n int) ListingOption {
	return func(c *listingConfig) { c.maxPages = n }
}

// WithTransport sets the round tripper of new sessions.
func WithTransport(rt http.RoundTripper) ListingOption {
	return func(c *listingConfig) { c.transport = rt }
}

// NewListingAdapter creates a ListingAdapter. Call Close when done.
func NewListingAdapter(opts ...ListingOption) *ListingAdapter {
	cfg := listingConfig{
		timeout:      20 * time.Second,
		backoff:      resilience.DefaultBackoff(),
		recycleEvery: 50,
		limiter:      rate.NewLimiter(rate.Every(time.Second), 1),
		maxPages:     defaultMaxPages,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.backoff.Retryable = func(err error) bool { return !errors.Is(err, ErrPageNotFound) }
	cfg.backoff.OnRetry = resilience.LogRetry("listing", "fetch")

	acquire := func(context.Context) (*http.Client, error) {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		return &http.Client{Timeout: cfg.timeout, Jar: jar, Transport: cfg.transport}, nil
	}
	release := func(c *http.Client) error {
		c.CloseIdleConnections()
		return nil
	}

	return &ListingAdapter{
		sessions: resilience.NewRecycler(acquire, release, cfg.backoff, cfg.recycleEvery),
		limiter:  cfg.limiter,
		maxPages: cfg.maxPages,
	}
}

// Close releases the current session.
func (a *ListingAdapter) Close() error {
	return a.sessions.Close()
}

// ScanListing walks the listing pages from startURL, following the next
// link, and returns one observation per distinct listing. Pages fetched
// before a failure are still returned with the error.
func (a *ListingAdapter) ScanListing(ctx context.Context, startURL, category string) ([]model.Observation, error) {
	v := VariantFor(startURL)
	log := zap.L().With(zap.String("variant", v.Name), zap.String("start_url", startURL))

	var (
		out     []model.Observation
		seen    = make(map[string]bool)
		visited = make(map[string]bool)
	)
	current := startURL
	for page := 1; current != "" && page <= a.maxPages && !visited[current]; page++ {
		visited[current] = true

		doc, err := a.fetch(ctx, current)
		if err != nil {
			return out, eris.Wrapf(err, "source: listing page %d", page)
		}

		cards := v.cards(doc)
		if cards.Length() == 0 {
			log.Info("source: no listing cards", zap.String("url", current), zap.Int("page", page))
			break
		}

		added := 0
		cards.Each(func(_ int, card *goquery.Selection) {
			link := card.Find(v.NameSelector).First()
			href, ok := link.Attr("href")
			if !ok {
				return
			}
			listingURL := resolve(current, href)
			if listingURL == "" || seen[listingURL] {
				return
			}
			seen[listingURL] = true
			added++
			out = append(out, model.Observation{
				Source:     model.SourceListing,
				ListingURL: listingURL,
				Name:       strings.TrimSpace(link.Text()),
				Category:   category,
			})
		})
		log.Info("source: listing page scanned", zap.Int("page", page), zap.Int("listings", added))

		current = v.next(doc, current)
	}
	return out, nil
}

// Details reads a listing's address from its detail page and its rating
// summary from its review page. A missing review page leaves the rating
// empty.
func (a *ListingAdapter) Details(ctx context.Context, listingURL string) (*model.ListingDetails, error) {
	v := VariantFor(listingURL)
	listingURL = stripQuery(listingURL)

	doc, err := a.fetch(ctx, listingURL)
	if err != nil {
		return nil, eris.Wrap(err, "source: detail page")
	}
	d := &model.ListingDetails{Address: addressOf(doc)}

	reviews, err := a.fetch(ctx, v.reviewURL(listingURL))
	if errors.Is(err, ErrPageNotFound) {
		zap.L().Debug("source: no review page", zap.String("listing_url", listingURL))
		return d, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "source: review page")
	}
	d.Rating = parseRating(reviews.Find(v.RatingSelector).First().Text())
	d.ReviewCount = parseCount(reviews.Find(v.CountSelector).First().Text())
	return d, nil
}

func (a *ListingAdapter) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var doc *goquery.Document
	err := a.sessions.Use(ctx, func(ctx context.Context, c *http.Client) error {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return eris.Wrap(err, "source: create request")
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "ja,en-US;q=0.7,en;q=0.3")

		resp, err := c.Do(req)
		if err != nil {
			return eris.Wrap(err, "source: fetch")
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
		if err != nil {
			return eris.Wrap(err, "source: read body")
		}
		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return eris.Wrapf(ErrPageNotFound, "source: %s", pageURL)
		case resp.StatusCode >= 400:
			if blocked, kind := scrape.DetectBlock(resp, body); blocked {
				return eris.Errorf("source: blocked (%s) at %s", kind, pageURL)
			}
			return eris.Errorf("source: status %d at %s", resp.StatusCode, pageURL)
		}

		d, err := goquery.NewDocumentFromReader(bytes.NewReader(scrape.DecodeBody(resp.Header.Get("Content-Type"), body)))
		if err != nil {
			return eris.Wrap(err, "source: parse html")
		}
		doc = d
		return nil
	})
	return doc, err
}

func (v Variant) cards(doc *goquery.Document) *goquery.Selection {
	for _, sel := range v.CardSelectors {
		if found := doc.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return doc.Find(v.CardSelectors[0])
}

// next returns the absolute URL of the "next page" link, or "".
func (v Variant) next(doc *goquery.Document, base string) string {
	next := ""
	doc.Find(v.NextSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || !strings.Contains(s.Text(), nextLabel) {
			return true
		}
		next = resolveKeepQuery(base, href)
		return false
	})
	return next
}

// addressOf returns the text of the table cell next to the 住所 heading.
func addressOf(doc *goquery.Document) string {
	addr := ""
	doc.Find("th").EachWithBreak(func(_ int, th *goquery.Selection) bool {
		if !strings.Contains(th.Text(), addressLabel) {
			return true
		}
		addr = strings.Join(strings.Fields(th.NextFiltered("td").Text()), " ")
		return addr == ""
	})
	return addr
}

func parseRating(text string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseCount(text string) *int {
	m := countPattern.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// resolve returns href as an absolute http(s) URL without query or fragment.
func resolve(base, href string) string {
	abs := resolveKeepQuery(base, href)
	if abs == "" {
		return ""
	}
	return stripQuery(abs)
}

func resolveKeepQuery(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	u, err := b.Parse(strings.TrimSpace(href))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return u.String()
}
