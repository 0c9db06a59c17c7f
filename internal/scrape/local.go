package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/deepbiz/directory/internal/model"
)

const (
	localName      = "local_http"
	localUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"
	minLineChars   = 10
)

// strippedTags never carry company copy.
const strippedTags = "script, style, header, footer, nav, aside"

// LocalScraper fetches HTML via net/http without running JavaScript,
// detects blocks, and reduces the page to plain text.
type LocalScraper struct {
	client   *http.Client
	maxChars int
	minChars int
}

// LocalOption configures a LocalScraper.
type LocalOption func(*LocalScraper)

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) LocalOption {
	return func(l *LocalScraper) {
		if d > 0 {
			l.client.Timeout = d
		}
	}
}

// WithMaxChars caps the extracted text length.
func WithMaxChars(n int) LocalOption {
	return func(l *LocalScraper) {
		if n > 0 {
			l.maxChars = n
		}
	}
}

// WithMinChars sets the shortest extracted text treated as a real page.
func WithMinChars(n int) LocalOption {
	return func(l *LocalScraper) {
		if n >= 0 {
			l.minChars = n
		}
	}
}

// NewLocalScraper creates a LocalScraper with a 10s timeout.
func NewLocalScraper(opts ...LocalOption) *LocalScraper {
	l := &LocalScraper{
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 5 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		maxChars: DefaultMaxChars,
		minChars: DefaultMinChars,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LocalScraper) Name() string           { return localName }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL and returns its cleaned text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", localUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ja,en-US;q=0.7,en;q=0.3")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	// Markup runs roughly three times the length of its text.
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(l.maxChars)*3*4))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", blockType)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("local_http: status %d", resp.StatusCode)
	}

	html := truncateRunes(string(DecodeBody(resp.Header.Get("Content-Type"), body)), l.maxChars*3)
	title, text, err := ExtractText(html)
	if err != nil {
		return nil, err
	}
	text = truncateRunes(text, l.maxChars)
	if len([]rune(text)) < l.minChars {
		return nil, eris.Errorf("local_http: page text too short (%d chars)", len([]rune(text)))
	}

	return &Result{
		Page: model.FetchedPage{
			URL:        targetURL,
			Domain:     Domain(targetURL),
			Title:      title,
			Text:       text,
			StatusCode: resp.StatusCode,
		},
		Source: localName,
	}, nil
}

// ExtractText parses html and returns its title and body text with
// boilerplate sections removed, one text run per line, lines under ten
// characters dropped.
func ExtractText(html string) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", eris.Wrap(err, "scrape: parse html")
	}
	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(strippedTags).Remove()
	doc.Find("head").Remove()

	var b strings.Builder
	collectText(doc.Selection, &b)
	return title, cleanLines(b.String(), minLineChars), nil
}

// collectText writes every text node under s in document order, one per
// line.
func collectText(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := strings.TrimSpace(c.Text()); t != "" {
				b.WriteString(t)
				b.WriteByte('\n')
			}
			return
		}
		collectText(c, b)
	})
}

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([a-zA-Z0-9_\-]+)`)

// DecodeBody converts body to UTF-8 using the declared charset, from the
// Content-Type header or a meta tag. Unknown or missing charsets pass
// through unchanged.
func DecodeBody(contentType string, body []byte) []byte {
	label := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" {
		head := body
		if len(head) > 2048 {
			head = head[:2048]
		}
		if m := metaCharsetRe.FindSubmatch(head); m != nil {
			label = string(m[1])
		}
	}
	if label == "" {
		return body
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return body
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return bytes.ToValidUTF8(body, nil)
	}
	return decoded
}
