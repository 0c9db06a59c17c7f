// Package scrape fetches a company website and reduces it to plain text,
// trying a plain HTTP fetch before a JS-rendering reader.
package scrape

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/deepbiz/directory/internal/model"
)

// Default extraction limits.
const (
	DefaultMaxChars = 15000
	DefaultMinChars = 100
)

// Result holds a fetched page with the scraper that produced it.
type Result struct {
	Page   model.FetchedPage
	Source string // e.g. "local_http", "jina"
}

// Scraper fetches a single URL and returns its text.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// cleanLines collapses whitespace within each line and drops lines shorter
// than minLine characters.
func cleanLines(text string, minLine int) string {
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if utf8.RuneCountInString(line) < minLine {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

// Domain returns the lower-cased host of rawURL with a leading "www."
// removed, or "" when rawURL has no host.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
