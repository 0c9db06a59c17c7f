package analysis

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/deepbiz/directory/internal/scrape"
)

// NormalizeDomain turns a domain path segment into a cache key: trimmed,
// lower-cased, with a leading "www." removed.
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "www.")
	if d == "" || strings.ContainsAny(d, "/?# \t") {
		return "", eris.Wrapf(ErrInvalidInput, "analysis: bad domain %q", domain)
	}
	return d, nil
}

// NormalizeURL validates a company URL and returns it with its cache key.
// A bare domain is accepted and fetched over https.
func NormalizeURL(raw string) (target, domain string, err error) {
	target = strings.TrimSpace(raw)
	if target == "" {
		return "", "", eris.Wrap(ErrInvalidInput, "analysis: company_url is required")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", "", eris.Wrapf(ErrInvalidInput, "analysis: bad company_url %q", raw)
	}
	return target, scrape.Domain(target), nil
}
