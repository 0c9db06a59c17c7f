package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deepbiz/directory/internal/model"
	"github.com/deepbiz/directory/internal/resilience"
	"github.com/deepbiz/directory/pkg/jina"
)

const jinaName = "jina"

// challengeSignatures mark a rendered page that is still an interstitial.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"just a moment",
	"attention required",
}

// JinaAdapter renders pages through Jina Reader. A breaker skips Jina for a
// minute after three consecutive failures.
type JinaAdapter struct {
	client   jina.Client
	breaker  *resilience.Breaker
	maxChars int
	minChars int
}

// NewJinaAdapter creates a JinaAdapter. maxChars <= 0 selects
// DefaultMaxChars.
func NewJinaAdapter(client jina.Client, maxChars int) *JinaAdapter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &JinaAdapter{
		client:   client,
		breaker:  resilience.NewBreaker(jinaName, 3, time.Minute),
		maxChars: maxChars,
		minChars: DefaultMinChars,
	}
}

func (j *JinaAdapter) Name() string { return jinaName }

// Supports returns false while the breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.StateOpen
}

// Scrape renders targetURL and validates the content.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var resp *jina.ReadResponse
	err := j.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = j.client.Read(ctx, targetURL)
		if err != nil {
			return err
		}
		if reason := unusable(resp, j.minChars); reason != "" {
			return eris.Errorf("jina: unusable response: %s", reason)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	text := truncateRunes(cleanLines(resp.Data.Content, minLineChars), j.maxChars)
	if len([]rune(text)) < j.minChars {
		return nil, eris.Errorf("jina: page text too short (%d chars)", len([]rune(text)))
	}

	return &Result{
		Page: model.FetchedPage{
			URL:        targetURL,
			Domain:     Domain(targetURL),
			Title:      resp.Data.Title,
			Text:       text,
			StatusCode: resp.Code,
		},
		Source: jinaName,
	}, nil
}

// unusable explains why a Jina response carries no page content, or returns
// "" when it is usable.
func unusable(resp *jina.ReadResponse, minChars int) string {
	if resp == nil {
		return "empty response"
	}
	if resp.Code != 0 && resp.Code != 200 {
		return "upstream status"
	}
	content := strings.TrimSpace(resp.Data.Content)
	if len([]rune(content)) < minChars {
		return "content too short"
	}
	if len(content) < 1000 {
		lower := strings.ToLower(content)
		for _, sig := range challengeSignatures {
			if strings.Contains(lower, sig) {
				return "challenge page"
			}
		}
	}
	return ""
}
