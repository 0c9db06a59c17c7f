package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
)

const companyPage = `<html><head><title>Example KK | Home</title><style>body{color:red}</style></head>
<body>
<header>Site header navigation links here</header>
<nav>Menu Menu Menu Menu Menu</nav>
<main>
<h1>Welcome</h1>
<p>Example KK provides   scheduling software for beauty clinics across Japan.</p>
<p>short</p>
<p>We help clinics reduce no-shows and grow repeat visits.</p>
<script>var tracking = "should never appear in output";</script>
</main>
<aside>Related articles sidebar content</aside>
<footer>Copyright 2026 Example KK All rights reserved</footer>
</body></html>`

func serveHTML(t *testing.T, contentType string, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
		assert.Contains(t, r.Header.Get("Accept-Language"), "ja")
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLocalScraper_ExtractsCleanText(t *testing.T) {
	t.Parallel()
	srv := serveHTML(t, "text/html; charset=utf-8", 200, []byte(companyPage))

	res, err := NewLocalScraper(WithMinChars(20)).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, localName, res.Source)
	assert.Equal(t, "Example KK | Home", res.Page.Title)
	assert.Equal(t, 200, res.Page.StatusCode)
	assert.Equal(t, "127.0.0.1", res.Page.Domain)

	want := "Example KK provides scheduling software for beauty clinics across Japan.\n" +
		"We help clinics reduce no-shows and grow repeat visits."
	assert.Equal(t, want, res.Page.Text)
}

func TestLocalScraper_TruncatesToMaxChars(t *testing.T) {
	t.Parallel()
	body := "<html><body><p>" + strings.Repeat("美容皮膚科の施術案内", 100) + "</p></body></html>"
	srv := serveHTML(t, "text/html", 200, []byte(body))

	res, err := NewLocalScraper(WithMaxChars(50), WithMinChars(10)).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 50, utf8.RuneCountInString(res.Page.Text))
}

func TestLocalScraper_DecodesShiftJIS(t *testing.T) {
	t.Parallel()
	utf8Body := "<html><body><p>渋谷の美容クリニックです。医療脱毛とシミ取りを行っています。</p></body></html>"
	sjis, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(utf8Body))
	require.NoError(t, err)
	srv := serveHTML(t, "text/html; charset=Shift_JIS", 200, sjis)

	res, err := NewLocalScraper(WithMinChars(10)).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "渋谷の美容クリニックです。医療脱毛とシミ取りを行っています。", res.Page.Text)
}

func TestLocalScraper_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", 500, companyPage, "status 500"},
		{"not found", 404, companyPage, "status 404"},
		{"captcha", 200, "<html><body>Please solve the reCAPTCHA</body></html>", "blocked"},
		{"too short", 200, "<html><body><p>Coming soon, stay tuned</p></body></html>", "too short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := serveHTML(t, "text/html", tt.status, []byte(tt.body))
			_, err := NewLocalScraper().Scrape(context.Background(), srv.URL)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLocalScraper_Unreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewLocalScraper().Scrape(context.Background(), url)
	require.Error(t, err)
}

func TestExtractText_KeepsDocumentOrder(t *testing.T) {
	t.Parallel()
	_, text, err := ExtractText(`<p>first line of text <b>bold text in middle</b> last part of text</p>`)
	require.NoError(t, err)
	assert.Equal(t, "first line of text\nbold text in middle\nlast part of text", text)
}

func TestDomain(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "example.co.jp", Domain("https://www.Example.co.jp/about"))
	assert.Equal(t, "example.com", Domain("http://example.com:8080/x"))
	assert.Equal(t, "", Domain("::not a url"))
}

func TestTruncateRunes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "美容", truncateRunes("美容皮膚科", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "abc", truncateRunes("abc", 0))
}
