package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

var bodyMarkers = []struct {
	marker string
	block  BlockType
}{
	{"checking your browser", BlockCloudflare},
	{"cf-browser-verification", BlockCloudflare},
	{"just a moment...", BlockCloudflare},
	{"recaptcha", BlockCaptcha},
	{"hcaptcha", BlockCaptcha},
	{"g-recaptcha", BlockCaptcha},
	{"captcha", BlockCaptcha},
}

// jsShellLimit is the body size under which a noscript or meta-refresh page
// is treated as a client-rendered shell.
const jsShellLimit = 2000

// DetectBlock reports whether a response looks like an anti-bot challenge
// or a page that only renders with JavaScript. Both send the fetch on to a
// rendering scraper.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("Cf-Ray") != "" || strings.EqualFold(resp.Header.Get("Server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	for _, m := range bodyMarkers {
		if strings.Contains(lower, m.marker) {
			return true, m.block
		}
	}

	if len(body) < jsShellLimit {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}
	return false, BlockNone
}
