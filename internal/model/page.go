package model

// FetchedPage is the text extracted from one fetched URL.
type FetchedPage struct {
	URL        string `json:"url"`
	Domain     string `json:"domain"`
	Title      string `json:"title,omitempty"`
	Text       string `json:"text"`
	StatusCode int    `json:"status_code,omitempty"`
}
