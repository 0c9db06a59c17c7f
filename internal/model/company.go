package model

import "time"

// Analysis is the structured description extracted from a company website.
type Analysis struct {
	BusinessDescription string   `json:"businessDescription"`
	Industry            string   `json:"industry"`
	Strengths           []string `json:"strengths"`
	TargetCustomers     string   `json:"targetCustomers"`
	KeyTopics           []string `json:"keyTopics"`
	CompanySize         string   `json:"companySize"`
	PainPoints          []string `json:"painPoints"`
}

// CompanyAnalysis is a cached Analysis keyed by normalized domain.
type CompanyAnalysis struct {
	Domain         string    `json:"company_domain"`
	URL            string    `json:"company_url"`
	Analysis       Analysis  `json:"analysis"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	HitCount       int       `json:"cache_hit_count"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// ValidAt reports whether the entry may be served at now. An entry whose
// expiry equals now is already invalid.
func (c *CompanyAnalysis) ValidAt(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// TokenUsage records the tokens consumed by one analysis.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// CacheStats summarizes the analysis cache.
type CacheStats struct {
	Total   int               `json:"total"`
	Active  int               `json:"active"`
	Expired int               `json:"expired"`
	Top     []CompanyAnalysis `json:"top"`
}
