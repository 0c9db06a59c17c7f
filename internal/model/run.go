package model

import "time"

// RunStatus represents the current state of an ingestion run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunKind names the batch job an ingestion run executes.
type RunKind string

const (
	RunKindPlaces  RunKind = "places"
	RunKindListing RunKind = "listing"
	RunKindDetails RunKind = "details"
	RunKindMerge   RunKind = "merge"
	RunKindImport  RunKind = "import"
)

// Outcome is the terminal state of one ingested observation.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeMerged    Outcome = "merged"
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// RunCounts tallies observation outcomes within a run.
type RunCounts struct {
	Created   int `json:"created"`
	Merged    int `json:"merged"`
	Refreshed int `json:"refreshed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Add increments the counter for o.
func (c *RunCounts) Add(o Outcome) {
	switch o {
	case OutcomeCreated:
		c.Created++
	case OutcomeMerged:
		c.Merged++
	case OutcomeRefreshed:
		c.Refreshed++
	case OutcomeSkipped:
		c.Skipped++
	case OutcomeFailed:
		c.Failed++
	}
}

// Total returns the number of observations processed.
func (c RunCounts) Total() int {
	return c.Created + c.Merged + c.Refreshed + c.Skipped + c.Failed
}

// IngestRun is a persisted batch ingestion job.
type IngestRun struct {
	ID        string    `json:"id"`
	Kind      RunKind   `json:"kind"`
	Input     string    `json:"input"`
	Status    RunStatus `json:"status"`
	Counts    RunCounts `json:"counts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
