package analysis

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidInput marks a request that cannot name a company website.
	ErrInvalidInput = eris.New("analysis: invalid input")
	// ErrFetch marks a failure to read the company website by any strategy.
	ErrFetch = eris.New("analysis: fetch failed")
	// ErrAnalyze marks a model failure or a response that is not the
	// expected analysis shape.
	ErrAnalyze = eris.New("analysis: analyze failed")
)

// stageErr tags err with a stage sentinel while keeping err's chain.
func stageErr(stage, err error) error {
	return fmt.Errorf("%w: %w", stage, err)
}
